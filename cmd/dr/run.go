package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/dailyread/internal/dailyread"
)

// runFlags are shared by the generate and upload command trees.
type runFlags struct {
	configPath string
	projectID  string
	strict     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to config file (environment only when empty)")
	cmd.PersistentFlags().StringVar(&f.projectID, "project", "", "fetch a single project id")
	cmd.PersistentFlags().BoolVar(&f.strict, "strict", false, "exit non-zero when any report upload fails")
}

// newRunCmd builds "<use> all" and "<use> single <orderer>".
func newRunCmd(use, short string, upload bool) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
	}
	flags.register(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Run for every orderer with changed projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(cmd, flags, dailyread.Options{Upload: upload})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "single <orderer>",
		Short: "Run for one orderer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(cmd, flags, dailyread.Options{Upload: upload, Orderer: args[0]})
		},
	})
	return cmd
}

func newGenerateCmd() *cobra.Command {
	return newRunCmd("generate", "Fetch project data and write reports to disk", false)
}

func newUploadCmd() *cobra.Command {
	return newRunCmd("upload", "Fetch project data, upload reports and commit uploaded projects", true)
}

func runCycle(cmd *cobra.Command, flags *runFlags, opts dailyread.Options) error {
	a, err := newApp(flags.configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.runner()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	opts.ProjectID = flags.projectID
	opts.Strict = flags.strict
	sum, err := r.Run(ctx, opts)
	if sum != nil {
		printSummary(cmd.OutOrStdout(), sum, opts.Upload)
	}
	return err
}

func printSummary(w io.Writer, sum *dailyread.Summary, upload bool) {
	fmt.Fprintf(w, "Orderers: %d\n", len(sum.Orderers))
	for _, p := range sum.Reports {
		fmt.Fprintf(w, "  report: %s\n", p)
	}
	if upload {
		fmt.Fprintf(w, "Uploaded: %d  Hidden: %d  Failed: %d\n", sum.Uploaded, sum.Hidden, sum.Failed)
		for _, res := range sum.Results {
			if !res.OK {
				fmt.Fprintf(w, "  failed: %s (%d %s)\n", res.ProjectID, res.StatusCode, res.Reason)
			}
		}
	}
}
