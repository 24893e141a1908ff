package main

import (
	"github.com/spf13/cobra"
	"github.com/zulandar/dailyread/internal/dashboard"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard with generated reports and run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (environment only when empty)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default serve.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	a, err := newApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Serve.Port
	}

	ctx, cancel := signalContext()
	defer cancel()

	return dashboard.Start(ctx, dashboard.StartOpts{
		History:    a.history,
		ReportsDir: a.cfg.ReportsLocation,
		Port:       port,
		Out:        cmd.OutOrStdout(),
	})
}
