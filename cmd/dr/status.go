package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/dailyread/internal/config"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending project changes and the orderers they belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (environment only when empty)")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	a, err := newApp(configPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	paths, err := a.store.ChangedPaths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintln(out, "No pending changes.")
		return nil
	}

	fmt.Fprintf(out, "Pending changes (%d):\n", len(paths))
	for _, p := range paths {
		fmt.Fprintf(out, "  %s\n", p)
	}

	users, err := config.ReadUserList(a.cfg.UsersListLocation)
	if err != nil {
		return err
	}
	orderers, err := a.store.FindChangedOrderers(users)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Orderers (%d):\n", len(orderers))
	for _, o := range orderers {
		fmt.Fprintf(out, "  %s\n", o)
	}
	return nil
}
