package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/dispatch"
	"github.com/zulandar/switchboard/internal/telegraph"
)

func newSweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one automatic assignment pass",
		Long:  "Assigns waiting sessions, oldest first, to the least-loaded eligible agents and reports what happened.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sweeper, err := dispatch.NewSweeper(dispatch.SweeperOpts{
				DB:       gormDB,
				Notifier: telegraph.Logger{Log: newLogger(cfg.Log, cmd.ErrOrStderr())},
				Schedule: cfg.Router.SweepSchedule,
			})
			if err != nil {
				return err
			}
			result, err := sweeper.RunOnce(context.Background())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, a := range result.Assigned {
				fmt.Fprintf(out, "Assigned %s (requester %s) to %s\n", a.Session.ID, a.Session.RequesterID, a.AgentID)
			}
			for _, f := range result.Failures {
				fmt.Fprintf(out, "Failed %s: %v\n", f.SessionID, f.Err)
			}
			fmt.Fprintf(out, "%d assigned, %d still waiting, %d skipped, %d failed\n",
				len(result.Assigned), result.Waiting, result.Skipped, len(result.Failures))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}
