package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/models"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent status commands",
	}

	cmd.AddCommand(newAgentSetCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentEligibleCmd())
	cmd.AddCommand(newAgentRecountCmd())
	return cmd
}

func newAgentSetCmd() *cobra.Command {
	var (
		configPath    string
		presence      string
		maxConcurrent int
		autoAssign    bool
	)

	cmd := &cobra.Command{
		Use:   "set <agent-id>",
		Short: "Set an agent's presence and capacity",
		Long:  "Creates or updates an agent's status. The current session count is never changed here.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("auto-assign") {
				if current, err := agent.Get(gormDB, args[0]); err == nil {
					autoAssign = current.AutoAssign
				}
			}
			st, err := agent.SetPresence(gormDB, args[0], presence, maxConcurrent, autoAssign)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent %s is %s (%d/%d sessions, auto-assign %t)\n",
				st.AgentID, st.Presence, st.CurrentSessionCount, st.MaxConcurrentSessions, st.AutoAssign)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&presence, "presence", models.PresenceOnline, "presence (online, offline, busy)")
	cmd.Flags().IntVar(&maxConcurrent, "max", 1, "maximum concurrent sessions")
	cmd.Flags().BoolVar(&autoAssign, "auto-assign", false, "receive automatic assignments")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents and their load",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			statuses, err := agent.List(gormDB)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(statuses) == 0 {
				fmt.Fprintln(out, "No agents found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tPRESENCE\tLOAD\tAUTO")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%t\n", s.AgentID, s.Presence, s.CurrentSessionCount, s.MaxConcurrentSessions, s.AutoAssign)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func newAgentEligibleCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "eligible",
		Short: "List agents eligible for automatic assignment, best first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			ids, err := agent.EligibleAgents(gormDB)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No eligible agents.")
				return nil
			}
			for i, id := range ids {
				fmt.Fprintf(out, "%d. %s\n", i+1, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func newAgentRecountCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "recount",
		Short: "Check agent load counters against active sessions",
		Long:  "Recomputes every agent's load from the active sessions and reports counters that disagree. Exits non-zero on drift.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			drift, err := agent.Recount(gormDB)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(drift) == 0 {
				fmt.Fprintln(out, "All agent load counters match active sessions.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tSTORED\tACTUAL")
			for _, d := range drift {
				fmt.Fprintf(w, "%s\t%d\t%d\n", d.AgentID, d.Stored, d.Actual)
			}
			w.Flush()
			return fmt.Errorf("load drift on %d agent(s)", len(drift))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}
