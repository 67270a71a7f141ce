package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/dispatch"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Support session commands",
	}

	cmd.AddCommand(newSessionOpenCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionClaimCmd())
	cmd.AddCommand(newSessionReleaseCmd())
	cmd.AddCommand(newSessionCloseCmd())
	return cmd
}

func newSessionOpenCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "open <requester-id>",
		Short: "Open a waiting session for a requester",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sess, err := session.Create(gormDB, args[0])
			var open *models.SessionAlreadyOpenError
			if errors.As(err, &open) {
				return fmt.Errorf("%s already has open session %s", args[0], open.SessionID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened session %s for %s\n", sess.ID, sess.RequesterID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		requester  string
		agentID    string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sessions, err := session.List(gormDB, session.ListOpts{
				Status:      status,
				RequesterID: requester,
				AgentID:     agentID,
				Limit:       limit,
			})
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (waiting, active, closed)")
	cmd.Flags().StringVar(&requester, "requester", "", "filter by requester ID")
	cmd.Flags().StringVar(&agentID, "agent", "", "filter by assigned agent ID")
	cmd.Flags().IntVar(&limit, "limit", session.DefaultListLimit, "maximum sessions to show")
	return cmd
}

func printSessions(out io.Writer, sessions []models.ChatSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tREQUESTER\tAGENT\tMESSAGES\tCREATED")
	for _, s := range sessions {
		agentID := s.AgentID()
		if agentID == "" {
			agentID = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Status, s.RequesterID, agentID, s.LastSequence, s.CreatedAt.Format(time.DateTime))
	}
	w.Flush()
}

func newSessionShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sess, err := session.Get(gormDB, args[0])
			if err != nil {
				return err
			}
			participants, err := session.Participants(gormDB, sess.ID)
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), sess, participants)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func printSession(out io.Writer, sess *models.ChatSession, participants []models.Participant) {
	fmt.Fprintf(out, "Session:   %s\n", sess.ID)
	fmt.Fprintf(out, "Status:    %s\n", sess.Status)
	fmt.Fprintf(out, "Requester: %s\n", sess.RequesterID)
	if id := sess.AgentID(); id != "" {
		fmt.Fprintf(out, "Agent:     %s\n", id)
	}
	fmt.Fprintf(out, "Messages:  %d\n", sess.LastSequence)
	fmt.Fprintf(out, "Created:   %s\n", sess.CreatedAt.Format(time.DateTime))
	if sess.ClaimedAt != nil {
		fmt.Fprintf(out, "Claimed:   %s\n", sess.ClaimedAt.Format(time.DateTime))
	}
	if sess.ClosedAt != nil {
		fmt.Fprintf(out, "Closed:    %s by %s\n", sess.ClosedAt.Format(time.DateTime), sess.ClosedBy)
	}

	fmt.Fprintln(out, "\nParticipants:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  USER\tROLE\tACTIVE\tJOINED")
	for _, p := range participants {
		fmt.Fprintf(w, "  %s\t%s\t%t\t%s\n", p.UserID, p.Role, p.IsActive, p.JoinedAt.Format(time.DateTime))
	}
	w.Flush()
}

func newSessionClaimCmd() *cobra.Command {
	var (
		configPath string
		agentID    string
	)

	cmd := &cobra.Command{
		Use:   "claim <session-id>",
		Short: "Claim a waiting session for an agent",
		Long:  "Atomically assigns a waiting session to an agent. Fails if another agent got there first or the agent is at capacity.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sess, err := dispatch.Claim(gormDB, args[0], agentID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s claimed by %s\n", sess.ID, agentID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&agentID, "agent", "", "claiming agent ID (required)")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newSessionReleaseCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
	)

	cmd := &cobra.Command{
		Use:   "release <session-id>",
		Short: "Return an active session to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sess, err := dispatch.Release(gormDB, guardFromConfig(cfg), args[0], actor.actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s is waiting again\n", sess.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	actor.register(cmd, "assigned agent ID, or a privileged user with --role")
	return cmd
}

func newSessionCloseCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
	)

	cmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a waiting or active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			sess, err := session.Close(gormDB, guardFromConfig(cfg), args[0], actor.actor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s closed by %s\n", sess.ID, sess.ClosedBy)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	actor.register(cmd, "user closing the session")
	return cmd
}
