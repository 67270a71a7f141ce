package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/messaging"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Session message commands",
	}

	cmd.AddCommand(newMessageSendCmd())
	cmd.AddCommand(newMessageListCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
		body       string
	)

	cmd := &cobra.Command{
		Use:   "send <session-id>",
		Short: "Append a message to an active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			msg, err := messaging.Append(gormDB, guardFromConfig(cfg), args[0], actor.actor(), body, messaging.AppendOpts{
				MaxBodyLength: cfg.Messages.MaxBodyLength,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent message #%d to session %s\n", msg.SequenceNo, msg.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	actor.register(cmd, "sender user ID")
	cmd.Flags().StringVar(&body, "body", "", "message body (required)")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func newMessageListCmd() *cobra.Command {
	var (
		configPath string
		actor      actorFlags
		after      int64
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list <session-id>",
		Short: "Show a session's messages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if _, _, err := guardFromConfig(cfg).Authorize(gormDB, actor.actor(), args[0]); err != nil {
				return err
			}
			msgs, err := messaging.ListSince(gormDB, args[0], after, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages.")
				return nil
			}
			for _, m := range msgs {
				fmt.Fprintf(out, "#%d [%s] %s: %s\n", m.SequenceNo, m.SentAt.Format(time.TimeOnly), m.SenderID, m.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	actor.register(cmd, "reading user ID")
	cmd.Flags().Int64Var(&after, "after", 0, "only messages after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", messaging.DefaultListLimit, "maximum messages to show")
	return cmd
}
