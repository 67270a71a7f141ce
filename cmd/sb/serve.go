package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/api"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/dispatch"
	"github.com/zulandar/switchboard/internal/telegraph"
	discordadapter "github.com/zulandar/switchboard/internal/telegraph/discord"
	slackadapter "github.com/zulandar/switchboard/internal/telegraph/slack"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and assignment router",
		Long: `Serves the HTTP API, runs the automatic assignment sweep on its cron
schedule and fans events out to the SSE stream, Redis and the configured
Slack or Discord channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(log)
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	broker := telegraph.NewBroker()
	notifiers := telegraph.Multi{telegraph.Logger{Log: log}, broker}

	if cfg.Notify.Redis.URL != "" {
		pub, err := telegraph.NewRedisPublisher(ctx, telegraph.RedisOpts{
			URL:    cfg.Notify.Redis.URL,
			Prefix: cfg.Notify.Redis.Prefix,
			Logger: log,
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	adapters, err := createAdapters(cfg)
	if err != nil {
		return err
	}
	for _, adapter := range adapters {
		sink, err := telegraph.NewChatSink(telegraph.ChatSinkOpts{Adapter: adapter, Logger: log})
		if err != nil {
			return err
		}
		notifiers = append(notifiers, sink)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Run(ctx); err != nil {
				log.Error("chat sink stopped", "error", err)
			}
		}()
	}

	var trigger func()
	if !cfg.Router.Disabled {
		sweeper, err := dispatch.NewSweeper(dispatch.SweeperOpts{
			DB:       gormDB,
			Notifier: notifiers,
			Schedule: cfg.Router.SweepSchedule,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		trigger = sweeper.Trigger
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sweeper.Run(ctx); err != nil {
				log.Error("sweeper stopped", "error", err)
			}
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Assignment sweep scheduled %s\n", cfg.Router.SweepSchedule)
	}

	return api.Start(ctx, api.StartOpts{
		DB:            gormDB,
		Port:          cfg.Server.Port,
		Guard:         guardFromConfig(cfg),
		JWTSecret:     cfg.Auth.JWTSecret,
		MaxBodyLength: cfg.Messages.MaxBodyLength,
		Notifier:      notifiers,
		Broker:        broker,
		Trigger:       trigger,
		Logger:        log,
		Out:           cmd.OutOrStdout(),
	})
}

// createAdapters builds a chat adapter for every configured platform.
func createAdapters(cfg *config.Config) ([]telegraph.Adapter, error) {
	var adapters []telegraph.Adapter
	if cfg.Notify.Slack.BotToken != "" {
		a, err := slackadapter.New(slackadapter.AdapterOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Notify.Discord.BotToken != "" {
		a, err := discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
