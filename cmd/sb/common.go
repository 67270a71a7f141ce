package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"gorm.io/gorm"
)

// connectFromConfig loads the config and opens the session store it names.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", describeDB(cfg.Database), err)
	}
	return cfg, gormDB, nil
}

// describeDB names the configured store for messages.
func describeDB(c config.DatabaseConfig) string {
	if c.Driver == config.DriverSQLite {
		return "sqlite " + c.Path
	}
	return fmt.Sprintf("mysql %s:%d/%s", c.Host, c.Port, c.Name)
}

// newLogger builds the slog logger described by the log config.
func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// guardFromConfig builds the access guard with the configured privileged roles.
func guardFromConfig(cfg *config.Config) access.Guard {
	return access.NewGuard(cfg.Access.PrivilegedRoles...)
}

// actorFlags are the --as/--role flags of commands acting for a user.
type actorFlags struct {
	id   string
	role string
}

func (f *actorFlags) register(cmd *cobra.Command, usage string) {
	cmd.Flags().StringVar(&f.id, "as", "", usage+" (required)")
	cmd.Flags().StringVar(&f.role, "role", "", "role of the acting user, e.g. admin")
	_ = cmd.MarkFlagRequired("as")
}

func (f *actorFlags) actor() access.Actor {
	return access.Actor{ID: f.id, Role: f.role}
}
