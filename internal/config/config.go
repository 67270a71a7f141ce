// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Database driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config is the top-level Switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Router   RouterConfig   `yaml:"router"`
	Access   AccessConfig   `yaml:"access"`
	Auth     AuthConfig     `yaml:"auth"`
	Messages MessagesConfig `yaml:"messages"`
	Log      LogConfig      `yaml:"log"`
	Notify   NotifyConfig   `yaml:"notify"`
	Agents   []AgentConfig  `yaml:"agents"`
}

// DatabaseConfig holds connection settings for the session store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite file, ":memory:" allowed
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RouterConfig controls the automatic assignment sweep.
type RouterConfig struct {
	SweepSchedule string `yaml:"sweep_schedule"` // robfig/cron spec, e.g. "@every 15s"
	Disabled      bool   `yaml:"disabled"`
}

// AccessConfig lists roles that bypass participant checks.
type AccessConfig struct {
	PrivilegedRoles []string `yaml:"privileged_roles"`
}

// AuthConfig enables bearer-token identity on the API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// MessagesConfig bounds message bodies.
type MessagesConfig struct {
	MaxBodyLength int `yaml:"max_body_length"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// NotifyConfig configures event fan-out targets. Every target is optional.
type NotifyConfig struct {
	Redis   RedisConfig   `yaml:"redis"`
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// RedisConfig publishes events over Redis pub/sub.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// SlackConfig posts queue events to an agent team channel.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig posts queue events to an agent team channel.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// AgentConfig seeds an agent status row on db init.
type AgentConfig struct {
	ID            string `yaml:"id"`
	Presence      string `yaml:"presence"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	AutoAssign    bool   `yaml:"auto_assign"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverMySQL
	}
	if c.Database.Driver == DriverMySQL {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "switchboard"
		}
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = "switchboard.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Router.SweepSchedule == "" {
		c.Router.SweepSchedule = "@every 15s"
	}
	if len(c.Access.PrivilegedRoles) == 0 {
		c.Access.PrivilegedRoles = []string{"admin", "supervisor"}
	}
	if c.Messages.MaxBodyLength == 0 {
		c.Messages.MaxBodyLength = 4000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Notify.Redis.URL != "" && c.Notify.Redis.Prefix == "" {
		c.Notify.Redis.Prefix = "switchboard"
	}
	for i := range c.Agents {
		if c.Agents[i].Presence == "" {
			c.Agents[i].Presence = "offline"
		}
		if c.Agents[i].MaxConcurrent == 0 {
			c.Agents[i].MaxConcurrent = 1
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if _, err := cron.ParseStandard(c.Router.SweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("router.sweep_schedule %q: %v", c.Router.SweepSchedule, err))
	}
	if c.Messages.MaxBodyLength < 0 {
		errs = append(errs, "messages.max_body_length must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if (c.Notify.Slack.BotToken == "") != (c.Notify.Slack.ChannelID == "") {
		errs = append(errs, "notify.slack needs both bot_token and channel_id")
	}
	if (c.Notify.Discord.BotToken == "") != (c.Notify.Discord.ChannelID == "") {
		errs = append(errs, "notify.discord needs both bot_token and channel_id")
	}
	seen := make(map[string]bool)
	for i, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("agents[%d].id is required", i))
		} else if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("agents[%d].id %q is duplicated", i, a.ID))
		}
		seen[a.ID] = true
		switch a.Presence {
		case "online", "offline", "busy":
		default:
			errs = append(errs, fmt.Sprintf("agents[%d].presence %q must be online, offline or busy", i, a.Presence))
		}
		if a.MaxConcurrent < 1 {
			errs = append(errs, fmt.Sprintf("agents[%d].max_concurrent must be at least 1", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
