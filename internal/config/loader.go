package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jakekausler/campaign-manager/internal/db"
)

// Config carries every knob the server wires at construction time. There is
// no global mutable configuration; consumers receive the values they need
// explicitly.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Timeline TimelineConfig
	Export   ExportConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// TimelineConfig holds version-resolution settings.
type TimelineConfig struct {
	// MaxAncestryDepth caps branch ancestry walks; exceeding it fails fast
	// instead of looping on a pathological branch tree.
	MaxAncestryDepth int
	// ClipAtFork bounds inherited lookups to times before each fork point,
	// so a child branch never sees ancestor versions created after it
	// diverged. Off by default.
	ClipAtFork bool
}

// ExportConfig holds history-export settings.
type ExportConfig struct {
	Directory string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Timeline: TimelineConfig{
			MaxAncestryDepth: 64,
			ClipAtFork:       false,
		},
		Export: ExportConfig{
			Directory: "",
		},
	}
}

// Load reads config.yaml from configPath, applying environment overrides
// (prefix CM, e.g. CM_DATABASE_HOST) on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CM")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("timeline.max_ancestry_depth")
	v.BindEnv("timeline.clip_at_fork")
	v.BindEnv("export.directory")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env.
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("timeline.max_ancestry_depth") {
		cfg.Timeline.MaxAncestryDepth = v.GetInt("timeline.max_ancestry_depth")
	}
	if v.IsSet("timeline.clip_at_fork") {
		cfg.Timeline.ClipAtFork = v.GetBool("timeline.clip_at_fork")
	}
	if v.IsSet("export.directory") {
		cfg.Export.Directory = v.GetString("export.directory")
	}

	return cfg, nil
}
