// Package config provides centralized configuration for the revgraph
// backend. Values come from defaults, an optional revgraph.yaml, and
// REVGRAPH_* environment variables, in increasing precedence.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds application-wide configuration. The engine consumes it
// read-only.
type Config struct {
	// ListenAddr is the HTTP boundary address.
	ListenAddr string `mapstructure:"listen"`
	// Workspace is the directory to open on startup.
	Workspace string `mapstructure:"workspace"`
	// ImmutableRevset marks the commits that may not be rewritten without
	// an explicit override.
	ImmutableRevset string `mapstructure:"immutable-revset"`
	// PageSize bounds one log page.
	PageSize int `mapstructure:"page-size"`
	// LargeRepoThreshold is the commit count above which optional expensive
	// checks are skipped.
	LargeRepoThreshold int `mapstructure:"large-repo-threshold"`
	// AuthorName and AuthorEmail sign commits created by mutations.
	AuthorName  string `mapstructure:"author-name"`
	AuthorEmail string `mapstructure:"author-email"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:         ":8092",
		Workspace:          ".",
		ImmutableRevset:    "::bookmarks() | tags()",
		PageSize:           50,
		LargeRepoThreshold: 100000,
		AuthorName:         "revgraph",
		AuthorEmail:        "revgraph@localhost",
	}
}

// Load reads configuration through viper.
func Load(v *viper.Viper) (*Config, error) {
	def := Default()
	v.SetDefault("listen", def.ListenAddr)
	v.SetDefault("workspace", def.Workspace)
	v.SetDefault("immutable-revset", def.ImmutableRevset)
	v.SetDefault("page-size", def.PageSize)
	v.SetDefault("large-repo-threshold", def.LargeRepoThreshold)
	v.SetDefault("author-name", def.AuthorName)
	v.SetDefault("author-email", def.AuthorEmail)

	v.SetConfigName("revgraph")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("REVGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	if cfg.PageSize <= 0 {
		return nil, errors.Errorf("page-size must be positive, got %d", cfg.PageSize)
	}
	return cfg, nil
}
