// Package config loads server configuration from flags, environment
// variables (BIRDSIGHT_* prefix) and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr" validate:"required"`
	// BaseURL is the externally visible address used when building
	// reconnection URLs handed to users.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db" validate:"required"`
	// Transport selects "http" (multi-tenant) or "stdio" (local).
	Transport string `mapstructure:"transport" validate:"oneof=http stdio"`
	// PageDelay is the pause between upstream result pages.
	PageDelay time.Duration `mapstructure:"page_delay" validate:"min=0"`
	// UpstreamBaseURL overrides the upstream API base (testing).
	UpstreamBaseURL string `mapstructure:"upstream_base_url" validate:"omitempty,url"`
	// Credential is a static upstream token for stdio serving; connections
	// without identifying parameters bind to it.
	Credential string `mapstructure:"credential"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	// LogJSON switches the operator log to JSON output.
	LogJSON bool `mapstructure:"log_json"`
}

// SetDefaults registers the default values on v.  Call before binding
// flags so flag values take precedence.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8483")
	v.SetDefault("base_url", "http://127.0.0.1:8483")
	v.SetDefault("db", "birdsight.db")
	v.SetDefault("transport", "http")
	v.SetDefault("page_delay", 350*time.Millisecond)
	v.SetDefault("log_level", "info")
}

// Load reads the environment into v and returns the validated Config.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("BIRDSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
