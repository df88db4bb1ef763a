package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8483", cfg.Addr)
	assert.Equal(t, "http://127.0.0.1:8483", cfg.BaseURL)
	assert.Equal(t, "birdsight.db", cfg.DBPath)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 350*time.Millisecond, cfg.PageDelay)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogJSON)
}

func TestLoad_env(t *testing.T) {
	t.Setenv("BIRDSIGHT_BASE_URL", "https://bs.example.com")
	t.Setenv("BIRDSIGHT_TRANSPORT", "stdio")
	t.Setenv("BIRDSIGHT_LOG_LEVEL", "debug")

	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "https://bs.example.com", cfg.BaseURL)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad transport", map[string]string{"BIRDSIGHT_TRANSPORT": "carrier-pigeon"}},
		{"bad base url", map[string]string{"BIRDSIGHT_BASE_URL": "not a url"}},
		{"bad log level", map[string]string{"BIRDSIGHT_LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			v := viper.New()
			SetDefaults(v)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}
