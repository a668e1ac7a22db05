package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajagshrestha/autofin-BE/internal/common"
)

func validViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.Set("llm.api_key", "sk-test")
	v.Set("google.client_id", "client-id")
	v.Set("google.client_secret", "client-secret")
	v.Set("google.pubsub_topic", "projects/autofin/topics/gmail")
	return v
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(validViper())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.Resync.Interval)
	assert.NotContains(t, cfg.Database.Path, "~", "path should be expanded")
}

func TestLoad_MissingRequiredSettings(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"api key", "llm.api_key"},
		{"client id", "google.client_id"},
		{"client secret", "google.client_secret"},
		{"pubsub topic", "google.pubsub_topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validViper()
			v.Set(tt.unset, "")

			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrMissingConfig)
		})
	}
}

func TestValidate_EmptyDatabasePath(t *testing.T) {
	v := validViper()
	v.Set("database.path", "")

	_, err := Load(v)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
