package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/tally/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "Tally", cfg.App.Name)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.Import.ApplyRules)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "ledger")
	t.Setenv("IMPORT_APPLY_RULES", "false")
	t.Setenv("IMPORT_DATE_FORMAT", "DD/MM/YYYY")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://postgres:@db:5432/ledger?sslmode=disable", cfg.ConnectionString())
	assert.False(t, cfg.Import.ApplyRules)
	assert.Equal(t, "DD/MM/YYYY", cfg.Import.DateFormat)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := config.Load()
	assert.Error(t, err)
}
