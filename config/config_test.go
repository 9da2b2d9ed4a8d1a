package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTempPaths(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("STAGING_DIR", filepath.Join(dir, "staging"))
	t.Setenv("SETTINGS_PATH", filepath.Join(dir, "settings", "settings.yaml"))
	t.Setenv("DB_PATH", filepath.Join(dir, "db", "reelflow.db"))
	t.Setenv("ASSETS_LOCAL_DIR", filepath.Join(dir, "assets"))
	return dir
}

func TestLoadConfig(t *testing.T) {
	dir := setTempPaths(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("READ_TIMEOUT", "10s")
	t.Setenv("PIPELINE_MAX_ATTEMPTS", "5")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)

	// defaults
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 70, cfg.Pipeline.DefaultMinScore)
	assert.Equal(t, 5, cfg.Pipeline.MaxSourceAccounts)
	assert.Equal(t, 5, cfg.Pipeline.MaxChannels)
	assert.Equal(t, "24", cfg.YouTube.CategoryID)
	assert.Equal(t, "0 6 * * *", cfg.Scheduler.SweepSpec)
	assert.Equal(t, "5 0 * * *", cfg.Scheduler.QuotaRetrySpec)
	assert.Equal(t, "hooks", cfg.Assets.Collection)

	for _, sub := range []string{"raw", "processed"} {
		info, err := os.Stat(filepath.Join(dir, "staging", sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	setTempPaths(t)
	t.Setenv("PIPELINE_WORKERS", "many")
	t.Setenv("AI_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "defaults",
			wantErr: false,
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"DB_DRIVER": "mysql"},
			wantErr: true,
		},
		{
			name:    "postgres without dsn",
			env:     map[string]string{"DB_DRIVER": "postgres"},
			wantErr: true,
		},
		{
			name:    "postgres with dsn",
			env:     map[string]string{"DB_DRIVER": "postgres", "DATABASE_URL": "postgres://localhost/reelflow"},
			wantErr: false,
		},
		{
			name:    "unknown ai provider",
			env:     map[string]string{"AI_PROVIDER": "mystery"},
			wantErr: true,
		},
		{
			name:    "min score out of range",
			env:     map[string]string{"PIPELINE_DEFAULT_MIN_SCORE": "150"},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			env:     map[string]string{"YOUTUBE_UPLOAD_TIMEOUT": "-1s"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTempPaths(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
