package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sakif/skillbarter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, config.StoreSQLite, cfg.Store.Kind)
	assert.Equal(t, time.Hour, cfg.TokenDuration)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHub.CallbackURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvThenYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	t.Setenv("SKILLBARTER_ADDR", ":9000")
	t.Setenv("SKILLBARTER_TOKEN_DURATION", "30m")
	t.Setenv("SKILLBARTER_WORKERS", "8")
	t.Setenv("SKILLBARTER_SQLITE_PATH", "from-env.db")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  kind: sqlite
  sqlite_path: from-yaml.db
maps:
  api_key: maps-key
`), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.TokenDuration)
	assert.Equal(t, 8, cfg.Workers.Count)
	assert.Equal(t, "from-yaml.db", cfg.Store.SQLitePath, "yaml overrides env")
	assert.Equal(t, "maps-key", cfg.Maps.APIKey)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SKILLBARTER_SMTP_HOST=smtp.example.com\n"), 0o644))
	// godotenv.Load sets real environment variables; clear it afterwards.
	t.Setenv("SKILLBARTER_SMTP_HOST", "")
	os.Unsetenv("SKILLBARTER_SMTP_HOST")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
}

func TestLoadConfig_BadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("SKILLBARTER_TOKEN_DURATION", "forever")
	_, err := config.LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_UnknownYAMLKey(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key: 1\n"), 0o644))

	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{
			name:    "insecure jwt outside development",
			mutate:  func(c *config.Config) { c.Env = "production" },
			wantErr: true,
		},
		{
			name: "strong jwt in production",
			mutate: func(c *config.Config) {
				c.Env = "production"
				c.JWTSecret = "a-long-random-secret"
			},
		},
		{
			name:    "unknown store",
			mutate:  func(c *config.Config) { c.Store.Kind = "postgres" },
			wantErr: true,
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *config.Config) { c.Store.Kind = config.StoreMongo },
			wantErr: true,
		},
		{
			name: "mongo with uri",
			mutate: func(c *config.Config) {
				c.Store.Kind = config.StoreMongo
				c.Store.MongoURI = "mongodb://localhost:27017"
			},
		},
		{
			name:    "cloudinary without secret",
			mutate:  func(c *config.Config) { c.Images.CloudName = "demo" },
			wantErr: true,
		},
		{
			name:    "github without secret",
			mutate:  func(c *config.Config) { c.GitHub.ClientID = "id" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := config.Default()

	cfg.LogLevel = "warn"
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())

	cfg.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
