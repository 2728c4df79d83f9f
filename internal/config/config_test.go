package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "auth-token", cfg.Auth.CookieName)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, BackendJSON, cfg.Data.Backend)
	assert.Equal(t, "data/users.json", cfg.Data.UsersFile)
	assert.Equal(t, "data/member-files.json", cfg.Data.ManifestFile)
	assert.False(t, cfg.Data.Watch)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, "data/member-files", cfg.Storage.Root)
	assert.Equal(t, "member-files", cfg.Storage.KeyPrefix)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("GUNNFORGE_SERVER_ADDR", "127.0.0.1:8080")
	t.Setenv("GUNNFORGE_SERVER_ALLOWEDORIGINS", "https://a.example,https://b.example")
	t.Setenv("GUNNFORGE_AUTH_JWTSECRET", "s3cret")
	t.Setenv("GUNNFORGE_AUTH_TOKENTTL", "2h")
	t.Setenv("GUNNFORGE_AUTH_COOKIESECURE", "false")
	t.Setenv("GUNNFORGE_DATA_BACKEND", "sqlite")
	t.Setenv("GUNNFORGE_DATA_WATCH", "true")
	t.Setenv("GUNNFORGE_STORAGE_BACKEND", "s3")
	t.Setenv("GUNNFORGE_STORAGE_BUCKET", "gunnforge-members")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Auth.CookieSecure)
	assert.Equal(t, BackendSQLite, cfg.Data.Backend)
	assert.True(t, cfg.Data.Watch)
	assert.Equal(t, StorageS3, cfg.Storage.Backend)
	assert.Equal(t, "gunnforge-members", cfg.Storage.Bucket)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("GUNNFORGE_DATA_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.Data.Backend = BackendJSON
		c.Storage.Backend = StorageLocal
		c.Auth.TokenTTL = time.Hour
		return c
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"unknown data backend":    func(c *Config) { c.Data.Backend = "csv" },
		"unknown storage backend": func(c *Config) { c.Storage.Backend = "ftp" },
		"s3 without bucket":       func(c *Config) { c.Storage.Backend = StorageS3 },
		"zero ttl":                func(c *Config) { c.Auth.TokenTTL = 0 },
		"negative ttl":            func(c *Config) { c.Auth.TokenTTL = -time.Minute },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
