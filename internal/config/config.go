package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr           string
		AllowedOrigins []string
	}
	Auth struct {
		JWTSecret    string
		TokenTTL     time.Duration
		CookieName   string
		CookieSecure bool
	}
	Data struct {
		Backend      string
		UsersFile    string
		ManifestFile string
		Watch        bool
	}
	Database struct {
		Path string
	}
	Storage struct {
		Backend   string
		Root      string
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Log struct {
		Level string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("GUNNFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:3000")
	v.SetDefault("server.allowedorigins", []string{})
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", "168h")
	v.SetDefault("auth.cookiename", "auth-token")
	v.SetDefault("auth.cookiesecure", true)
	v.SetDefault("data.backend", BackendJSON)
	v.SetDefault("data.usersfile", "data/users.json")
	v.SetDefault("data.manifestfile", "data/member-files.json")
	v.SetDefault("data.watch", false)
	v.SetDefault("database.path", "data/gunnforge.db")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.root", "data/member-files")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "member-files")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings. Secrets are checked by the
// binaries that need them.
func (c Config) Validate() error {
	switch c.Data.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown data backend %q", c.Data.Backend)
	}
	switch c.Storage.Backend {
	case StorageLocal, StorageS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == StorageS3 && c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required for the s3 backend")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}
	return nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
