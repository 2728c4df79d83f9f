// Package bootstrap builds the configured stores and storage backend for
// both the server and the admin tool.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"gunnforge/internal/config"
	"gunnforge/internal/repository"
	"gunnforge/internal/repository/jsonfile"
	"gunnforge/internal/repository/sqlite"
	"gunnforge/internal/storage"
)

// Repositories groups the configured stores.
type Repositories struct {
	Users repository.UserRepository
	Files repository.MemberFileRepository

	db *sql.DB
}

// Close releases the database handle when the sqlite backend is in use.
func (r *Repositories) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Watchable returns the stores that can be refreshed from a watched file.
func (r *Repositories) Watchable() []jsonfile.Reloadable {
	var out []jsonfile.Reloadable
	for _, s := range []any{r.Users, r.Files} {
		if w, ok := s.(jsonfile.Reloadable); ok {
			out = append(out, w)
		}
	}
	return out
}

// OpenRepositories constructs and initialises the configured backend.
func OpenRepositories(ctx context.Context, cfg config.Config) (*Repositories, error) {
	repos := &Repositories{}
	switch cfg.Data.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		repos.db = db
		repos.Users = sqlite.NewUserRepository(db)
		repos.Files = sqlite.NewMemberFileRepository(db)
	default:
		repos.Users = jsonfile.NewUserStore(cfg.Data.UsersFile)
		repos.Files = jsonfile.NewManifestStore(cfg.Data.ManifestFile)
	}

	if err := repos.Users.Init(ctx); err != nil {
		repos.Close()
		return nil, fmt.Errorf("init user repository: %w", err)
	}
	if err := repos.Files.Init(ctx); err != nil {
		repos.Close()
		return nil, fmt.Errorf("init file repository: %w", err)
	}
	return repos, nil
}

// BuildStorage returns the member file backend named by storage.backend.
func BuildStorage(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (storage.Service, error) {
	if cfg.Storage.Backend != config.StorageS3 {
		local, err := storage.NewLocalService(cfg.Storage.Root)
		if err != nil {
			return nil, err
		}
		logger.Infof("serving member files from %s", local.Root())
		return local, nil
	}
	return BuildS3(ctx, cfg, logger)
}

// BuildS3 returns the S3 backend regardless of storage.backend.
func BuildS3(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*storage.S3Service, error) {
	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if strings.TrimSpace(cfg.Storage.Endpoint) != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, cfg.Storage.Bucket, cfg.Storage.KeyPrefix), nil
}

// NewLogger builds the logrus logger used by both binaries.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("unknown log level %q, using info", level)
	}
	return logger
}
