package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gunnforge/internal/auth"
	"gunnforge/internal/bootstrap"
	"gunnforge/internal/config"
	"gunnforge/internal/gateway"
	apphttp "gunnforge/internal/http"
	"gunnforge/internal/repository/jsonfile"
	"gunnforge/internal/service"
)

func main() {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}
	if !cfg.Auth.CookieSecure {
		logger.Warn("session cookie is not marked secure; only use this behind plain HTTP in development")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := bootstrap.OpenRepositories(ctx, cfg)
	if err != nil {
		logger.Fatalf("open repositories: %v", err)
	}
	defer repos.Close()

	if cfg.Data.Watch {
		if err := jsonfile.Watch(ctx, logger, repos.Watchable()...); err != nil {
			logger.Warnf("watch data files: %v", err)
		}
	}

	storageSvc, err := bootstrap.BuildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatalf("setup auth: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Options{
		Users:          service.NewUserService(repos.Users),
		Files:          repos.Files,
		Gateway:        gateway.New(repos.Files, storageSvc),
		Auth:           authenticator,
		Cookies:        auth.NewCookieManager(authenticator, cfg.Auth.CookieName, cfg.Auth.CookieSecure),
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

// loadConfig returns the configuration with a logger at its level. When the
// configuration cannot be loaded the logger stays at info.
func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, bootstrap.NewLogger("info"), err
	}
	return cfg, bootstrap.NewLogger(cfg.Log.Level), nil
}
