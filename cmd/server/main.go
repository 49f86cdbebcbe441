package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-site/pkg/simplesite"
	"github.com/tendant/simple-site/pkg/simplesite/api"
	"github.com/tendant/simple-site/pkg/simplesite/config"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	components, err := cfg.Build(ctx)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer components.Close()

	if cfg.Environment != "production" {
		if created, err := simplesite.SeedStarterContentBlockTypes(ctx, components.Service); err != nil {
			slog.Warn("Failed to seed starter content block types", "err", err)
		} else if len(created) > 0 {
			slog.Info("Seeded starter content block types", "count", len(created))
		}
	}

	tokens, err := api.NewTokenAuth(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		slog.Error("Failed to create token issuer", "err", err)
		os.Exit(1)
	}

	r := api.NewRouter(api.Deps{
		Service:        components.Service,
		Tokens:         tokens,
		Signer:         components.Signer,
		BlobStore:      components.BlobStore,
		PublicBaseURL:  cfg.PublicBaseURL,
		CORSOrigins:    cfg.CORSOrigins,
		SecureCookies:  cfg.Environment == "production",
		LoginPerMinute: cfg.LoginPerMinute,
		TrustProxy:     cfg.TrustProxy,
	})
	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	if cfg.APIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"platform": cfg.APIKeySHA256,
			},
		})
		if err != nil {
			slog.Error("Failed initialize API Key middleware", "err", err)
			os.Exit(1)
		}
		r.Route("/api/internal", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Mount("/", api.NewSystemHandler(components.Service).Routes())
		})
	} else {
		slog.Info("API_KEY_SHA256 not set; internal routes disabled")
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting simple-site", "port", cfg.Port, "environment", cfg.Environment,
			"database", cfg.DatabaseType, "storage", cfg.StorageType, "trust_proxy", cfg.TrustProxy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}
	slog.Info("Server exiting")
}
