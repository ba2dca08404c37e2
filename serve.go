package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gensart-projs/openai-like-api/internal/auth"
	"github.com/gensart-projs/openai-like-api/internal/broker"
	"github.com/gensart-projs/openai-like-api/internal/config"
	"github.com/gensart-projs/openai-like-api/internal/gateway"
	"github.com/gensart-projs/openai-like-api/internal/policy"
	"github.com/gensart-projs/openai-like-api/internal/repository"
	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/gensart-projs/openai-like-api/internal/session"
	handler "github.com/gensart-projs/openai-like-api/internal/transport/http"
	"github.com/gensart-projs/openai-like-api/internal/transport/ws"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the public and internal HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Info().
		Int("http_port", cfg.HTTPPort).
		Int("internal_port", cfg.InternalPort).
		Str("database", cfg.DatabaseURL).
		Int("context_window", cfg.ContextWindow).
		Dur("completion_deadline", cfg.CompletionDeadline).
		Msg("starting gateway")

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "initializing store")
	}
	defer db.Close()

	for i := range cfg.Models {
		if err := db.UpsertModelConfig(ctx, &cfg.Models[i]); err != nil {
			return errors.Wrapf(err, "seeding model %s", cfg.Models[i].Slug)
		}
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return errors.Wrap(err, "initializing policy engine")
	}

	// Initialize service
	b := broker.New(0)
	catalog := gateway.NewCatalog(db)
	manager := session.NewManager(db, policyEngine, catalog, b, session.Options{ContextWindow: cfg.ContextWindow})
	gw := gateway.New(catalog, gateway.Options{
		Deadline: cfg.CompletionDeadline,
		Timeout:  cfg.UpstreamTimeout,
	})
	svc := service.New(manager, gw, b)

	// Servers
	verifier := auth.NewJWTVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	externalServer := handler.NewExternalServer(cfg, svc, verifier, ws.NewServer(cfg, svc, verifier))
	internalServer := handler.NewInternalServer(cfg, svc)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return start(externalServer, cfg.HTTPPort, "external") })
	g.Go(func() error { return start(internalServer, cfg.InternalPort, "internal") })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var firstErr error
		for _, e := range []*echo.Echo{externalServer, internalServer} {
			if err := e.Shutdown(shutdownCtx); err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, "shutting down server")
			}
		}
		return firstErr
	})

	err = g.Wait()
	log.Info().Msg("gateway stopped")
	return err
}

func start(e *echo.Echo, port int, name string) error {
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("server", name).Str("addr", addr).Msg("listening")
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "%s server", name)
	}
	return nil
}
