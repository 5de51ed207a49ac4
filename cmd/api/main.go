package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"form-analytics/pkg/api"
	"form-analytics/pkg/config"
	"form-analytics/pkg/middleware"
	"form-analytics/pkg/repository"
	"form-analytics/pkg/service"
)

type stores struct {
	users     repository.UserRepository
	templates repository.TemplateRepository
	responses repository.ResponseRepository
	close     func() error
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Error("storage setup failed", "type", cfg.DatabaseType, "error", err)
		os.Exit(1)
	}
	defer st.close()
	logger.Info("Storage ready", "type", cfg.DatabaseType)

	analyticsSvc := service.NewAnalyticsService(st.templates, st.responses, logger)
	responseSvc := service.NewResponseService(st.templates, st.responses, logger)
	auth := middleware.NewAuthenticator([]byte(cfg.JWTSecret), st.users, logger)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           api.NewRouter(api.NewHandler(analyticsSvc, responseSvc, logger), auth, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("Listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server closed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server closed")
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.DatabaseType {
	case config.DatabaseElasticsearch:
		es, err := repository.NewElasticClient(cfg.ElasticURLs)
		if err != nil {
			return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
		}
		if err := repository.EnsureElasticIndices(ctx, es, cfg.IndexPrefix); err != nil {
			return nil, err
		}
		return &stores{
			users:     repository.NewElasticUserRepository(es, cfg.IndexPrefix),
			templates: repository.NewElasticTemplateRepository(es, cfg.IndexPrefix),
			responses: repository.NewElasticResponseRepository(es, cfg.IndexPrefix),
			close:     func() error { return nil },
		}, nil

	case config.DatabasePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		if err := prepareSQL(ctx, db, repository.DialectPostgres); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			users:     repository.NewPostgresUserRepository(db),
			templates: repository.NewPostgresTemplateRepository(db),
			responses: repository.NewPostgresResponseRepository(db),
			close:     db.Close,
		}, nil

	default:
		db, err := repository.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := prepareSQL(ctx, db, repository.DialectSQLite); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			users:     repository.NewSQLiteUserRepository(db),
			templates: repository.NewSQLiteTemplateRepository(db),
			responses: repository.NewSQLiteResponseRepository(db),
			close:     db.Close,
		}, nil
	}
}

func prepareSQL(ctx context.Context, db *sql.DB, dialect repository.Dialect) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return repository.CreateSchema(ctx, db, dialect)
}
