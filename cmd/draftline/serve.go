package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/draftline/draftline/internal/config"
	"github.com/draftline/draftline/internal/engine/reader"
	"github.com/draftline/draftline/internal/engine/relation"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/engine/workspace"
	"github.com/draftline/draftline/internal/engine/writer"
	"github.com/draftline/draftline/internal/session"
	"github.com/draftline/draftline/internal/storage"
	"github.com/draftline/draftline/internal/web"
)

// newServeCommand creates the serve command
func newServeCommand() *cobra.Command {
	var devLogging bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the record API server",
		Long: `Load the schema registry, connect to the database and serve the
record API over HTTP. Configuration is read from draftline.yml in the
working directory, overridable through DRAFTLINE_* environment variables.`,
		Example: `  # Serve with draftline.yml from the working directory
  draftline serve

  # Human-readable log output during development
  draftline serve --dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(devLogging)
		},
	}

	cmd.Flags().BoolVar(&devLogging, "dev", false, "Use human-readable development logging")
	return cmd
}

func runServe(devLogging bool) error {
	log, err := buildLogger(devLogging)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := schema.Load(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	log.Info("registry loaded",
		zap.String("path", cfg.RegistryPath),
		zap.Int("tables", reg.Count()),
	)

	db, err := sql.Open(cfg.Database.Driver, config.DatabaseURL(cfg))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	store := storage.NewSQLStore(db, reg, cfg.Database.Driver, log)
	codec := value.NewCodec(reg)
	overlay := workspace.NewOverlay(reg, store)

	var resolverOpts []relation.Option
	if cfg.Relations.FilterJunctionTargets {
		resolverOpts = append(resolverOpts, relation.WithJunctionTargetFilter())
	}
	resolver := relation.NewResolver(reg, store, codec, schema.NewPassthroughTranslator(), resolverOpts...)

	rd := reader.NewReader(reg, store, codec, resolver, log)
	wr := writer.NewWriter(reg, store, store, codec, overlay, log)

	sessionStore, closeStore, err := buildSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	sessions := session.NewManager(sessionStore, cfg.Session.DefaultWorkspace)

	srv := web.NewServer(cfg.Server.Addr(), reg, rd, wr, sessions, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildSessionStore selects the session backend from config
func buildSessionStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case "redis":
		rc := session.DefaultRedisConfig(cfg.Session.RedisAddr)
		rc.Password = cfg.Session.RedisPassword
		store := session.NewRedisStore(rc)
		return store, func() { store.Close() }, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}
