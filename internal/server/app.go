// Package server wires the lost & found backend together: database and
// migrations, object store, token and password services, federated login,
// and the HTTP and gRPC listeners with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/lostfound/internal/cryptox"
	"github.com/dmitrijs2005/lostfound/internal/logging"
	"github.com/dmitrijs2005/lostfound/internal/server/auth"
	"github.com/dmitrijs2005/lostfound/internal/server/blobstore"
	"github.com/dmitrijs2005/lostfound/internal/server/config"
	"github.com/dmitrijs2005/lostfound/internal/server/federated"
	"github.com/dmitrijs2005/lostfound/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/lostfound/internal/server/services"
	"golang.org/x/time/rate"

	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/lostfound/internal/server/grpc"
	hs "github.com/dmitrijs2005/lostfound/internal/server/http"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	httpServer  *hs.Server
	grpcServer  *gs.GRPCServer
}

// NewApp builds every component. It fails when the token secret is missing,
// the database is unreachable or migrations cannot be applied.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	tokens, err := auth.NewTokenService(c.SecretKey, c.AccessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	app, err := newApp(ctx, c, logger, db, tokens)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB, tokens *auth.TokenService) (*App, error) {
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, err := blobstore.NewS3Store(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	hasher := cryptox.NewPasswordHasher(cryptox.Argon2Params{
		Time:      c.PasswordHashTime,
		MemoryKiB: c.PasswordHashMemoryKiB,
	}, cryptox.WithMaxConcurrent(c.PasswordHashConcurrency))

	identity, err := services.NewIdentityService(db, rm, hasher, tokens, logger)
	if err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}
	media := services.NewMediaReconciler(store, logger)

	var provider federated.Provider
	if c.FederatedEnabled() {
		provider = federated.NewGoogleProvider(c)
	} else {
		logger.Warn(ctx, "federated login disabled, Google client credentials are not set")
	}

	handler := hs.NewHandler(
		identity,
		services.NewProfileService(db, rm, media),
		services.NewItemService(db, rm, media),
		provider,
		tokens,
		logger,
		hs.Options{
			ClientURL:      c.ClientURL,
			Production:     c.IsProduction(),
			MaxUploadBytes: c.MaxUploadBytes,
			AuthRateLimit:  rate.Limit(c.AuthRateLimit),
			AuthRateBurst:  c.AuthRateBurst,
		},
	)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		httpServer:  hs.NewServer(c.EndpointAddrHTTP, hs.NewRouter(handler), logger),
		grpcServer:  gs.NewGRPCServer(c.EndpointAddrGRPC, logger, rm),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "Signal received", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves HTTP and gRPC until a signal arrives, ctx is cancelled or one of
// the listeners fails; the other is then shut down too.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(ctx, cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	serve := func(name string, run func(context.Context) error) {
		defer wg.Done()
		if err := run(ctx); err != nil {
			app.logger.Error(ctx, "server failed", "server", name, "error", err)
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			mu.Unlock()
		}
		cancelFunc()
	}

	wg.Add(2)
	go serve("http", app.httpServer.Run)
	go serve("grpc", app.grpcServer.Run)
	wg.Wait()

	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("db close: %w", err))
	}
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return errors.Join(errs...)
}
