// Package server wires the account services together and runs the HTTP API,
// the gRPC health endpoint and the maintenance scheduler until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/notify"
	"github.com/dmitrijs2005/accountkeeper/internal/security"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/accountkeeper/internal/server/jobs"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
	"github.com/dmitrijs2005/accountkeeper/internal/server/storage"
	"github.com/dmitrijs2005/accountkeeper/internal/timex"

	gs "github.com/dmitrijs2005/accountkeeper/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	publisher  notify.Publisher
	httpServer *http.Server
	grpcServer *gs.GRPCServer
	scheduler  *jobs.Scheduler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	publisher, err := newPublisher(c, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	presigner, err := storage.NewS3Presigner(ctx, storage.S3Options{
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		Endpoint:  c.S3BaseEndpoint,
	})
	if err != nil {
		publisher.Close()
		db.Close()
		return nil, fmt.Errorf("s3 init error: %w", err)
	}

	deps := services.Deps{
		DB:          db,
		RepoManager: rm,
		Hasher:      cryptox.NewBcryptHasher(c.BcryptCost),
		Clock:       timex.SystemClock{},
		Publisher:   publisher,
		Logger:      logger,
	}

	accountService := services.NewAccountService(deps)
	authService := services.NewAuthService(deps, []byte(c.SecretKey), c.AccessTokenValidityDuration)
	exportService := services.NewExportService(deps, presigner, &http.Client{Timeout: 30 * time.Second})
	resetService, err := services.NewPasswordResetService(deps, security.RandomTokenGenerator{}, c.ResetTokenValidityHours)
	if err != nil {
		publisher.Close()
		db.Close()
		return nil, err
	}

	scheduler, err := jobs.NewScheduler(resetService, logger, c.TokenPurgeSchedule)
	if err != nil {
		publisher.Close()
		db.Close()
		return nil, err
	}

	h := httpapi.NewHandler(accountService, authService, resetService, exportService, logger)
	router := httpapi.NewRouter(h, httpapi.Options{
		CORSOrigins:    c.CORSOrigins,
		LoginRateLimit: c.LoginRateLimit,
		LoginRateBurst: c.LoginRateBurst,
	})

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		publisher: publisher,
		httpServer: &http.Server{
			Addr:              c.EndpointAddrHTTP,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		grpcServer: gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db),
		scheduler:  scheduler,
	}, nil
}

// newPublisher connects to the broker when one is configured and otherwise
// falls back to logging events.
func newPublisher(c *config.Config, l logging.Logger) (notify.Publisher, error) {
	if c.AMQPURL == "" {
		l.Info(context.Background(), "no AMQP broker configured, events will only be logged")
		return notify.NewLogPublisher(l), nil
	}

	p, err := notify.NewAMQPPublisher(c.AMQPURL, c.AMQPExchange)
	if err != nil {
		return nil, fmt.Errorf("amqp init error: %w", err)
	}
	return p, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	go func() {
		<-ctx.Done()
		app.logger.Info(context.Background(), "Stopping HTTP server...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.httpServer.Shutdown(sctx); err != nil {
			app.logger.Error(sctx, "http shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.httpServer.Addr)

	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or one of the servers fails, then
// releases the broker connection and the database pool.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.scheduler.Run(ctx)
	}()

	wg.Wait()

	if err := app.publisher.Close(); err != nil {
		app.logger.Error(context.Background(), "publisher close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err)
	}

	app.logger.Info(context.Background(), "App stopped")
}
