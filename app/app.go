// app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/config"
	"github.com/dalemusser/addfriend/httputil"
	"github.com/dalemusser/addfriend/logging"
	"github.com/dalemusser/addfriend/metrics"
	"github.com/dalemusser/addfriend/server"
	"github.com/dalemusser/addfriend/version"
)

// Hooks are the integration points a service supplies to Run. C is the
// service config and D its bundle of backends.
type Hooks[C any, D any] struct {
	// Name is used in logs only.
	Name string

	// LoadConfig returns core and service config. It runs with the
	// bootstrap logger.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// ConnectDB dials backends. The context carries core.DBConnectTimeout.
	ConnectDB func(ctx context.Context, core *config.CoreConfig, cfg C, logger *zap.Logger) (D, error)

	// EnsureSchema runs startup tasks that need the backends. Optional.
	EnsureSchema func(ctx context.Context, core *config.CoreConfig, cfg C, db D, logger *zap.Logger) error

	// BuildHandler returns the complete handler. ctx lives as long as the
	// server, so background work started here stops with it.
	BuildHandler func(ctx context.Context, core *config.CoreConfig, cfg C, db D, m *metrics.Metrics, logger *zap.Logger) (http.Handler, error)

	// Shutdown releases backends after the server stops. Optional.
	Shutdown func(ctx context.Context, db D, logger *zap.Logger) error
}

// Run executes the startup sequence and blocks until ctx is canceled or a
// shutdown signal arrives:
//
//  1. bootstrap logger, config, final logger
//  2. metrics registry
//  3. ConnectDB, then EnsureSchema
//  4. BuildHandler, then serve until shutdown
//  5. Shutdown
func Run[C any, D any](ctx context.Context, hooks Hooks[C, D]) error {
	boot := logging.Bootstrap()
	defer func() { _ = boot.Sync() }()

	core, cfg, err := hooks.LoadConfig(boot)
	if err != nil {
		boot.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.Build(core.LogLevel, core.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("app", hooks.Name))
	logger.Info("starting",
		zap.String("version", version.Get().String()),
		zap.String("env", core.Env),
		zap.String("log_level", core.LogLevel))
	logger.Debug("core config", zap.String("config", core.Dump()))
	httputil.SetLogger(logger)

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, core.DBConnectTimeout)
	db, err := hooks.ConnectDB(connectCtx, core, cfg, logger)
	cancelConnect()
	if err != nil {
		logger.Error("backend connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}
	if hooks.Shutdown != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := hooks.Shutdown(sctx, db, logger); err != nil {
				logger.Warn("shutdown hook failed", zap.Error(err))
			}
		}()
	}

	if hooks.EnsureSchema != nil {
		schemaCtx, cancel := context.WithTimeout(ctx, core.DBConnectTimeout)
		err := hooks.EnsureSchema(schemaCtx, core, cfg, db, logger)
		cancel()
		if err != nil {
			logger.Error("startup tasks failed", zap.Error(err))
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	ctx, stop := server.WithShutdownSignals(ctx, logger)
	defer stop()

	handler, err := hooks.BuildHandler(ctx, core, cfg, db, m, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		return fmt.Errorf("build handler: %w", err)
	}

	if err := server.ListenAndServe(ctx, core, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
