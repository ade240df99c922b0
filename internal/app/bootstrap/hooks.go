// Package bootstrap wires addfriend into the app lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/app"
	"github.com/dalemusser/addfriend/config"
	"github.com/dalemusser/addfriend/health"
	"github.com/dalemusser/addfriend/internal/friendform"
	"github.com/dalemusser/addfriend/internal/identity"
	"github.com/dalemusser/addfriend/internal/web"
	"github.com/dalemusser/addfriend/metrics"
	"github.com/dalemusser/addfriend/middleware"
	"github.com/dalemusser/addfriend/router"
	"github.com/dalemusser/addfriend/templates"
	"github.com/dalemusser/addfriend/version"
)

const (
	// sweepEvery is how often idle forms are dropped.
	sweepEvery = time.Minute
	// limiterTTL is how long an unused rate limit bucket is kept.
	limiterTTL = 10 * time.Minute
)

// LoadConfig loads core config and the addfriend keys.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	core, values, err := config.Load(logger, config.Options{AppKeys: appKeys})
	if err != nil {
		return nil, AppConfig{}, err
	}
	cfg, err := buildAppConfig(core, values)
	if err != nil {
		return nil, AppConfig{}, err
	}
	if core.IsDev() && values.String("identity_secret") == "" {
		logger.Warn("identity_secret not set; using the dev secret")
	}
	return core, cfg, nil
}

// BuildHandler assembles the router, health, metrics and web routes.
func BuildHandler(ctx context.Context, core *config.CoreConfig, cfg AppConfig, deps DBDeps, m *metrics.Metrics, logger *zap.Logger) (http.Handler, error) {
	engine := templates.New(logger)
	if err := engine.Boot(); err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	forms := friendform.NewRegistry(m)
	go forms.Run(ctx, sweepEvery, cfg.FormIdleTimeout)

	var limiter *middleware.KeyLimiter
	if cfg.SubmitPerMinute > 0 {
		limiter = middleware.NewKeyLimiter(float64(cfg.SubmitPerMinute)/60, cfg.SubmitBurst)
		go limiter.Run(ctx, limiterTTL)
	}

	r := router.New(core, m, logger)
	r.Use(middleware.CORS(core))

	checks := map[string]health.Check{}
	if deps.Service != nil {
		checks["store"] = deps.Service.Store().Ping
	}
	health.Mount(r, checks, logger)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	version.Mount(r)

	opts := web.Options{
		Forms:     forms,
		Service:   deps.Service,
		Signer:    identity.NewSigner(cfg.IdentitySecret, "addfriend", cfg.IdentityTTL),
		Cookie:    cfg.IdentityCookie,
		CookieTTL: cfg.IdentityTTL,
		Secure:    core.HTTP.UseHTTPS,
		Dev:       core.IsDev(),
		APIKey:    cfg.APIKey,
		Engine:    engine,
		Blocks:    m,
		Logger:    logger,
		Limiter:   limiter,
	}
	if deps.Remote != nil {
		remote := deps.Remote
		opts.SenderFor = func(id string) friendform.Sender { return remote.For(id) }
	}
	if opts.SenderFor == nil && opts.Service == nil {
		return nil, fmt.Errorf("no friend request backend configured")
	}
	web.New(opts).Routes(r)

	logger.Info("routes mounted",
		zap.Bool("api", deps.Service != nil),
		zap.Bool("dev_login", core.IsDev()),
		zap.Duration("form_idle_timeout", cfg.FormIdleTimeout))
	return r, nil
}

// Hooks wires addfriend into app.Run.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:         "addfriend",
	LoadConfig:   LoadConfig,
	ConnectDB:    ConnectDB,
	EnsureSchema: EnsureSchema,
	BuildHandler: BuildHandler,
	Shutdown:     Shutdown,
}
