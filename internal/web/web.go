// Package web serves the add-friend page, its HTMX endpoints and the
// friend-request JSON API.
package web

import (
	"embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/auth/apikey"
	"github.com/dalemusser/addfriend/httputil"
	"github.com/dalemusser/addfriend/internal/friendform"
	"github.com/dalemusser/addfriend/internal/friendreq"
	"github.com/dalemusser/addfriend/internal/identity"
	"github.com/dalemusser/addfriend/middleware"
	"github.com/dalemusser/addfriend/templates"
)

//go:embed templates
var templateFS embed.FS

func init() {
	templates.Register(templates.Set{
		Name:     "shared",
		FS:       templateFS,
		Patterns: []string{"templates/shared/*.gohtml"},
	})
	templates.Register(templates.Set{
		Name:     "web",
		FS:       templateFS,
		Patterns: []string{"templates/pages/*.gohtml"},
	})
}

// SenderFor returns the collaborator that sends requests on behalf of the
// signed-in user requesterID.
type SenderFor func(requesterID string) friendform.Sender

// BlockRecorder counts submissions refused before reaching the sender.
type BlockRecorder interface {
	Blocked(reason string)
}

// Options wires a Handler. Service is optional; without it the JSON API and
// dev user lookup are not mounted and SenderFor must be set.
type Options struct {
	Forms     *friendform.Registry
	SenderFor SenderFor
	Service   *friendreq.Service
	Signer    *identity.Signer
	Cookie    string
	CookieTTL time.Duration
	Secure    bool
	Dev       bool
	APIKey    string
	Engine    *templates.Engine
	Blocks    BlockRecorder
	Logger    *zap.Logger

	// Limiter caps submissions per user on the form and per client on the
	// API. Nil disables limiting.
	Limiter *middleware.KeyLimiter
}

// Handler holds the dependencies of the routes.
type Handler struct {
	forms     *friendform.Registry
	senderFor SenderFor
	service   *friendreq.Service
	signer    *identity.Signer
	cookie    string
	cookieTTL time.Duration
	secure    bool
	dev       bool
	apiKey    string
	engine    *templates.Engine
	blocks    BlockRecorder
	logger    *zap.Logger
	limiter   *middleware.KeyLimiter
}

// New builds a Handler. When SenderFor is nil the local Service is used.
func New(o Options) *Handler {
	h := &Handler{
		forms:     o.Forms,
		senderFor: o.SenderFor,
		service:   o.Service,
		signer:    o.Signer,
		cookie:    o.Cookie,
		cookieTTL: o.CookieTTL,
		secure:    o.Secure,
		dev:       o.Dev,
		apiKey:    o.APIKey,
		engine:    o.Engine,
		blocks:    o.Blocks,
		logger:    o.Logger,
		limiter:   o.Limiter,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.forms == nil {
		h.forms = friendform.NewRegistry(nil)
	}
	if h.cookie == "" {
		h.cookie = identity.DefaultCookie
	}
	if h.cookieTTL <= 0 {
		h.cookieTTL = 12 * time.Hour
	}
	if h.senderFor == nil && h.service != nil {
		svc := h.service
		h.senderFor = func(id string) friendform.Sender { return svc.For(id) }
	}
	return h
}

// Routes mounts the pages and the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/friends/add", http.StatusSeeOther)
	})

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(h.signer, h.cookie, h.logger))
		if h.dev {
			r.Get("/dev/login", h.devLogin)
			r.Post("/dev/logout", h.devLogout)
		}
		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)
			r.Get("/friends/add", h.showForm)
			r.Post("/friends/add/validate", h.validate)
			r.With(middleware.RateLimit(h.limiter, userLimitKey, h.formLimited)).
				Post("/friends/add", h.submit)
		})
	})

	if h.service != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(apikey.Require(h.apiKey, "addfriend-api", h.logger))
			r.With(
				middleware.RateLimit(h.limiter, clientLimitKey, h.apiLimited),
				middleware.RequireJSON,
			).Post("/friend-requests", h.apiAdd)
			r.Get("/users/{id}/friend-requests", h.apiIncoming)
		})
	}
}

// requireUser sends browsers to the dev login in dev, otherwise answers 401.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		if h.dev && r.Method == http.MethodGet {
			http.Redirect(w, r, "/dev/login", http.StatusSeeOther)
			return
		}
		identity.Require(next).ServeHTTP(w, r)
	})
}

func userLimitKey(r *http.Request) string {
	u, _ := identity.FromContext(r.Context())
	return "user:" + u.ID
}

func clientLimitKey(r *http.Request) string {
	return "api:" + middleware.ClientIP(r)
}

func (h *Handler) formLimited(w http.ResponseWriter, r *http.Request) {
	h.block("rate_limited")
	http.Error(w, "Too many friend requests. Please wait a moment.", http.StatusTooManyRequests)
}

func (h *Handler) apiLimited(w http.ResponseWriter, r *http.Request) {
	h.block("rate_limited")
	httputil.JSONError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
}
