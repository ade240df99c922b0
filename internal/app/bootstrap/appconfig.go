package bootstrap

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/addfriend/config"
	"github.com/dalemusser/addfriend/internal/emailschema"
	"github.com/dalemusser/addfriend/internal/friendreq"
)

// devSecret signs dev-environment session cookies when identity_secret is
// unset. It is rejected in prod.
const devSecret = "addfriend-dev-only-secret"

// AppConfig holds the addfriend-specific settings.
type AppConfig struct {
	// Local store. Empty RedisURL means an in-memory store.
	RedisURL       string
	RedisKeyPrefix string

	// Remote friend service. When set, the form sends requests there and
	// the local store and JSON API are not used.
	FriendServiceURL     string
	FriendServiceAPIKey  string
	FriendServiceTimeout time.Duration

	// APIKey guards /api on this process.
	APIKey string

	IdentitySecret string
	IdentityCookie string
	IdentityTTL    time.Duration

	FormIdleTimeout time.Duration

	// SubmitPerMinute limits friend-request submissions per user (form)
	// and per client (API). Zero disables the limit.
	SubmitPerMinute int
	SubmitBurst     int

	Mail        friendreq.MailConfig
	SeedUsers   []friendreq.User
	SeedFriends [][2]string
}

// Remote reports whether requests go to a remote friend service.
func (c AppConfig) Remote() bool { return c.FriendServiceURL != "" }

// appKeys are loaded with the core keys, e.g. --redis_url or
// ADDFRIEND_REDIS_URL.
var appKeys = []config.AppKey{
	{Name: "redis_url", Default: "", Desc: "Redis URL for users and requests (empty = in-memory)"},
	{Name: "redis_key_prefix", Default: "addfriend:", Desc: "Prefix for every Redis key"},
	{Name: "friend_service_url", Default: "", Desc: "Base URL of a remote friend service"},
	{Name: "friend_service_api_key", Default: "", Desc: "API key for the remote friend service"},
	{Name: "friend_service_timeout", Default: 10 * time.Second, Desc: "Per-request timeout for the remote friend service"},
	{Name: "api_key", Default: "", Desc: "API key required on /api"},
	{Name: "identity_secret", Default: "", Desc: "HMAC secret for session tokens"},
	{Name: "identity_cookie", Default: "addfriend_session", Desc: "Session cookie name"},
	{Name: "identity_ttl", Default: 12 * time.Hour, Desc: "Session lifetime"},
	{Name: "form_idle_timeout", Default: 30 * time.Minute, Desc: "Drop a user's form after this long unused"},
	{Name: "submit_per_minute", Default: 30, Desc: "Friend requests per minute per user (0 = unlimited)"},
	{Name: "submit_burst", Default: 10, Desc: "Friend requests allowed in a burst"},
	{Name: "smtp_host", Default: "", Desc: "SMTP host for request notifications (empty = off)"},
	{Name: "smtp_port", Default: 587, Desc: "SMTP port"},
	{Name: "smtp_username", Default: "", Desc: "SMTP username"},
	{Name: "smtp_password", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "", Desc: "From address for notifications"},
	{Name: "seed_users", Default: []string{}, Desc: `Users to create at startup, e.g. ["Alice <alice@example.com>"]`},
	{Name: "seed_friends", Default: []string{}, Desc: `Friendships between seeded users, e.g. ["alice@example.com bob@example.com"]`},
}

// buildAppConfig turns loaded values into AppConfig and validates them
// against the environment.
func buildAppConfig(core *config.CoreConfig, v config.AppConfigValues) (AppConfig, error) {
	cfg := AppConfig{
		RedisURL:             v.String("redis_url"),
		RedisKeyPrefix:       v.String("redis_key_prefix"),
		FriendServiceURL:     strings.TrimRight(v.String("friend_service_url"), "/"),
		FriendServiceAPIKey:  v.String("friend_service_api_key"),
		FriendServiceTimeout: v.Duration("friend_service_timeout", 10*time.Second),
		APIKey:               v.String("api_key"),
		IdentitySecret:       v.String("identity_secret"),
		IdentityCookie:       v.String("identity_cookie"),
		IdentityTTL:          v.Duration("identity_ttl", 12*time.Hour),
		FormIdleTimeout:      v.Duration("form_idle_timeout", 30*time.Minute),
		SubmitPerMinute:      v.Int("submit_per_minute"),
		SubmitBurst:          v.Int("submit_burst"),
		Mail: friendreq.MailConfig{
			Host:     v.String("smtp_host"),
			Port:     v.Int("smtp_port"),
			Username: v.String("smtp_username"),
			Password: v.String("smtp_password"),
			From:     v.String("mail_from"),
		},
	}

	var p config.Problems
	prod := !core.IsDev()

	switch {
	case cfg.IdentitySecret == "" && prod:
		p.Missing("identity_secret")
	case cfg.IdentitySecret == "":
		cfg.IdentitySecret = devSecret
	case len(cfg.IdentitySecret) < 16:
		p.Invalid("identity_secret must be at least 16 bytes")
	}
	if prod && cfg.IdentitySecret == devSecret {
		p.Invalid("identity_secret must not be the dev default in prod")
	}

	if cfg.IdentityTTL <= 0 {
		p.Invalid("identity_ttl must be positive")
	}
	if cfg.FormIdleTimeout <= 0 {
		p.Invalid("form_idle_timeout must be positive")
	}

	if cfg.SubmitPerMinute < 0 {
		p.Invalid("submit_per_minute must not be negative")
	}
	if cfg.SubmitPerMinute > 0 && cfg.SubmitBurst < 1 {
		p.Invalid("submit_burst must be at least 1 when submit_per_minute is set")
	}

	if cfg.Remote() {
		u, err := url.Parse(cfg.FriendServiceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			p.Invalid("friend_service_url must be an absolute http(s) URL, got %q", cfg.FriendServiceURL)
		}
		if cfg.FriendServiceAPIKey == "" {
			p.Missing("friend_service_api_key when friend_service_url is set")
		}
	} else {
		if cfg.RedisURL != "" && !strings.HasPrefix(cfg.RedisURL, "redis://") && !strings.HasPrefix(cfg.RedisURL, "rediss://") {
			p.Invalid("redis_url must start with redis:// or rediss://")
		}
		if prod && cfg.APIKey == "" {
			p.Missing("api_key (guards /api)")
		}
	}

	if cfg.Mail.Host != "" {
		if cfg.Mail.Port <= 0 || cfg.Mail.Port > 65535 {
			p.Invalid("smtp_port must be in 1..65535, got %d", cfg.Mail.Port)
		}
		if cfg.Mail.From == "" {
			p.Missing("mail_from when smtp_host is set")
		} else if _, err := emailschema.Parse(cfg.Mail.From); err != nil {
			p.Invalid("mail_from: %v", err)
		}
	}

	for _, raw := range v.StringSlice("seed_users") {
		u, err := parseSeedUser(raw)
		if err != nil {
			p.Invalid("seed_users: %v", err)
			continue
		}
		cfg.SeedUsers = append(cfg.SeedUsers, u)
	}

	for _, raw := range v.StringSlice("seed_friends") {
		pair, err := parseFriendPair(raw)
		if err != nil {
			p.Invalid("seed_friends: %v", err)
			continue
		}
		cfg.SeedFriends = append(cfg.SeedFriends, pair)
	}

	if err := p.Err("app configuration errors"); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// parseSeedUser accepts "alice@example.com" or "Alice <alice@example.com>".
// The address must also pass the form's email schema.
func parseSeedUser(raw string) (friendreq.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return friendreq.User{}, fmt.Errorf("%q: %w", raw, err)
	}
	rec, err := emailschema.Parse(addr.Address)
	if err != nil {
		return friendreq.User{}, fmt.Errorf("%q: %w", raw, err)
	}
	return friendreq.User{Email: rec.Email, Name: addr.Name}, nil
}

// parseFriendPair accepts two addresses separated by spaces or a comma.
func parseFriendPair(raw string) ([2]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 2 {
		return [2]string{}, fmt.Errorf("%q: want two email addresses", raw)
	}
	var pair [2]string
	for i, f := range fields {
		rec, err := emailschema.Parse(f)
		if err != nil {
			return [2]string{}, fmt.Errorf("%q: %w", raw, err)
		}
		pair[i] = rec.Email
	}
	if friendreq.NormalizeEmail(pair[0]) == friendreq.NormalizeEmail(pair[1]) {
		return [2]string{}, fmt.Errorf("%q: a user cannot befriend themselves", raw)
	}
	return pair, nil
}
