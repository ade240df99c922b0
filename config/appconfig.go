// config/appconfig.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppKey declares one application-level setting. It is loaded with the same
// precedence as the core keys: a flag named Name, an env var PREFIX_NAME,
// a config file entry, then Default.
type AppKey struct {
	Name string

	// Supported types: string, int, int64, bool, []string, time.Duration.
	Default any

	Desc string
}

// AppConfigValues holds loaded app values keyed by AppKey.Name.
type AppConfigValues map[string]any

// String returns the value as a string or "".
func (a AppConfigValues) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value as an int or 0. Config files may decode integers as
// int64 or float64.
func (a AppConfigValues) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscan(strings.TrimSpace(v), &n); err == nil {
			return n
		}
	}
	return 0
}

// Bool returns the value as a bool or false.
func (a AppConfigValues) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

// StringSlice returns the value as a []string or nil.
func (a AppConfigValues) StringSlice(key string) []string {
	if v, ok := a[key].([]string); ok {
		return v
	}
	return nil
}

// Duration accepts "90s", "2m" or plain seconds; def is returned for empty
// or invalid values.
func (a AppConfigValues) Duration(key string, def time.Duration) time.Duration {
	d, err := parseDurationFlexible(a[key], def)
	if err != nil {
		return def
	}
	return d
}

func loadAppConfig(logger *zap.Logger, v *viper.Viper, fs *pflag.FlagSet, prefix string, keys []AppKey) (AppConfigValues, error) {
	out := make(AppConfigValues, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var lists []string
	for _, key := range keys {
		def := key.Default
		switch d := def.(type) {
		case time.Duration:
			def = d.String()
		case []string:
			lists = append(lists, key.Name)
		}
		v.SetDefault(key.Name, def)
		if err := v.BindEnv(key.Name, prefix+"_"+strings.ToUpper(key.Name)); err != nil {
			return nil, fmt.Errorf("bind env for %q: %w", key.Name, err)
		}
		if f := fs.Lookup(key.Name); f != nil && f.Changed {
			_ = v.BindPFlag(key.Name, f)
		}
	}
	if err := normalizeListKeys(logger, v, lists...); err != nil {
		return nil, err
	}

	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		out[key.Name] = v.Get(key.Name)
		if secretish(key.Name) {
			fields = append(fields, zap.String(key.Name, "[REDACTED]"))
			continue
		}
		fields = append(fields, zap.Any(key.Name, out[key.Name]))
	}
	logger.Info("app config loaded", fields...)
	return out, nil
}

func secretish(name string) bool {
	n := strings.ToLower(name)
	for _, s := range [...]string{"key", "secret", "password", "token"} {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// registerAppFlags adds a flag per key. Must run before the flag set parses.
func registerAppFlags(fs *pflag.FlagSet, keys []AppKey) error {
	for _, key := range keys {
		if fs.Lookup(key.Name) != nil {
			return fmt.Errorf("config key %q conflicts with existing flag", key.Name)
		}
		switch d := key.Default.(type) {
		case string:
			fs.String(key.Name, d, key.Desc)
		case int:
			fs.Int(key.Name, d, key.Desc)
		case int64:
			fs.Int64(key.Name, d, key.Desc)
		case bool:
			fs.Bool(key.Name, d, key.Desc)
		case time.Duration:
			fs.String(key.Name, d.String(), key.Desc)
		case []string:
			fs.String(key.Name, "", key.Desc+" (JSON array)")
		default:
			return fmt.Errorf("config key %q has unsupported default type %T", key.Name, key.Default)
		}
	}
	return nil
}

// Problems collects missing and invalid settings for one aggregated error.
type Problems struct {
	missing []string
	invalid []string
}

// Missing records a required setting that is absent.
func (p *Problems) Missing(format string, args ...any) {
	p.missing = append(p.missing, fmt.Sprintf(format, args...))
}

// Invalid records a setting whose value is unusable.
func (p *Problems) Invalid(format string, args ...any) {
	p.invalid = append(p.invalid, fmt.Sprintf(format, args...))
}

// Err returns nil when nothing was recorded, otherwise
// "<what>: missing: a, b | invalid: c".
func (p *Problems) Err(what string) error {
	return aggregate(what, p.missing, p.invalid)
}
