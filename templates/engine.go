// templates/engine.go
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Engine compiles the shared layout once and clones it per page, so every
// page can define its own "content" block without clobbering the others.
type Engine struct {
	mu     sync.RWMutex
	funcs  template.FuncMap
	base   *template.Template
	byName map[string]*template.Template
	logger *zap.Logger
}

// New returns an empty Engine.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		funcs:  Funcs(),
		byName: map[string]*template.Template{},
		logger: logger,
	}
}

// Boot compiles sets, or the registered sets when none are passed. One set
// must be named "shared".
func (e *Engine) Boot(sets ...Set) error {
	if len(sets) == 0 {
		sets = All()
	}

	var shared *Set
	var pages []Set
	for i := range sets {
		if sets[i].Name == "shared" {
			shared = &sets[i]
			continue
		}
		pages = append(pages, sets[i])
	}
	if shared == nil {
		return fmt.Errorf("templates: no shared set registered")
	}

	base := template.New("root").Funcs(e.funcs)
	files, err := globAll(shared.FS, shared.Patterns)
	if err != nil {
		return err
	}
	for _, f := range files {
		b, err := fs.ReadFile(shared.FS, f)
		if err != nil {
			return err
		}
		if _, err := base.Parse(string(b)); err != nil {
			return fmt.Errorf("templates: parse %s: %w", f, err)
		}
	}
	e.base = base

	for _, s := range pages {
		if err := e.compileSet(s); err != nil {
			return fmt.Errorf("templates: set %q: %w", s.Name, err)
		}
	}
	return nil
}

// compileSet clones the base for each file and parses only that file into
// the clone. Names the file defines are indexed to the clone.
func (e *Engine) compileSet(s Set) error {
	files, err := globAll(s.FS, s.Patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		e.logger.Warn("no templates matched", zap.String("set", s.Name))
		return nil
	}

	for _, f := range files {
		b, err := fs.ReadFile(s.FS, f)
		if err != nil {
			return err
		}
		clone, err := e.base.Clone()
		if err != nil {
			return err
		}
		if _, err := clone.Parse(string(b)); err != nil {
			return fmt.Errorf("parse %s: %w", f, err)
		}

		e.mu.Lock()
		for name := range definedNames(string(b)) {
			if name == "content" {
				continue
			}
			e.byName[name] = clone
		}
		e.mu.Unlock()

		e.logger.Debug("template page compiled",
			zap.String("set", s.Name),
			zap.String("page", filepath.Base(f)))
	}
	return nil
}

var reDefine = regexp.MustCompile(`{{-?\s*define\s+"([^"]+)"`)

func definedNames(src string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, m := range reDefine.FindAllStringSubmatch(src, -1) {
		out[m[1]] = struct{}{}
	}
	return out
}

func globAll(fsys fs.FS, patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range patterns {
		matches, err := fs.Glob(fsys, p)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Execute renders the named template into a buffer first, so a failing
// template never leaves a half-written response.
func (e *Engine) Execute(name string, data any) ([]byte, error) {
	e.mu.RLock()
	t, ok := e.byName[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("templates: %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render writes the named template with the given status, logging and
// answering 500 on failure.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data any) {
	b, err := e.Execute(name, data)
	if err != nil {
		e.logger.Error("template render failed", zap.String("name", name), zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// RenderAuto renders snippet for HTMX requests and page otherwise.
func (e *Engine) RenderAuto(w http.ResponseWriter, r *http.Request, status int, page, snippet string, data any) {
	if IsHTMX(r) {
		e.Render(w, status, snippet, data)
		return
	}
	e.Render(w, status, page, data)
}

// IsHTMX reports whether r was issued by htmx.
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("HX-Request"), "true")
}
