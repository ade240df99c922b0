package friendform

import (
	"context"
	"sync"
	"time"
)

// Registry keeps one live Form per owner (a signed-in user id), the way a
// mounted component keeps its own state between renders.
type Registry struct {
	mu    sync.Mutex
	forms map[string]*entry
	obs   Observer
	now   func() time.Time
}

type entry struct {
	form     *Form
	lastUsed time.Time
}

// NewRegistry returns an empty registry. obs is handed to every Form it
// creates and may be nil.
func NewRegistry(obs Observer) *Registry {
	return &Registry{
		forms: make(map[string]*entry),
		obs:   obs,
		now:   time.Now,
	}
}

// Get returns the owner's form, creating an Idle one on first use.
func (r *Registry) Get(owner string) *Form {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.forms[owner]
	if !ok {
		e = &entry{form: New(r.obs)}
		r.forms[owner] = e
	}
	e.lastUsed = r.now()
	return e.form
}

// Drop tears down the owner's form. A submission still in flight finishes
// against the dropped Form and its outcome is discarded.
func (r *Registry) Drop(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.forms, owner)
}

// Len returns the number of live forms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

// Sweep drops forms idle for longer than maxIdle, skipping any that are
// submitting. It returns the number dropped.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxIdle)
	n := 0
	for owner, e := range r.forms {
		if e.lastUsed.After(cutoff) {
			continue
		}
		if e.form.View().Submitting {
			continue
		}
		delete(r.forms, owner)
		n++
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every, maxIdle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(maxIdle)
		}
	}
}
