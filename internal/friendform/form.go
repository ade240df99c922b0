// Package friendform holds the add-friend form as an explicit state
// machine. The web layer feeds it field input and submit events and renders
// the View it returns; the form owns the field value, the last validation
// result, the outcome text and the submitting flag.
package friendform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dalemusser/addfriend/internal/emailschema"
)

// State is where the form sits in its submit cycle.
type State int

const (
	Idle State = iota
	Invalid
	Valid
	Submitting
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	case Submitting:
		return "submitting"
	case Settled:
		return "settled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Fixed text rendered by the form.
const (
	InputLabel     = "Add friend by E-Mail"
	Placeholder    = "you@example.com"
	ButtonIdle     = "Add Friend"
	ButtonBusy     = "Sending Request..."
	GenericFailure = "Could not send friend request. Please try again."
)

var (
	// ErrBlocked is returned by Submit when the field fails validation.
	// The sender is not called.
	ErrBlocked = errors.New("friendform: submit blocked by validation error")

	// ErrInFlight is returned by Submit while an earlier submission is
	// still awaiting the sender.
	ErrInFlight = errors.New("friendform: submission already in flight")

	// ErrSenderPanic is reported to the Observer when the sender panicked.
	ErrSenderPanic = errors.New("friendform: sender panicked")
)

// Sender performs the friend request. It is the form's only suspension
// point. The returned text is shown to the user as the outcome.
type Sender interface {
	SendFriendRequest(ctx context.Context, email string) (string, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, email string) (string, error)

func (f SenderFunc) SendFriendRequest(ctx context.Context, email string) (string, error) {
	return f(ctx, email)
}

// Observer receives lifecycle events, typically for metrics.
type Observer interface {
	Validated(kind emailschema.Kind)
	SubmitStarted()
	SubmitSettled(err error)
}

type nopObserver struct{}

func (nopObserver) Validated(emailschema.Kind) {}
func (nopObserver) SubmitStarted()             {}
func (nopObserver) SubmitSettled(error)        {}

// Form is safe for concurrent use. All mutation happens under mu; the
// sender is called with mu released.
type Form struct {
	mu         sync.Mutex
	state      State
	value      string
	touched    bool
	result     emailschema.Result
	outcome    *string
	submitting bool
	obs        Observer
}

// New returns a form in the Idle state. obs may be nil.
func New(obs Observer) *Form {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Form{state: Idle, result: emailschema.Ok(emailschema.Record{}), obs: obs}
}

// Input records a new field value and re-validates it.
func (f *Form) Input(value string) View {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = value
	f.touched = true
	f.revalidateLocked()
	return f.viewLocked()
}

// Blur re-validates the current value, treating an untouched field as
// touched and empty.
func (f *Form) Blur() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = true
	f.revalidateLocked()
	return f.viewLocked()
}

// Submit validates the field and, when it passes, calls s with the
// validated address and waits for it. A sender error settles the form with
// GenericFailure and is returned wrapped so the caller can log it.
func (f *Form) Submit(ctx context.Context, s Sender) (View, error) {
	f.mu.Lock()
	if f.submitting {
		v := f.viewLocked()
		f.mu.Unlock()
		return v, ErrInFlight
	}

	f.revalidateLocked()
	rec, ok := f.result.Record()
	if !ok {
		v := f.viewLocked()
		f.mu.Unlock()
		return v, ErrBlocked
	}

	f.submitting = true
	f.state = Submitting
	f.obs.SubmitStarted()
	f.mu.Unlock()

	// A panicking sender still settles the form; the panic continues.
	returned := false
	defer func() {
		if returned {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.settleLocked(GenericFailure, ErrSenderPanic)
	}()

	text, err := s.SendFriendRequest(ctx, rec.Email)
	returned = true
	if err != nil {
		text = GenericFailure
		err = fmt.Errorf("friendform: send friend request: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleLocked(text, err)
	return f.viewLocked(), err
}

func (f *Form) settleLocked(outcome string, err error) {
	f.outcome = &outcome
	f.submitting = false
	f.state = Settled
	f.obs.SubmitSettled(err)
}

// View returns the current render model.
func (f *Form) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

// State returns the current state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// revalidateLocked runs the schema on the current value. An untouched
// field validates as absent.
func (f *Form) revalidateLocked() {
	var raw any
	if f.touched {
		raw = f.value
	}
	f.result = emailschema.Validate(raw)
	f.obs.Validated(f.result.Kind())

	if f.submitting {
		return
	}
	if f.result.Valid() {
		f.state = Valid
	} else {
		f.state = Invalid
	}
}

func (f *Form) viewLocked() View {
	invalid := !f.result.Valid()
	v := View{
		State:       f.state,
		Value:       f.value,
		Label:       InputLabel,
		Placeholder: Placeholder,
		Invalid:     invalid,
		Submitting:  f.submitting,
		Disabled:    Disabled(invalid, f.submitting),
		ButtonLabel: ButtonLabel(f.submitting),
		Status:      StatusLine(f.result.Message(), f.outcome),
	}
	return v
}
