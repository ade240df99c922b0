// Package emailschema declares the single-field schema used by the
// add-friend form: one email address, required and well-formed.
//
// Validate is pure. It never touches shared state, so calling it twice on
// the same input yields the same Result.
//
//	res := emailschema.Validate(r.PostForm.Get("email"))
//	if rec, ok := res.Record(); ok {
//	    send(rec.Email)
//	}
package emailschema

import (
	"regexp"
	"strings"
)

// Kind identifies why a value failed validation.
type Kind int

const (
	// KindNone means the value passed every check.
	KindNone Kind = iota
	// KindMissing is reported for an absent or non-string value.
	KindMissing
	// KindEmpty is reported for a string that is empty after trimming.
	KindEmpty
	// KindFormat is reported for a string that is not an email address.
	KindFormat
)

// Messages shown to the user, one per failing Kind.
const (
	MsgMissing = "Email is required !"
	MsgEmpty   = "Email is required"
	MsgFormat  = "Invalid email format"
)

// Message returns the user-facing text for k, or "" for KindNone.
func (k Kind) Message() string {
	switch k {
	case KindMissing:
		return MsgMissing
	case KindEmpty:
		return MsgEmpty
	case KindFormat:
		return MsgFormat
	default:
		return ""
	}
}

// String returns a short identifier, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindMissing:
		return "missing"
	case KindEmpty:
		return "empty"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

// Record is the validated output of the schema.
type Record struct {
	Email string `json:"email"`
}

// Result is either a Record or a failing Kind, never both.
type Result struct {
	rec  Record
	kind Kind
}

// Ok wraps a validated record.
func Ok(rec Record) Result { return Result{rec: rec} }

// Fail wraps a failing kind. Fail(KindNone) is treated as KindMissing.
func Fail(k Kind) Result {
	if k == KindNone {
		k = KindMissing
	}
	return Result{kind: k}
}

// Record returns the validated record and true when validation passed.
func (r Result) Record() (Record, bool) {
	if r.kind != KindNone {
		return Record{}, false
	}
	return r.rec, true
}

// Valid reports whether validation passed.
func (r Result) Valid() bool { return r.kind == KindNone }

// Kind returns the failing kind, or KindNone on success.
func (r Result) Kind() Kind { return r.kind }

// Message returns the validation error text, or "" on success.
func (r Result) Message() string { return r.kind.Message() }

// Err returns the failure as an error value, or nil on success.
func (r Result) Err() error {
	if r.kind == KindNone {
		return nil
	}
	return &Error{Kind: r.kind}
}

// Error is the error form of a failed Result.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string { return e.Kind.Message() }

// emailPattern is the grammar zod applies to emails, minus the two
// lookaheads Go's RE2 cannot express; those are checked in isEmail.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9_'+\-.]*[A-Za-z0-9_+\-]@([A-Za-z0-9][A-Za-z0-9\-]*\.)+[A-Za-z]{2,}$`)

// Validate runs the ordered checks against raw. The first failure wins:
// missing or non-string, then empty after trim, then email format.
// On success the record holds the trimmed address.
func Validate(raw any) Result {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return Fail(KindMissing)
		}
		s = *v
	default:
		return Fail(KindMissing)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return Fail(KindEmpty)
	}
	if !isEmail(s) {
		return Fail(KindFormat)
	}
	return Ok(Record{Email: s})
}

// Parse is Validate in (value, error) form for callers that do not need
// the Kind directly.
func Parse(raw any) (Record, error) {
	res := Validate(raw)
	if rec, ok := res.Record(); ok {
		return rec, nil
	}
	return Record{}, res.Err()
}

func isEmail(s string) bool {
	if strings.HasPrefix(s, ".") || strings.Contains(s, "..") {
		return false
	}
	return emailPattern.MatchString(s)
}
