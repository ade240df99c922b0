package friendform

// StatusKind selects how the status line is styled.
type StatusKind int

const (
	StatusNone StatusKind = iota
	StatusAlert
	StatusSuccess
)

// Class returns the CSS class used by the templates.
func (k StatusKind) Class() string {
	switch k {
	case StatusAlert:
		return "status-alert"
	case StatusSuccess:
		return "status-success"
	default:
		return ""
	}
}

// Status is the single line shown under the input.
type Status struct {
	Kind StatusKind
	Text string
}

// Shown reports whether a status line is rendered at all.
func (s Status) Shown() bool { return s.Kind != StatusNone }

// View is everything a template needs to render the form.
type View struct {
	State       State
	Value       string
	Label       string
	Placeholder string
	ButtonLabel string
	Invalid     bool
	Submitting  bool
	Disabled    bool
	Status      Status
}

// Disabled is the submit control predicate. Callers recompute it on every
// render from the current validity and submitting flag.
func Disabled(invalid, submitting bool) bool {
	return invalid || submitting
}

// ButtonLabel returns the submit control text.
func ButtonLabel(submitting bool) string {
	if submitting {
		return ButtonBusy
	}
	return ButtonIdle
}

// StatusLine picks what to show under the input. A validation error wins
// over the outcome; the outcome is shown only when the field is valid.
func StatusLine(validationErr string, outcome *string) Status {
	if validationErr != "" {
		return Status{Kind: StatusAlert, Text: validationErr}
	}
	if outcome != nil && *outcome != "" {
		return Status{Kind: StatusSuccess, Text: *outcome}
	}
	return Status{}
}
