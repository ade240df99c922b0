package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dalemusser/addfriend/internal/friendform"
	"github.com/dalemusser/addfriend/internal/friendreq"
	"github.com/dalemusser/addfriend/internal/identity"
	"github.com/dalemusser/addfriend/middleware"
	"github.com/dalemusser/addfriend/templates"
)

const testAPIKey = "test-api-key"

type testApp struct {
	handler http.Handler
	signer  *identity.Signer
	service *friendreq.Service
	forms   *friendform.Registry
	blocks  *blockCounter
}

type blockCounter struct{ reasons []string }

func (b *blockCounter) Blocked(reason string) { b.reasons = append(b.reasons, reason) }

func newTestApp(t *testing.T, dev bool, senderFor SenderFor, tweaks ...func(*Options)) *testApp {
	t.Helper()

	engine := templates.New(nil)
	if err := engine.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	store := friendreq.NewMemoryStore()
	svc := friendreq.NewService(store, nil, nil)
	if _, err := svc.Seed(context.Background(), []friendreq.User{
		{ID: "u1", Email: "alice@example.com", Name: "Alice"},
		{ID: "u2", Email: "bob@example.com", Name: "Bob"},
	}); err != nil {
		t.Fatal(err)
	}

	app := &testApp{
		signer:  identity.NewSigner("test-secret", "addfriend", time.Hour),
		service: svc,
		forms:   friendform.NewRegistry(nil),
		blocks:  &blockCounter{},
	}
	opts := Options{
		Forms:     app.forms,
		SenderFor: senderFor,
		Service:   svc,
		Signer:    app.signer,
		Dev:       dev,
		APIKey:    testAPIKey,
		Engine:    engine,
		Blocks:    app.blocks,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	h := New(opts)
	r := chi.NewRouter()
	h.Routes(r)
	app.handler = r
	return app
}

func (a *testApp) do(t *testing.T, method, path string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, a.request(t, method, path, form, htmx))
	return rec
}

// request builds a request signed in as alice (u1).
func (a *testApp) request(t *testing.T, method, path string, form url.Values, htmx bool) *http.Request {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	tok, err := a.signer.Issue(identity.User{ID: "u1", Email: "alice@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: identity.DefaultCookie, Value: tok})
	return req
}

func email(v string) url.Values { return url.Values{"email": {v}} }

const disabledButton = `<button type="submit" disabled>`

func mustContain(t *testing.T, body string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(body, w) {
			t.Errorf("body missing %q\n%s", w, body)
		}
	}
}

func mustNotContain(t *testing.T, body string, nots ...string) {
	t.Helper()
	for _, n := range nots {
		if strings.Contains(body, n) {
			t.Errorf("body unexpectedly contains %q\n%s", n, body)
		}
	}
}

func TestShowFormIdle(t *testing.T) {
	app := newTestApp(t, false, nil)
	rec := app.do(t, http.MethodGet, "/friends/add", nil, false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	mustContain(t, body,
		"<!doctype html>",
		"Add friend by E-Mail",
		`placeholder="you@example.com"`,
		`<button type="submit">Add Friend</button>`,
		"Signed in as alice@example.com",
	)
	mustNotContain(t, body, "status-alert", "status-success", disabledButton)
}

func TestSignInRequired(t *testing.T) {
	t.Run("prod answers 401", func(t *testing.T) {
		app := newTestApp(t, false, nil)
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/friends/add", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
	t.Run("dev redirects to login", func(t *testing.T) {
		app := newTestApp(t, true, nil)
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/friends/add", nil))
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dev/login" {
			t.Errorf("status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
		}
	})
}

func TestLiveValidation(t *testing.T) {
	app := newTestApp(t, false, nil)

	tests := []struct {
		name     string
		form     url.Values
		want     string
		disabled bool
	}{
		{"bad format", email("abc"), "Invalid email format", true},
		{"cleared", email(""), "Email is required", true},
		{"valid", email("bob@example.com"), `<button type="submit">Add Friend</button>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, http.MethodPost, "/friends/add/validate", tt.form, true)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			body := rec.Body.String()
			mustContain(t, body, `id="add-friend-controls"`, tt.want)
			mustNotContain(t, body, "<html", "Email is required !")
			if got := strings.Contains(body, disabledButton); got != tt.disabled {
				t.Errorf("disabled = %v, want %v", got, tt.disabled)
			}
		})
	}
}

func TestBlurOnUntouchedField(t *testing.T) {
	app := newTestApp(t, false, nil)
	rec := app.do(t, http.MethodPost, "/friends/add/validate", url.Values{}, true)
	mustContain(t, rec.Body.String(), `role="alert"`, "Email is required")
	mustNotContain(t, rec.Body.String(), "Email is required !")
}

func TestSubmitUntouchedIsBlocked(t *testing.T) {
	var calls int
	app := newTestApp(t, false, func(string) friendform.Sender {
		return friendform.SenderFunc(func(context.Context, string) (string, error) {
			calls++
			return "sent", nil
		})
	})

	rec := app.do(t, http.MethodPost, "/friends/add", email(""), true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	mustContain(t, rec.Body.String(), "Email is required !", disabledButton, `id="add-friend-form"`)
	if calls != 0 {
		t.Errorf("sender called %d times", calls)
	}
	if len(app.blocks.reasons) != 1 || app.blocks.reasons[0] != "blocked" {
		t.Errorf("blocks = %v", app.blocks.reasons)
	}
}

func TestSubmitAfterClearingIsBlocked(t *testing.T) {
	app := newTestApp(t, false, nil)
	app.do(t, http.MethodPost, "/friends/add/validate", email("a"), true)
	rec := app.do(t, http.MethodPost, "/friends/add", email(""), true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	mustContain(t, rec.Body.String(), "Email is required")
	mustNotContain(t, rec.Body.String(), "Email is required !")
}

func TestSubmitCycle(t *testing.T) {
	app := newTestApp(t, false, nil)

	rec := app.do(t, http.MethodPost, "/friends/add", email("  bob@example.com "), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	mustContain(t, body, `class="status-success"`, friendreq.MsgSent, `<button type="submit">Add Friend</button>`)
	mustNotContain(t, body, "<html")

	reqs, err := app.service.Incoming(context.Background(), "u2")
	if err != nil || len(reqs) != 1 || reqs[0].From != "u1" {
		t.Fatalf("incoming = %+v, %v", reqs, err)
	}

	// The outcome is hidden behind a validation error, then shown again.
	rec = app.do(t, http.MethodPost, "/friends/add/validate", email("bob@"), true)
	mustContain(t, rec.Body.String(), "Invalid email format")
	mustNotContain(t, rec.Body.String(), friendreq.MsgSent)

	rec = app.do(t, http.MethodPost, "/friends/add/validate", email("bob@example.com"), true)
	mustContain(t, rec.Body.String(), friendreq.MsgSent)

	rec = app.do(t, http.MethodPost, "/friends/add", email("bob@example.com"), true)
	mustContain(t, rec.Body.String(), friendreq.MsgAlreadySent)
}

func TestSubmitWithoutHTMXRendersPage(t *testing.T) {
	app := newTestApp(t, false, nil)
	rec := app.do(t, http.MethodPost, "/friends/add", email("alice@example.com"), false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	mustContain(t, rec.Body.String(), "<!doctype html>", friendreq.MsgSelf)
}

func TestSubmitSenderFailure(t *testing.T) {
	app := newTestApp(t, false, func(string) friendform.Sender {
		return friendform.SenderFunc(func(context.Context, string) (string, error) {
			return "", errors.New("connection refused")
		})
	})

	rec := app.do(t, http.MethodPost, "/friends/add", email("bob@example.com"), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	mustContain(t, rec.Body.String(), friendform.GenericFailure, `<button type="submit">Add Friend</button>`)
	mustNotContain(t, rec.Body.String(), "connection refused")
	if st := app.forms.Get("u1").State(); st != friendform.Settled {
		t.Errorf("state = %v, want Settled", st)
	}
}

func TestSubmitInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	app := newTestApp(t, false, func(string) friendform.Sender {
		return friendform.SenderFunc(func(context.Context, string) (string, error) {
			close(entered)
			<-release
			return friendreq.MsgSent, nil
		})
	})

	first := make(chan *httptest.ResponseRecorder, 1)
	req := app.request(t, http.MethodPost, "/friends/add", email("bob@example.com"), true)
	go func() {
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, req)
		first <- rec
	}()
	<-entered

	rec := app.do(t, http.MethodGet, "/friends/add", nil, false)
	mustContain(t, rec.Body.String(), "Sending Request...", disabledButton)

	rec = app.do(t, http.MethodPost, "/friends/add", email("bob@example.com"), true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second submit status = %d, want 409", rec.Code)
	}
	mustContain(t, rec.Body.String(), "Sending Request...")

	close(release)
	res := <-first
	if res.Code != http.StatusOK {
		t.Fatalf("first submit status = %d", res.Code)
	}
	mustContain(t, res.Body.String(), friendreq.MsgSent, "Add Friend")
	if len(app.blocks.reasons) != 1 || app.blocks.reasons[0] != "in_flight" {
		t.Errorf("blocks = %v", app.blocks.reasons)
	}
}

func TestDevLogin(t *testing.T) {
	app := newTestApp(t, true, nil)

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/login", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	mustContain(t, rec.Body.String(), "alice@example.com", "bob@example.com")

	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/login?email=Bob@Example.com", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d", rec.Code)
	}
	var tok string
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.DefaultCookie {
			tok = c.Value
		}
	}
	u, err := app.signer.Parse(tok)
	if err != nil {
		t.Fatalf("cookie token: %v", err)
	}
	if u.ID != "u2" {
		t.Errorf("signed in as %q, want u2", u.ID)
	}

	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/login?email=nobody@example.com", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", rec.Code)
	}
}

func TestDevRoutesHiddenOutsideDev(t *testing.T) {
	app := newTestApp(t, false, nil)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/login", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func apiRequest(method, path, body, key string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	return req
}

func TestAPIAdd(t *testing.T) {
	app := newTestApp(t, false, nil)

	tests := []struct {
		name       string
		body       string
		key        string
		wantStatus int
		wantField  string
		wantValue  string
	}{
		{"no key", `{"from":"u1","email":"bob@example.com"}`, "", http.StatusUnauthorized, "error", "unauthorized"},
		{"bad email", `{"from":"u1","email":"abc"}`, testAPIKey, http.StatusUnprocessableEntity, "message", "Invalid email format"},
		{"empty email", `{"from":"u1","email":"  "}`, testAPIKey, http.StatusUnprocessableEntity, "message", "Email is required"},
		{"no from", `{"email":"bob@example.com"}`, testAPIKey, http.StatusBadRequest, "error", "invalid_request"},
		{"unknown field", `{"from":"u1","to":"u2"}`, testAPIKey, http.StatusBadRequest, "error", "invalid_request"},
		{"sent", `{"from":"u1","email":"bob@example.com"}`, testAPIKey, http.StatusOK, "message", friendreq.MsgSent},
		{"again", `{"from":"u1","email":"bob@example.com"}`, testAPIKey, http.StatusOK, "message", friendreq.MsgAlreadySent},
		{"unknown requester", `{"from":"ghost","email":"bob@example.com"}`, testAPIKey, http.StatusOK, "message", friendreq.MsgSignedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.handler.ServeHTTP(rec, apiRequest(http.MethodPost, "/api/friend-requests", tt.body, tt.key))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var got map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got[tt.wantField] != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantField, got[tt.wantField], tt.wantValue)
			}
		})
	}
}

func TestAPIRequiresJSON(t *testing.T) {
	app := newTestApp(t, false, nil)
	req := apiRequest(http.MethodPost, "/api/friend-requests", `email=bob@example.com`, testAPIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestAPIIncoming(t *testing.T) {
	app := newTestApp(t, false, nil)
	if _, err := app.service.Add(context.Background(), "u1", "bob@example.com"); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/api/users/u2/friend-requests", "", testAPIKey))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got incomingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Requests) != 1 || got.Requests[0].From != "u1" || got.Requests[0].FromEmail != "alice@example.com" {
		t.Errorf("requests = %+v", got.Requests)
	}

	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, apiRequest(http.MethodGet, "/api/users/u1/friend-requests", "", testAPIKey))
	if !strings.Contains(rec.Body.String(), `"requests":[]`) {
		t.Errorf("empty list body = %s", rec.Body.String())
	}
}

func TestSubmitRateLimited(t *testing.T) {
	app := newTestApp(t, false, nil, func(o *Options) {
		o.Limiter = middleware.NewKeyLimiter(0, 1)
	})

	rec := app.do(t, http.MethodPost, "/friends/add", email("bob@example.com"), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("first submit = %d", rec.Code)
	}

	rec = app.do(t, http.MethodPost, "/friends/add", email("bob@example.com"), true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if len(app.blocks.reasons) != 1 || app.blocks.reasons[0] != "rate_limited" {
		t.Errorf("blocks = %v", app.blocks.reasons)
	}

	// validation is not limited
	rec = app.do(t, http.MethodPost, "/friends/add/validate", email("bob@"), true)
	if rec.Code != http.StatusOK {
		t.Errorf("validate = %d", rec.Code)
	}
}
