package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/internal/friendform"
	"github.com/dalemusser/addfriend/internal/friendreq"
	"github.com/dalemusser/addfriend/internal/identity"
)

const pageTitle = "Add a friend"

type pageData struct {
	Title string
	User  identity.User
	Form  friendform.View
	Users []friendreq.User
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, snippet string, data pageData) {
	h.engine.RenderAuto(w, r, status, "add_friend_page", snippet, data)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	u, _ := identity.FromContext(r.Context())
	f := h.forms.Get(u.ID)
	h.render(w, r, http.StatusOK, "add_friend_form",
		pageData{Title: pageTitle, User: u, Form: f.View()})
}

// validate handles keystroke and blur events. A request without an email
// field is a blur on an untouched input.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	u, _ := identity.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	f := h.forms.Get(u.ID)

	var v friendform.View
	if _, ok := r.PostForm["email"]; ok {
		v = f.Input(r.PostForm.Get("email"))
	} else {
		v = f.Blur()
	}
	h.render(w, r, http.StatusOK, "add_friend_controls",
		pageData{Title: pageTitle, User: u, Form: v})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	u, _ := identity.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	f := h.forms.Get(u.ID)

	// An empty field the user never touched stays unset, so it reports as
	// missing rather than empty.
	if _, ok := r.PostForm["email"]; ok {
		if val := r.PostForm.Get("email"); val != "" || f.State() != friendform.Idle {
			f.Input(val)
		}
	}

	v, err := f.Submit(r.Context(), h.senderFor(u.ID))
	status := http.StatusOK
	switch {
	case errors.Is(err, friendform.ErrBlocked):
		status = http.StatusUnprocessableEntity
		h.block("blocked")
	case errors.Is(err, friendform.ErrInFlight):
		status = http.StatusConflict
		h.block("in_flight")
	case err != nil:
		h.logger.Error("friend request failed",
			zap.String("user_id", u.ID),
			zap.Error(err))
	default:
		h.logger.Info("friend request settled",
			zap.String("user_id", u.ID),
			zap.String("outcome", v.Status.Text))
	}
	h.render(w, r, status, "add_friend_form",
		pageData{Title: pageTitle, User: u, Form: v})
}

func (h *Handler) block(reason string) {
	if h.blocks != nil {
		h.blocks.Blocked(reason)
	}
}
