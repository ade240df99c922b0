package web

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/internal/friendreq"
	"github.com/dalemusser/addfriend/internal/identity"
)

// devLogin signs in as the seeded user with ?email=. Without a query it
// lists the known users. Mounted in the dev environment only.
func (h *Handler) devLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		data := pageData{Title: "Dev sign in"}
		data.User, _ = identity.FromContext(r.Context())
		if h.service != nil {
			users, err := h.service.Users(r.Context())
			if err != nil {
				h.logger.Warn("dev login: list users", zap.Error(err))
			}
			data.Users = users
		}
		h.engine.Render(w, http.StatusOK, "dev_login_page", data)
		return
	}

	u := identity.User{ID: strings.TrimSpace(r.URL.Query().Get("id")), Email: email}
	if h.service != nil {
		found, err := h.service.Store().UserByEmail(r.Context(), email)
		switch {
		case errors.Is(err, friendreq.ErrNotFound):
			http.Error(w, "no seeded user with that email", http.StatusNotFound)
			return
		case err != nil:
			h.logger.Error("dev login: lookup", zap.Error(err))
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		u = identity.User{ID: found.ID, Email: found.Email}
	}
	if u.ID == "" {
		http.Error(w, "id is required without a local store", http.StatusBadRequest)
		return
	}

	tok, err := h.signer.Issue(u)
	if err != nil {
		h.logger.Error("dev login: issue token", zap.Error(err))
		http.Error(w, "cannot sign in", http.StatusInternalServerError)
		return
	}
	identity.SetCookie(w, h.cookie, tok, h.secure, h.cookieTTL)
	h.logger.Info("dev login", zap.String("user_id", u.ID))
	http.Redirect(w, r, "/friends/add", http.StatusSeeOther)
}

// devLogout clears the cookie and drops the user's live form.
func (h *Handler) devLogout(w http.ResponseWriter, r *http.Request) {
	if u, ok := identity.FromContext(r.Context()); ok {
		h.forms.Drop(u.ID)
	}
	identity.SetCookie(w, h.cookie, "", h.secure, -1)
	http.Redirect(w, r, "/dev/login", http.StatusSeeOther)
}
