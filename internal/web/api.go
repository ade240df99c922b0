package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dalemusser/addfriend/httputil"
	"github.com/dalemusser/addfriend/internal/emailschema"
	"github.com/dalemusser/addfriend/internal/friendreq"
)

// incomingJSON is one entry of GET /api/users/{id}/friend-requests.
type incomingJSON struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	FromEmail string    `json:"from_email"`
	CreatedAt time.Time `json:"created_at"`
}

type incomingResponse struct {
	Requests []incomingJSON `json:"requests"`
}

// apiAdd is the service-to-service form of the submit: the same schema
// gates the address before the rules run.
func (h *Handler) apiAdd(w http.ResponseWriter, r *http.Request) {
	var req friendreq.AddRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		httputil.JSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		httputil.JSONError(w, http.StatusBadRequest, "invalid_request", `"from" is required`)
		return
	}
	rec, err := emailschema.Parse(req.Email)
	if err != nil {
		httputil.JSONError(w, http.StatusUnprocessableEntity, "invalid_email", err.Error())
		return
	}

	msg, err := h.service.Add(r.Context(), from, rec.Email)
	if err != nil {
		h.logger.Error("api add friend request", zap.String("from", from), zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "internal", "could not send friend request")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, friendreq.AddResponse{Message: msg})
}

func (h *Handler) apiIncoming(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqs, err := h.service.Incoming(r.Context(), id)
	if err != nil {
		h.logger.Error("api list incoming", zap.String("user_id", id), zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "internal", "could not list friend requests")
		return
	}
	out := incomingResponse{Requests: make([]incomingJSON, 0, len(reqs))}
	for _, q := range reqs {
		out.Requests = append(out.Requests, incomingJSON{
			ID:        q.ID,
			From:      q.From,
			FromEmail: q.FromEmail,
			CreatedAt: q.CreatedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
