// internal/notify/handler.go
package notify

import (
	"net/http"
	"strings"

	"libracirc/internal/apperr"
	"libracirc/internal/httpx"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	store      Store
	dispatcher *Dispatcher
}

func NewHandler(store Store, dispatcher *Dispatcher) *Handler {
	return &Handler{store: store, dispatcher: dispatcher}
}

// Routes registers the notification inbox endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/notifications", h.HandleSend)
	r.Get("/notifications", h.HandleListUnread)
	r.Post("/notifications/{id}/read", h.HandleMarkRead)
}

type sendRequest struct {
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// HandleSend delivers a free-form message through every sink. Unlike the
// circulation notices, a delivery failure is reported to the caller.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Message) == "" {
		httpx.WriteError(w, apperr.InvalidArgument("subject and message are required"))
		return
	}

	msg, err := h.dispatcher.Dispatch(r.Context(), req.Subject, req.Message, req.Recipient)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, msg)
}

func (h *Handler) HandleListUnread(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		httpx.WriteError(w, apperr.InvalidArgument("recipient is required"))
		return
	}

	msgs, err := h.store.ListUnread(r.Context(), recipient)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	httpx.WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := h.store.MarkRead(r.Context(), id); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
