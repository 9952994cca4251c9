// internal/reservation/handler.go
package reservation

import (
	"net/http"

	"libracirc/internal/apperr"
	"libracirc/internal/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/reservations", h.HandleReserve)
	r.Get("/reservations", h.HandleListActive)
	r.Get("/reservations/{id}", h.HandleGet)
	r.Post("/reservations/{id}/cancel", h.HandleCancel)
	r.Get("/books/{id}/queue", h.HandleQueue)
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		BookID uuid.UUID `json:"book_id"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.UserID == uuid.Nil || req.BookID == uuid.Nil {
		httpx.WriteError(w, apperr.InvalidArgument("user_id and book_id are required"))
		return
	}

	res, err := h.service.Reserve(r.Context(), req.UserID, req.BookID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.QueryUUID(r, "user_id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	list, err := h.service.ListActive(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*Reservation{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	res, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	list, err := h.service.ActiveFor(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if list == nil {
		list = []*Reservation{}
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}
