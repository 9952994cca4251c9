// internal/circulation/handler.go
package circulation

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

// Routes registers the loan lifecycle and sweep endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/loans", h.HandleCreateLoan)
	r.Post("/loans/{id}/return", h.HandleReturn)
	r.Post("/sweeps/overdue", h.HandleOverdueSweep)
	r.Post("/sweeps/upcoming", h.HandleUpcomingSweep)
}

type createLoanRequest struct {
	UserID uuid.UUID `json:"user_id"`
	BookID uuid.UUID `json:"book_id"`
}

func (h *Handler) HandleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.UserID == uuid.Nil || req.BookID == uuid.Nil {
		httpx.WriteError(w, apperr.InvalidArgument("user_id and book_id are required"))
		return
	}

	l, err := h.service.CreateLoan(r.Context(), req.UserID, req.BookID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, l)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req struct {
		Damaged bool `json:"damaged"`
	}
	// An empty body means an undamaged return.
	if _, err := httpx.DecodeOptionalJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	result, err := h.service.ReturnBook(r.Context(), id, req.Damaged)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleOverdueSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CheckOverdue(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleUpcomingSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CheckUpcomingDue(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
