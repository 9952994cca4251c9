// internal/loan/handler.go
package loan

import (
	"net/http"

	"libracirc/internal/httpx"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes registers the read-only ledger endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/loans", h.HandleListActive)
	r.Get("/loans/overdue", h.HandleListOverdue)
	r.Get("/loans/statistics", h.HandleStatistics)
	r.Get("/loans/{id}", h.HandleGet)
	r.Get("/loans/{id}/extendable", h.HandleCanExtend)
}

func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.QueryUUID(r, "user_id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	loans, err := h.service.ListActive(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nonNil(loans))
}

func (h *Handler) HandleListOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListOverdue(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nonNil(loans))
}

func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	l, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, l)
}

func (h *Handler) HandleCanExtend(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	ok, err := h.service.CanExtend(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"extendable": ok})
}

func nonNil(loans []*Loan) []*Loan {
	if loans == nil {
		return []*Loan{}
	}
	return loans
}
