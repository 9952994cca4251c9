// internal/circulation/domain.go
package circulation

import (
	"libracirc/internal/loan"
	"libracirc/internal/reservation"
)

// ReturnResult is the ledger's receipt plus the reservation whose holder
// was told the book is available, if any.
type ReturnResult struct {
	*loan.ReturnReceipt
	NotifiedReservation *reservation.Reservation `json:"notified_reservation,omitempty"`
}

// SweepReport summarises one overdue or reminder sweep.
type SweepReport struct {
	Loans       int `json:"loans"`
	Sent        int `json:"sent"`
	Escalations int `json:"escalations"`
	Failed      int `json:"failed"`
}
