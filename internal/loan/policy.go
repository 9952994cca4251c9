// internal/loan/policy.go
package loan

import (
	"time"

	"libracirc/internal/apperr"
)

// Policy holds the circulation rules. Fines are whole currency units.
type Policy struct {
	MaxLoans          int `toml:"max_loans"`
	LoanDays          int `toml:"loan_days"`
	GraceDays         int `toml:"grace_days"`
	DailyFine         int `toml:"daily_fine"`
	LongOverdueDays   int `toml:"long_overdue_days"`
	ReminderDaysAhead int `toml:"reminder_days_ahead"`
	HoldDays          int `toml:"hold_days"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxLoans:          5,
		LoanDays:          15,
		GraceDays:         2,
		DailyFine:         10,
		LongOverdueDays:   30,
		ReminderDaysAhead: 3,
		HoldDays:          2,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.MaxLoans < 1:
		return apperr.InvalidArgument("max_loans must be at least 1")
	case p.LoanDays < 1:
		return apperr.InvalidArgument("loan_days must be at least 1")
	case p.GraceDays < 0:
		return apperr.InvalidArgument("grace_days cannot be negative")
	case p.DailyFine < 0:
		return apperr.InvalidArgument("daily_fine cannot be negative")
	case p.LongOverdueDays < 1:
		return apperr.InvalidArgument("long_overdue_days must be at least 1")
	case p.ReminderDaysAhead < 0:
		return apperr.InvalidArgument("reminder_days_ahead cannot be negative")
	case p.HoldDays < 0:
		return apperr.InvalidArgument("hold_days cannot be negative")
	}
	return nil
}

// Assessment is the lateness of a loan on a given day.
type Assessment struct {
	DaysLate int `json:"days_late"`
	Fine     int `json:"fine"`
}

// Assess is a pure function of today and the due date:
// daysLate = max(0, today-due) and the fine accrues only past the grace days.
func (p Policy) Assess(today, due time.Time) Assessment {
	late := max(0, DaysBetween(due, today))
	fine := 0
	if late > p.GraceDays {
		fine = (late - p.GraceDays) * p.DailyFine
	}
	return Assessment{DaysLate: late, Fine: fine}
}

// DueDate is the due date of a loan issued at t.
func (p Policy) DueDate(t time.Time) time.Time {
	return Day(t).AddDate(0, 0, p.LoanDays)
}

// LongOverdue reports whether a loan this late is escalated to staff.
func (p Policy) LongOverdue(a Assessment) bool {
	return a.DaysLate >= p.LongOverdueDays
}
