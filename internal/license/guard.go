package license

import (
	"time"

	"pharmapos/internal/store"
)

// State is the license guard's verdict for one pharmacy at one instant.
type State string

const (
	// StateActive allows the request.
	StateActive State = "active"
	// StateSuspended blocks the request: the administrator kill switch is
	// set, regardless of expiry.
	StateSuspended State = "suspended"
	// StateExpired blocks the request: the license term has lapsed.
	StateExpired State = "expired"
	// StateUnknown blocks the request hard: no record backs the pharmacy
	// (purged or never onboarded). Distinct from expiry so the client
	// forces re-authentication instead of showing a renewal prompt.
	StateUnknown State = "unknown"
)

// Decision is the result of a guard evaluation. ExpiresAt is populated
// for every state except UNKNOWN so an expired client can render a
// renewal screen.
type Decision struct {
	State     State     `json:"state"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	DaysLeft  int       `json:"days_left"`
}

// Allowed reports whether the decision permits the request.
func (d Decision) Allowed() bool {
	return d.State == StateActive
}

// Evaluate is the license guard: a pure predicate over the current store
// record and wall-clock time. It never mutates anything and is evaluated
// fresh on every privileged request.
//
// Precedence: missing record, then suspension, then expiry.
func Evaluate(rec *store.LicenseRecord, now time.Time) Decision {
	if rec == nil {
		return Decision{State: StateUnknown}
	}
	if !rec.IsActive {
		return Decision{State: StateSuspended, ExpiresAt: rec.LicenseExpires}
	}
	if !now.Before(rec.LicenseExpires) {
		return Decision{State: StateExpired, ExpiresAt: rec.LicenseExpires}
	}
	return Decision{
		State:     StateActive,
		ExpiresAt: rec.LicenseExpires,
		DaysLeft:  daysLeft(rec.LicenseExpires, now),
	}
}

func daysLeft(expires, now time.Time) int {
	d := expires.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
