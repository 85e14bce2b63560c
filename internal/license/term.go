package license

import "time"

// Term is a license duration denominated in months or, for short-lived
// trial licenses, minutes. Exactly one unit must be set: requests that
// supply both are rejected at the validation boundary instead of one
// silently winning.
type Term struct {
	Months  int `json:"months,omitempty"`
	Minutes int `json:"minutes,omitempty"`
}

// Validate enforces the exactly-one-unit rule.
func (t Term) Validate() error {
	switch {
	case t.Months < 0 || t.Minutes < 0:
		return &ValidationError{Field: "term", Reason: "must not be negative"}
	case t.Months == 0 && t.Minutes == 0:
		return &ValidationError{Field: "term", Reason: "months or minutes is required"}
	case t.Months > 0 && t.Minutes > 0:
		return &ValidationError{Field: "term", Reason: "supply months or minutes, not both"}
	}
	return nil
}

// End computes the expiry for a term starting at now.
func (t Term) End(now time.Time) time.Time {
	if t.Minutes > 0 {
		return now.Add(time.Duration(t.Minutes) * time.Minute)
	}
	return now.AddDate(0, t.Months, 0)
}

// IsTrial reports whether the term is minute-denominated.
func (t Term) IsTrial() bool {
	return t.Minutes > 0
}
