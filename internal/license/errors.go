package license

import (
	"errors"
	"fmt"
)

// Sentinel errors for license operations. The transport layer maps these
// to HTTP responses; callers treat malformed and tampered keys identically
// but the distinction is kept for diagnostics.
var (
	// ErrMalformedKey means the key could not be parsed at all.
	ErrMalformedKey = errors.New("license key is malformed")
	// ErrIntegrityViolation means the key parsed but its integrity tag
	// does not match a recomputation with the current secret.
	ErrIntegrityViolation = errors.New("license key failed integrity check")
	// ErrKeyExpired means the key's embedded expiry is already in the past.
	ErrKeyExpired = errors.New("license key has expired")
	// ErrMachineMismatch means the key is bound to different hardware.
	ErrMachineMismatch = errors.New("license key is bound to a different machine")
	// ErrPharmacyMismatch means the key was minted for another pharmacy.
	ErrPharmacyMismatch = errors.New("license key was issued for a different pharmacy")
	// ErrDuplicateOwner means the owner's login identity already exists.
	ErrDuplicateOwner = errors.New("owner identity already registered")
)

// ValidationError reports a rejected input before any mutation is applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
