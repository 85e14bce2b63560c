package errors

import (
	"errors"
	"net/http"
	"time"

	"pharmapos/internal/license"
	"pharmapos/internal/store"
)

// Error codes for license operations.
const (
	CodeMalformedKey       = "MALFORMED_LICENSE_KEY"
	CodeIntegrityViolation = "LICENSE_KEY_INTEGRITY"
	CodeKeyExpired         = "LICENSE_KEY_EXPIRED"
	CodeLicenseExpired     = "LICENSE_EXPIRED"
	CodeLicenseSuspended   = "LICENSE_SUSPENDED"
	CodeMachineMismatch    = "MACHINE_MISMATCH"
	CodePharmacyMismatch   = "PHARMACY_MISMATCH"
	CodeDuplicateOwner     = "DUPLICATE_OWNER_IDENTITY"
)

// Predefined license error responses.
var (
	ErrMalformedKey = New(http.StatusBadRequest, CodeMalformedKey,
		"The entered license key is invalid or malformed")
	ErrIntegrityViolation = New(http.StatusBadRequest, CodeIntegrityViolation,
		"The entered license key failed verification")
	ErrKeyExpired = New(http.StatusBadRequest, CodeKeyExpired,
		"The entered license key has already expired. Please request a renewal")
	ErrLicenseSuspended = New(http.StatusForbidden, CodeLicenseSuspended,
		"This account has been deactivated. Please contact support")
	ErrMachineMismatch = New(http.StatusForbidden, CodeMachineMismatch,
		"This license key is registered to a different terminal")
	ErrPharmacyMismatch = New(http.StatusBadRequest, CodePharmacyMismatch,
		"This license key was issued for a different pharmacy")
	ErrDuplicateOwner = New(http.StatusConflict, CodeDuplicateOwner,
		"An account with this email already exists")
)

// LicenseExpired builds the expiry rejection, carrying the expiry
// timestamp so the client can render a renewal screen.
func LicenseExpired(expiresAt time.Time) *APIError {
	return NewWithDetails(http.StatusForbidden, CodeLicenseExpired,
		"Your license has expired. Please renew to continue",
		map[string]any{"expires_at": expiresAt.UTC().Format(time.RFC3339)})
}

// FromLicenseError translates typed failures from the license package
// and store into API errors. Unrecognized errors map to a generic 500 so
// internals never leak.
func FromLicenseError(err error) *APIError {
	switch {
	case errors.Is(err, license.ErrMalformedKey):
		return ErrMalformedKey
	case errors.Is(err, license.ErrIntegrityViolation):
		return ErrIntegrityViolation
	case errors.Is(err, license.ErrKeyExpired):
		return ErrKeyExpired
	case errors.Is(err, license.ErrMachineMismatch):
		return ErrMachineMismatch
	case errors.Is(err, license.ErrPharmacyMismatch):
		return ErrPharmacyMismatch
	case errors.Is(err, license.ErrDuplicateOwner):
		return ErrDuplicateOwner
	case errors.Is(err, store.ErrNotFound):
		return ErrAccountNotFound
	}

	var ve *license.ValidationError
	if errors.As(err, &ve) {
		return ErrValidation(ve.Field, ve.Reason)
	}
	return ErrInternalServer
}

// FromGuardDecision translates a blocking guard decision into an API
// error. Callers must not pass an allowing decision.
func FromGuardDecision(d license.Decision) *APIError {
	switch d.State {
	case license.StateUnknown:
		return ErrAccountNotFound
	case license.StateSuspended:
		return ErrLicenseSuspended
	case license.StateExpired:
		return LicenseExpired(d.ExpiresAt)
	default:
		return ErrInternalServer
	}
}
