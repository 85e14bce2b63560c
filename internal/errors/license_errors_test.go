package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pharmapos/internal/license"
	"pharmapos/internal/store"
)

func TestFromLicenseError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed key", license.ErrMalformedKey, http.StatusBadRequest, CodeMalformedKey},
		{"integrity violation", license.ErrIntegrityViolation, http.StatusBadRequest, CodeIntegrityViolation},
		{"key expired", license.ErrKeyExpired, http.StatusBadRequest, CodeKeyExpired},
		{"machine mismatch", license.ErrMachineMismatch, http.StatusForbidden, CodeMachineMismatch},
		{"pharmacy mismatch", license.ErrPharmacyMismatch, http.StatusBadRequest, CodePharmacyMismatch},
		{"duplicate owner", license.ErrDuplicateOwner, http.StatusConflict, CodeDuplicateOwner},
		{"not found", store.ErrNotFound, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"wrapped", fmt.Errorf("activation: %w", license.ErrMachineMismatch), http.StatusForbidden, CodeMachineMismatch},
		{"validation", &license.ValidationError{Field: "term", Reason: "bad"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown error stays generic", fmt.Errorf("disk on fire"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromLicenseError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
		})
	}
}

func TestFromLicenseErrorNeverLeaksInternals(t *testing.T) {
	apiErr := FromLicenseError(fmt.Errorf("pq: connection to 10.0.0.5 refused"))
	assert.NotContains(t, apiErr.Message, "10.0.0.5")
	assert.Nil(t, apiErr.Details)
}

func TestFromGuardDecision(t *testing.T) {
	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		decision   license.Decision
		wantStatus int
		wantCode   string
	}{
		{"unknown", license.Decision{State: license.StateUnknown}, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"suspended", license.Decision{State: license.StateSuspended}, http.StatusForbidden, CodeLicenseSuspended},
		{"expired", license.Decision{State: license.StateExpired, ExpiresAt: expires}, http.StatusForbidden, CodeLicenseExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromGuardDecision(tt.decision)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
		})
	}
}

func TestLicenseExpiredCarriesTimestamp(t *testing.T) {
	expires := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)
	apiErr := LicenseExpired(expires)

	details, ok := apiErr.Details.(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "2026-05-01T12:30:00Z", details["expires_at"])
}
