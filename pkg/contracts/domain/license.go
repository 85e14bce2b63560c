// Package domain holds the request and response contracts shared
// between the HTTP transport and its clients.
package domain

import (
	"net/http"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for request binding.
var validate = validator.New()

// LoginRequest is the POST /api/auth/login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Bind implements render.Binder.
func (req *LoginRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// ActivationRequest is the POST /api/license/activate payload.
// PharmacyID is optional when the caller is authenticated; a locked
// terminal supplies the value it received with its login rejection.
type ActivationRequest struct {
	PharmacyID string `json:"pharmacy_id,omitempty" validate:"omitempty,uuid"`
	LicenseKey string `json:"license_key" validate:"required,min=10"`
}

// Bind implements render.Binder.
func (req *ActivationRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// TermRequest carries a license duration. Months and minutes are
// mutually exclusive; the authority rejects requests carrying both.
type TermRequest struct {
	Months  int `json:"months,omitempty" validate:"min=0,max=120"`
	Minutes int `json:"minutes,omitempty" validate:"min=0,max=10080"`
}

// OnboardRequest is the admin payload for creating a pharmacy tenant.
type OnboardRequest struct {
	PharmacyName  string      `json:"pharmacy_name" validate:"required,min=2,max=120"`
	OwnerEmail    string      `json:"owner_email" validate:"required,email"`
	OwnerPassword string      `json:"owner_password" validate:"required,min=8"`
	Term          TermRequest `json:"term"`
	PaidAmount    int64       `json:"paid_amount" validate:"min=0"`
	MachineID     string      `json:"machine_id,omitempty"`
}

// Bind implements render.Binder.
func (req *OnboardRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}

// RenewRequest is the admin payload for renewing a license.
type RenewRequest struct {
	Term       TermRequest `json:"term"`
	IsActive   *bool       `json:"is_active,omitempty"`
	PaidAmount int64       `json:"paid_amount" validate:"min=0"`
	MachineID  string      `json:"machine_id,omitempty"`
}

// Bind implements render.Binder.
func (req *RenewRequest) Bind(r *http.Request) error {
	return validate.Struct(req)
}
