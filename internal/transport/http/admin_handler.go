package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"pharmapos/internal/auth"
	apierrors "pharmapos/internal/errors"
	"pharmapos/internal/license"
	"pharmapos/internal/store"
	"pharmapos/pkg/contracts/domain"
)

// AdminHandler exposes the back-office tenant lifecycle: onboarding,
// renewal, suspension, and purge. Every route requires the admin role.
type AdminHandler struct {
	authority  *license.Authority
	bcryptCost int
	logger     *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(authority *license.Authority, bcryptCost int, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authority:  authority,
		bcryptCost: bcryptCost,
		logger:     logger.With(slog.String("handler", "admin")),
	}
}

// Routes returns the chi router for admin endpoints.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/pharmacies", h.Onboard)
	r.Route("/pharmacies/{pharmacyID}", func(r chi.Router) {
		r.Post("/renew", h.Renew)
		r.Post("/suspend", h.Suspend)
		r.Post("/reactivate", h.Reactivate)
		r.Delete("/", h.Purge)
	})
	return r
}

// PharmacyResponse is the admin-facing view of a license record. The
// activation key appears only in the response to the call that minted
// it; it is never stored or shown again.
type PharmacyResponse struct {
	PharmacyID     uuid.UUID `json:"pharmacy_id"`
	Name           string    `json:"name"`
	IsActive       bool      `json:"is_active"`
	LicenseStarted time.Time `json:"license_started_at"`
	LicenseExpires time.Time `json:"license_expires_at"`
	MachineBound   bool      `json:"machine_bound"`
	TotalPaid      int64     `json:"total_paid"`
	ActivationKey  string    `json:"activation_key,omitempty"`
}

func pharmacyResponse(rec *store.LicenseRecord, key string) *PharmacyResponse {
	resp := &PharmacyResponse{
		PharmacyID:     rec.PharmacyID,
		Name:           rec.Name,
		IsActive:       rec.IsActive,
		LicenseStarted: rec.LicenseStarted,
		LicenseExpires: rec.LicenseExpires,
		MachineBound:   rec.BoundMachineID != "",
		TotalPaid:      rec.TotalPaid,
	}
	if key != "" {
		resp.ActivationKey = license.FormatKeyWithDashes(key)
	}
	return resp
}

// Onboard creates a pharmacy tenant, its owner account, and the first
// activation key.
func (h *AdminHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	req := &domain.OnboardRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	hash, err := auth.HashPassword(req.OwnerPassword, h.bcryptCost)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "password hash failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	rec, key, err := h.authority.Onboard(r.Context(), license.OnboardParams{
		PharmacyName:      req.PharmacyName,
		OwnerEmail:        req.OwnerEmail,
		OwnerPasswordHash: hash,
		Term:              license.Term{Months: req.Term.Months, Minutes: req.Term.Minutes},
		PaidAmount:        req.PaidAmount,
		MachineID:         req.MachineID,
	})
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromLicenseError(err)))
		return
	}

	h.logger.InfoContext(r.Context(), "pharmacy onboarded",
		slog.String("pharmacy_id", rec.PharmacyID.String()),
		slog.String("key", license.MaskKey(key)))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, pharmacyResponse(rec, key))
}

// Renew restarts the license term from now. When the request names a
// machine, a fresh key bound to it is minted and returned for hand-off.
func (h *AdminHandler) Renew(w http.ResponseWriter, r *http.Request) {
	pharmacyID, ok := h.pathPharmacyID(w, r)
	if !ok {
		return
	}

	req := &domain.RenewRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	rec, key, err := h.authority.Renew(r.Context(), pharmacyID, license.RenewParams{
		Term:       license.Term{Months: req.Term.Months, Minutes: req.Term.Minutes},
		IsActive:   req.IsActive,
		PaidAmount: req.PaidAmount,
		MachineID:  req.MachineID,
	})
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromLicenseError(err)))
		return
	}

	h.logger.InfoContext(r.Context(), "license renewed",
		slog.String("pharmacy_id", pharmacyID.String()),
		slog.Time("expires_at", rec.LicenseExpires))

	render.JSON(w, r, pharmacyResponse(rec, key))
}

// Suspend deactivates the tenant without touching its term or payments.
func (h *AdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Reactivate lifts a suspension.
func (h *AdminHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AdminHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	pharmacyID, ok := h.pathPharmacyID(w, r)
	if !ok {
		return
	}

	var (
		rec *store.LicenseRecord
		err error
	)
	if active {
		rec, err = h.authority.Reactivate(r.Context(), pharmacyID)
	} else {
		rec, err = h.authority.Suspend(r.Context(), pharmacyID)
	}
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromLicenseError(err)))
		return
	}
	render.JSON(w, r, pharmacyResponse(rec, ""))
}

// Purge removes the tenant and all of its user accounts.
func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	pharmacyID, ok := h.pathPharmacyID(w, r)
	if !ok {
		return
	}

	if err := h.authority.Purge(r.Context(), pharmacyID); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromLicenseError(err)))
		return
	}
	render.NoContent(w, r)
}

func (h *AdminHandler) pathPharmacyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "pharmacyID"))
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.ErrValidation("pharmacy_id", "must be a valid UUID")))
		return uuid.Nil, false
	}
	return id, true
}
