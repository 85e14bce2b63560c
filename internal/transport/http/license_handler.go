package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apierrors "pharmapos/internal/errors"
	"pharmapos/internal/license"
	"pharmapos/internal/middleware"
	"pharmapos/internal/services"
	"pharmapos/pkg/contracts/domain"
)

// LicenseHandler handles license status and activation requests.
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the chi router for license endpoints. Machine id and
// activation stay outside the gate, behind the rate limiter instead: a
// locked terminal must be able to read its fingerprint and submit a
// renewal key without logging in. Status requires a session.
func (h *LicenseHandler) Routes(limiter, gate func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(limiter).Get("/machine-id", h.MachineID)
	r.With(limiter).Post("/activate", h.Activate)
	r.With(gate).Get("/status", h.Status)
	return r
}

// MachineID reports the local hardware fingerprint. Support staff read
// it off the lock screen when issuing a machine-bound key.
func (h *LicenseHandler) MachineID(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.MachineID(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "fingerprint failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	render.JSON(w, r, map[string]string{"machine_id": id})
}

// Activate redeems a license key against this terminal. The pharmacy is
// taken from the session when one exists; otherwise the request must
// carry the pharmacy id handed out with the login rejection.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	req := &domain.ActivationRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	pharmacyID, ok := h.resolvePharmacy(r, req.PharmacyID)
	if !ok {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.ErrValidation("pharmacy_id", "pharmacy_id is required without a session")))
		return
	}

	summary, err := h.service.Activate(r.Context(), pharmacyID, req.LicenseKey)
	if err != nil {
		h.logger.WarnContext(r.Context(), "activation rejected",
			slog.String("pharmacy_id", pharmacyID.String()),
			slog.String("key", license.MaskKey(req.LicenseKey)),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromLicenseError(err)))
		return
	}

	h.logger.InfoContext(r.Context(), "license activated",
		slog.String("pharmacy_id", pharmacyID.String()),
		slog.String("key", license.MaskKey(req.LicenseKey)))

	render.Status(r, http.StatusOK)
	render.JSON(w, r, summary)
}

// Status reports the caller's license summary.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil || session.PharmacyID == uuid.Nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrForbidden))
		return
	}

	summary, err := h.service.Status(r.Context(), session.PharmacyID)
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.FromLicenseError(err)))
		return
	}
	render.JSON(w, r, summary)
}

func (h *LicenseHandler) resolvePharmacy(r *http.Request, fromBody string) (uuid.UUID, bool) {
	if session := middleware.SessionFromContext(r.Context()); session != nil && session.PharmacyID != uuid.Nil {
		return session.PharmacyID, true
	}
	id, err := uuid.Parse(fromBody)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
