// Package services provides the business logic layer between HTTP
// transport and the license core.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pharmapos/internal/license"
	"pharmapos/internal/security"
	"pharmapos/internal/store"
)

// LicenseService exposes license state and activation to the transport
// layer. Every status call re-reads the store and re-evaluates the
// guard; there is no authoritative cache.
type LicenseService interface {
	Status(ctx context.Context, pharmacyID uuid.UUID) (*LicenseSummary, error)
	Activate(ctx context.Context, pharmacyID uuid.UUID, enteredKey string) (*LicenseSummary, error)
	MachineID(ctx context.Context) (string, error)
	// Guard evaluates the license gate for one pharmacy. A nil record
	// (purged tenant) yields StateUnknown rather than an error.
	Guard(ctx context.Context, pharmacyID uuid.UUID) (license.Decision, error)
}

// LicenseSummary is the client-facing license state, suitable for the
// lock/renewal screens. It never includes key material beyond a mask.
type LicenseSummary struct {
	PharmacyID     uuid.UUID     `json:"pharmacy_id"`
	PharmacyName   string        `json:"pharmacy_name"`
	State          license.State `json:"state"`
	ExpiresAt      time.Time     `json:"expires_at"`
	DaysLeft       int           `json:"days_left"`
	RenewalUrgency string        `json:"renewal_urgency"`
	Message        string        `json:"message"`
	MachineBound   bool          `json:"machine_bound"`
}

type licenseService struct {
	store       store.Store
	authority   *license.Authority
	fingerprint *security.FingerprintManager
	logger      *slog.Logger
	now         func() time.Time
}

// NewLicenseService wires the license service.
func NewLicenseService(s store.Store, authority *license.Authority, fp *security.FingerprintManager, logger *slog.Logger) LicenseService {
	return &licenseService{
		store:       s,
		authority:   authority,
		fingerprint: fp,
		logger:      logger.With(slog.String("service", "license")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *licenseService) Guard(ctx context.Context, pharmacyID uuid.UUID) (license.Decision, error) {
	rec, err := s.store.Get(ctx, pharmacyID)
	if err != nil {
		if err == store.ErrNotFound {
			return license.Evaluate(nil, s.now()), nil
		}
		return license.Decision{}, fmt.Errorf("failed to read license record: %w", err)
	}
	return license.Evaluate(rec, s.now()), nil
}

func (s *licenseService) Status(ctx context.Context, pharmacyID uuid.UUID) (*LicenseSummary, error) {
	rec, err := s.store.Get(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	return s.summarize(rec), nil
}

func (s *licenseService) Activate(ctx context.Context, pharmacyID uuid.UUID, enteredKey string) (*LicenseSummary, error) {
	machineID, err := s.fingerprint.MachineID()
	if err != nil {
		return nil, fmt.Errorf("failed to determine machine id: %w", err)
	}

	rec, err := s.authority.Activate(ctx, pharmacyID, enteredKey, machineID)
	if err != nil {
		return nil, err
	}

	// The client persists this summary only as an optimistic cache; the
	// guard re-verifies on the next privileged call.
	return s.summarize(rec), nil
}

func (s *licenseService) MachineID(ctx context.Context) (string, error) {
	return s.fingerprint.MachineID()
}

func (s *licenseService) summarize(rec *store.LicenseRecord) *LicenseSummary {
	d := license.Evaluate(rec, s.now())
	return &LicenseSummary{
		PharmacyID:     rec.PharmacyID,
		PharmacyName:   rec.Name,
		State:          d.State,
		ExpiresAt:      rec.LicenseExpires,
		DaysLeft:       d.DaysLeft,
		RenewalUrgency: renewalUrgency(d),
		Message:        statusMessage(d),
		MachineBound:   rec.BoundMachineID != "",
	}
}

func renewalUrgency(d license.Decision) string {
	switch {
	case d.State == license.StateExpired:
		return "critical"
	case d.State != license.StateActive:
		return "none"
	case d.DaysLeft < 7:
		return "high"
	case d.DaysLeft < 30:
		return "medium"
	default:
		return "low"
	}
}

func statusMessage(d license.Decision) string {
	switch d.State {
	case license.StateActive:
		if d.DaysLeft < 7 {
			return fmt.Sprintf("License expires in %d days. Renew soon to avoid interruption", d.DaysLeft)
		}
		return "License is active"
	case license.StateSuspended:
		return "This account has been deactivated. Please contact support"
	case license.StateExpired:
		return "License has expired. Enter a renewal key to continue"
	default:
		return "Account not found"
	}
}
