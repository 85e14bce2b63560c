package license

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"pharmapos/internal/store"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	record := func(active bool, expires time.Time) *store.LicenseRecord {
		return &store.LicenseRecord{
			PharmacyID:     uuid.New(),
			Name:           "Al-Shifa Pharmacy",
			IsActive:       active,
			LicenseStarted: now.AddDate(0, -1, 0),
			LicenseExpires: expires,
		}
	}

	tests := []struct {
		name    string
		rec     *store.LicenseRecord
		want    State
		allowed bool
	}{
		{
			name:    "missing record is unknown",
			rec:     nil,
			want:    StateUnknown,
			allowed: false,
		},
		{
			name:    "active and unexpired",
			rec:     record(true, now.AddDate(0, 11, 0)),
			want:    StateActive,
			allowed: true,
		},
		{
			name:    "suspended wins over valid expiry",
			rec:     record(false, now.AddDate(0, 11, 0)),
			want:    StateSuspended,
			allowed: false,
		},
		{
			name:    "suspended wins over expiry too",
			rec:     record(false, now.AddDate(0, -1, 0)),
			want:    StateSuspended,
			allowed: false,
		},
		{
			name:    "expired",
			rec:     record(true, now.Add(-time.Second)),
			want:    StateExpired,
			allowed: false,
		},
		{
			name:    "expiring exactly now is expired",
			rec:     record(true, now),
			want:    StateExpired,
			allowed: false,
		},
		{
			name:    "one second of validity left",
			rec:     record(true, now.Add(time.Second)),
			want:    StateActive,
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.rec, now)
			assert.Equal(t, tt.want, d.State)
			assert.Equal(t, tt.allowed, d.Allowed())
			if tt.rec != nil {
				assert.Equal(t, tt.rec.LicenseExpires, d.ExpiresAt,
					"expiry must be carried so the client can render a renewal screen")
			}
		})
	}
}

func TestEvaluateDaysLeft(t *testing.T) {
	now := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	rec := &store.LicenseRecord{
		IsActive:       true,
		LicenseExpires: now.Add(10*24*time.Hour + time.Hour),
	}

	d := Evaluate(rec, now)
	assert.Equal(t, 10, d.DaysLeft)
}

func TestEvaluateIsPure(t *testing.T) {
	now := time.Now().UTC()
	rec := &store.LicenseRecord{IsActive: false, LicenseExpires: now.AddDate(1, 0, 0)}
	before := *rec

	Evaluate(rec, now)
	assert.Equal(t, before, *rec, "the guard must never mutate the record")
}
