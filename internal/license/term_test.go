package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTermValidate(t *testing.T) {
	tests := []struct {
		name    string
		term    Term
		wantErr bool
	}{
		{"months only", Term{Months: 12}, false},
		{"minutes only", Term{Minutes: 3}, false},
		{"neither", Term{}, true},
		{"both supplied", Term{Months: 1, Minutes: 5}, true},
		{"negative months", Term{Months: -1}, true},
		{"negative minutes", Term{Minutes: -3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.term.Validate()
			if tt.wantErr {
				assert.True(t, IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTermEnd(t *testing.T) {
	now := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2027, 8, 27, 9, 0, 0, 0, time.UTC), Term{Months: 12}.End(now))
	assert.Equal(t, now.Add(3*time.Minute), Term{Minutes: 3}.End(now))
}

func TestTermIsTrial(t *testing.T) {
	assert.True(t, Term{Minutes: 5}.IsTrial())
	assert.False(t, Term{Months: 1}.IsTrial())
}
