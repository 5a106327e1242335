package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRotationDue(t *testing.T) {
	from := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		interval string
		want     time.Time
	}{
		{"30d", from.AddDate(0, 1, 0)},
		{"90d", from.AddDate(0, 3, 0)},
		{"180d", from.AddDate(0, 6, 0)},
		{"365d", from.AddDate(1, 0, 0)},
		{"7d", from.AddDate(0, 3, 0)}, // unknown intervals fall back to 90d
		{"", from.AddDate(0, 3, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			assert.Equal(t, tt.want, rotationDue(from, tt.interval))
		})
	}
}

// Month-end dates roll forward per time.AddDate normalization: Jan 31 + one
// month is Mar 3 (or Mar 2 in leap years), not Feb 28.
func TestRotationDueMonthEndNormalization(t *testing.T) {
	from := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), rotationDue(from, "30d"))
}

func TestPolicyName(t *testing.T) {
	assert.Equal(t, "api-key-payments-team", PolicyName("api-key", "payments-team"))
}

func TestPolicyRules(t *testing.T) {
	rules := policyRules("dynamic-secrets", "jwt", "auth-team")
	assert.Equal(t, `path "dynamic-secrets/data/jwt/auth-team" {
  capabilities = ["read"]
}`, rules)
}
