package buildtrack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrack/buildtrack"
)

func TestGenerateOTP(t *testing.T) {
	seen := map[string]struct{}{}

	for i := 0; i < 50; i++ {
		otp, err := buildtrack.GenerateOTP()
		require.NoError(t, err)
		require.Len(t, otp, 6)
		for _, r := range otp {
			assert.True(t, r >= '0' && r <= '9', "OTP must be numeric, got %q", otp)
		}
		seen[otp] = struct{}{}
	}

	assert.Greater(t, len(seen), 1, "codes should vary across generations")
}
