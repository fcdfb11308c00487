package buildtrack

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// OTPValidity is how long a freshly issued OTP stays usable. Expiry is
// checked lazily at verification time; nothing evicts stale codes.
const OTPValidity = 10 * time.Minute

// otpDigits is the fixed code length for both OTP channels.
const otpDigits = 6

var otpMax = big.NewInt(1000000)

// GenerateOTP returns a 6-digit numeric code, zero-padded.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", wrapInternal(err, "failed to generate OTP")
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
