package buildtrack

import (
	"os"
	"strconv"
)

// EnvConfig reads configuration from the process environment with sane
// development defaults. Satisfies Config.
type EnvConfig struct{}

var _ Config = EnvConfig{}

func (EnvConfig) GetSigningKey() string {
	return envOr("JWT_SECRET", "dev-signing-key-change-me")
}

// GetTokenExpirationDays is the session token validity. Fixed at 7 days
// unless overridden.
func (EnvConfig) GetTokenExpirationDays() int {
	if v, err := strconv.Atoi(os.Getenv("TOKEN_EXPIRATION_DAYS")); err == nil && v > 0 {
		return v
	}
	return 7
}

func (EnvConfig) GetIssuer() string {
	return envOr("TOKEN_ISSUER", "buildtrack")
}

func (EnvConfig) GetListenAddr() string {
	return ":" + envOr("PORT", "5000")
}

func (EnvConfig) GetDatabaseDSN() string {
	return envOr("DATABASE_DSN", "file:buildtrack.db?cache=shared&mode=rwc")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
