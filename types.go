package buildtrack

import "fmt"

// Logger is the minimal logging surface used across the package. Any
// structured logger can be adapted to it.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the settings the auth and chat components need.
type Config interface {
	GetSigningKey() string
	GetTokenExpirationDays() int
	GetIssuer() string
	GetListenAddr() string
	GetDatabaseDSN() string
}

// NewAppLogger returns the default stderr logger, used by cmd/server when no
// custom Logger is wired in.
func NewAppLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] BUILDTRACK "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] BUILDTRACK "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] BUILDTRACK "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
