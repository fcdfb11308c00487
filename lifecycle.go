package buildtrack

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AccountStatus is the derived lifecycle position of an account. It is never
// stored; it is computed from the verification flags and the lock window so
// it can not drift from the underlying row.
type AccountStatus string

const (
	// StatusPendingEmail means the email OTP flow has not completed yet.
	StatusPendingEmail AccountStatus = "pending_email_verification"
	// StatusPendingApproval means the email is verified but an admin has not
	// approved the account. Only role user passes through this state.
	StatusPendingApproval AccountStatus = "pending_admin_approval"
	// StatusActive means the account can log in.
	StatusActive AccountStatus = "active"
	// StatusLocked overlays any state while a failed-login lockout is live.
	StatusLocked AccountStatus = "locked"
)

const textCodeInvalidTransition = "INVALID_ACCOUNT_TRANSITION"

// ErrInvalidTransition is returned when an operation would move an account
// along an edge the lifecycle does not allow, e.g. admin-approving an
// account whose email was never verified.
var ErrInvalidTransition = goerrors.New("account state does not allow this operation", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// accountTransitions lists the allowed lifecycle edges. The self edge on
// active keeps admin re-verification idempotent.
var accountTransitions = map[AccountStatus]map[AccountStatus]struct{}{
	StatusPendingEmail: {
		StatusPendingApproval: {},
	},
	StatusPendingApproval: {
		StatusActive: {},
	},
	StatusActive: {
		StatusActive: {},
	},
	// A lock expires back into active; nothing else is reachable from it.
	StatusLocked: {
		StatusActive: {},
	},
}

// Status reports where the account sits in the lifecycle at the given time.
// The lock overlay wins over everything else.
func (e *Employee) Status(now time.Time) AccountStatus {
	if e.IsLocked(now) {
		return StatusLocked
	}
	if !e.IsEmailVerified {
		return StatusPendingEmail
	}
	if e.Role == RoleUser && !e.IsAdminVerified {
		return StatusPendingApproval
	}
	return StatusActive
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another.
func CanTransition(from, to AccountStatus) bool {
	targets, ok := accountTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// EnsureTransition returns ErrInvalidTransition, annotated with both states,
// when the edge is not allowed.
func EnsureTransition(from, to AccountStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from": string(from),
		"to":   string(to),
	})
}
