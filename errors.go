package buildtrack

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes carried by structured errors so API clients can branch on the
// failure kind without parsing human-readable messages.
const (
	TextCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	TextCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	TextCodeAlreadyVerified      = "EMAIL_ALREADY_VERIFIED"
	TextCodeInvalidOTP           = "INVALID_OR_EXPIRED_OTP"
	TextCodeInvalidCreds         = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	TextCodePendingApproval      = "PENDING_ADMIN_APPROVAL"
	TextCodeAccountLocked        = "ACCOUNT_LOCKED"
	TextCodeAdminRequired        = "ADMIN_REQUIRED"
	TextCodeInvalidSiteRef       = "INVALID_SITE_REFERENCE"
	TextCodeIncorrectPassword    = "INCORRECT_CURRENT_PASSWORD"
	TextCodeNotificationFailure  = "NOTIFICATION_FAILURE"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeTokenMissing         = "TOKEN_MISSING"
	TextCodeEmptyPassword        = "EMPTY_PASSWORD"
	TextCodePasswordHashMissing  = "PASSWORD_NOT_SET"
)

// ErrDuplicateEmail is returned when registering an email that already has an account.
var ErrDuplicateEmail = errors.New("user with this email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeBadRequest)

// ErrAccountNotFound is returned when no account matches the lookup.
var ErrAccountNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrAlreadyVerified is returned when verifying or re-sending an OTP for a verified email.
var ErrAlreadyVerified = errors.New("email is already verified", errors.CategoryValidation).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(errors.CodeBadRequest)

// ErrInvalidOTP covers both a wrong code and a code past its validity window.
var ErrInvalidOTP = errors.New("invalid or expired OTP", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidOTP).
	WithCode(errors.CodeBadRequest)

// ErrInvalidCredentials is the generic login failure for a bad email/password pair.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified blocks login until the email OTP flow completes.
var ErrEmailNotVerified = errors.New("please verify your email before logging in", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeUnauthorized)

// ErrPendingAdminApproval blocks role=user logins until an admin verifies the account.
var ErrPendingAdminApproval = errors.New("your account is pending admin verification", errors.CategoryAuth).
	WithTextCode(TextCodePendingApproval).
	WithCode(errors.CodeUnauthorized)

// ErrVerifyBeforeReset gates the password-recovery flow on a verified email.
var ErrVerifyBeforeReset = errors.New("please verify your email first before requesting password reset", errors.CategoryValidation).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeBadRequest)

// ErrAccountLocked is returned while a failed-login lockout window is active.
// Rendered as HTTP 423, distinguishable from invalid credentials.
var ErrAccountLocked = errors.New("account is temporarily locked due to too many failed login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked)

// ErrAdminRequired is returned when a non-admin calls an admin-only operation.
var ErrAdminRequired = errors.New("access denied, admin privileges required", errors.CategoryAuthz).
	WithTextCode(TextCodeAdminRequired).
	WithCode(errors.CodeForbidden)

// ErrInvalidSiteReference is returned when a site assignment names unknown site ids.
var ErrInvalidSiteReference = errors.New("some site ids are invalid", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidSiteRef).
	WithCode(errors.CodeBadRequest)

// ErrIncorrectCurrentPassword is returned by the change-password flow.
var ErrIncorrectCurrentPassword = errors.New("current password is incorrect", errors.CategoryValidation).
	WithTextCode(TextCodeIncorrectPassword).
	WithCode(errors.CodeBadRequest)

// ErrNotificationFailure is returned when OTP delivery fails. Registration
// compensates by deleting the just-created account before surfacing this.
var ErrNotificationFailure = errors.New("failed to send verification email, please try again", errors.CategoryOperation).
	WithTextCode(TextCodeNotificationFailure).
	WithCode(errors.CodeInternal)

// ErrTokenExpired is returned for tokens past their expiry.
var ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tampered or undecodable tokens.
var ErrTokenMalformed = errors.New("invalid token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMissing is returned when the Authorization header carries no bearer token.
var ErrTokenMissing = errors.New("access token is required", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMissing).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrPasswordNotSet is returned when an account has no password hash yet,
// e.g. a freshly admin-created record pending setup.
var ErrPasswordNotSet = errors.New("account has no password set", errors.CategoryAuth).
	WithTextCode(TextCodePasswordHashMissing).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError checks for expired-token failures, including the raw
// jwt library message when the error was not wrapped.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedTokenError checks for tampered/undecodable token failures.
func IsMalformedTokenError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// wrapInternal hides store and infrastructure errors behind a generic
// internal failure while preserving the cause for operators.
func wrapInternal(err error, msg string) *errors.Error {
	return errors.Wrap(err, errors.CategoryInternal, msg).WithCode(errors.CodeInternal)
}
