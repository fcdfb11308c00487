package buildtrack

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the account's authorization role.
type UserRole = string

const (
	// RoleUser is an ordinary account; requires admin verification before login.
	RoleUser UserRole = "user"
	// RoleAdmin can approve users and manage site assignments.
	RoleAdmin UserRole = "admin"
	// RoleSuperAdmin has the same privileges as admin.
	RoleSuperAdmin UserRole = "super_admin"
)

const (
	// MaxLoginAttempts is the failed-login threshold that triggers a lockout.
	MaxLoginAttempts = 5
	// LockoutDuration is how long an account stays locked once the threshold is hit.
	LockoutDuration = 2 * time.Hour
)

// Employee is the account model. One row per user; the row is the unit of
// consistency for lockout counters, OTP channels, and verification flags.
type Employee struct {
	bun.BaseModel `bun:"table:employees,alias:emp"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name         string    `bun:"name,notnull" json:"name,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone        string    `bun:"phone,notnull" json:"phone,omitempty"`
	Position     string    `bun:"position" json:"position,omitempty"`
	CompanyCode  string    `bun:"company_code" json:"companyCode,omitempty"`
	PasswordHash string    `bun:"password_hash" json:"-"`

	IsEmailVerified      bool       `bun:"is_email_verified" json:"isEmailVerified"`
	EmailVerificationOTP string     `bun:"email_verification_otp,nullzero" json:"-"`
	OTPExpiry            *time.Time `bun:"otp_expiry,nullzero" json:"-"`

	ForgotPasswordOTP       string     `bun:"forgot_password_otp,nullzero" json:"-"`
	ForgotPasswordOTPExpiry *time.Time `bun:"forgot_password_otp_expiry,nullzero" json:"-"`

	Role            UserRole   `bun:"role,notnull,default:'user'" json:"role,omitempty"`
	IsAdminVerified bool       `bun:"is_admin_verified" json:"isAdminVerified"`
	AdminVerifiedBy *uuid.UUID `bun:"admin_verified_by,nullzero,type:uuid" json:"adminVerifiedBy,omitempty"`
	AdminVerifiedAt *time.Time `bun:"admin_verified_at,nullzero" json:"adminVerifiedAt,omitempty"`

	LoginAttempts int        `bun:"login_attempts" json:"-"`
	LockUntil     *time.Time `bun:"lock_until,nullzero" json:"-"`

	AssignedSites []*Site `bun:"m2m:employee_sites,join:Employee=Site" json:"assignedSites,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
}

// IsAdmin reports whether the account may call admin-only operations.
func (e *Employee) IsAdmin() bool {
	return e.Role == RoleAdmin || e.Role == RoleSuperAdmin
}

// IsLocked reports whether a failed-login lockout is currently active.
func (e *Employee) IsLocked(now time.Time) bool {
	return e.LockUntil != nil && e.LockUntil.After(now)
}

// ApplyFailedLogin advances the lockout state for one failed password check.
// A previously-expired lock restarts the counter at 1 (not 0) and clears the
// lock; otherwise the counter increments and, on reaching MaxLoginAttempts
// while unlocked, arms a lock for LockoutDuration.
func (e *Employee) ApplyFailedLogin(now time.Time) {
	if e.LockUntil != nil && e.LockUntil.Before(now) {
		e.LoginAttempts = 1
		e.LockUntil = nil
		return
	}

	e.LoginAttempts++
	if e.LoginAttempts >= MaxLoginAttempts && !e.IsLocked(now) {
		until := now.Add(LockoutDuration)
		e.LockUntil = &until
	}
}

// IssueEmailOTP arms the email-verification OTP channel.
func (e *Employee) IssueEmailOTP(otp string, now time.Time) {
	expiry := now.Add(OTPValidity)
	e.EmailVerificationOTP = otp
	e.OTPExpiry = &expiry
}

// VerifyEmailOTP checks a candidate against the email-verification channel.
// On success the channel is cleared and the email marked verified (single
// use). On detected expiry the channel is also cleared, forcing a resend. A
// plain mismatch before expiry leaves the channel intact so the caller may
// retry until the window closes.
func (e *Employee) VerifyEmailOTP(candidate string, now time.Time) bool {
	if e.EmailVerificationOTP == "" || e.OTPExpiry == nil {
		return false
	}

	if now.After(*e.OTPExpiry) {
		e.EmailVerificationOTP = ""
		e.OTPExpiry = nil
		return false
	}

	if e.EmailVerificationOTP != candidate {
		return false
	}

	e.EmailVerificationOTP = ""
	e.OTPExpiry = nil
	e.IsEmailVerified = true
	return true
}

// IssueRecoveryOTP arms the forgot-password OTP channel. The channel is
// independent of the email-verification one; they never share state.
func (e *Employee) IssueRecoveryOTP(otp string, now time.Time) {
	expiry := now.Add(OTPValidity)
	e.ForgotPasswordOTP = otp
	e.ForgotPasswordOTPExpiry = &expiry
}

// VerifyRecoveryOTP mirrors VerifyEmailOTP for the forgot-password channel,
// without touching the email-verified flag.
func (e *Employee) VerifyRecoveryOTP(candidate string, now time.Time) bool {
	if e.ForgotPasswordOTP == "" || e.ForgotPasswordOTPExpiry == nil {
		return false
	}

	if now.After(*e.ForgotPasswordOTPExpiry) {
		e.ForgotPasswordOTP = ""
		e.ForgotPasswordOTPExpiry = nil
		return false
	}

	if e.ForgotPasswordOTP != candidate {
		return false
	}

	e.ForgotPasswordOTP = ""
	e.ForgotPasswordOTPExpiry = nil
	return true
}

// Site is the construction-site summary the auth flows touch: assignment
// validation, login responses, and the admin all-sites listing. The full site
// bookkeeping lives with its own collaborator.
type Site struct {
	bun.BaseModel `bun:"table:sites,alias:st"`

	ID       uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SiteName string    `bun:"site_name,notnull,unique" json:"siteName,omitempty"`
	SiteCode string    `bun:"site_code,notnull" json:"siteCode,omitempty"`
	Address  string    `bun:"address" json:"address,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
}

// EmployeeSite is the join row binding an account to an assigned site.
type EmployeeSite struct {
	bun.BaseModel `bun:"table:employee_sites,alias:es"`

	EmployeeID uuid.UUID `bun:"employee_id,pk,type:uuid"`
	Employee   *Employee `bun:"rel:belongs-to,join:employee_id=id"`
	SiteID     uuid.UUID `bun:"site_id,pk,type:uuid"`
	Site       *Site     `bun:"rel:belongs-to,join:site_id=id"`
}

// ChatMessage is one persisted chat entry. Immutable after creation; rooms
// replay the most recent window on join and admins may bulk-delete a site's
// history.
type ChatMessage struct {
	bun.BaseModel `bun:"table:chat_messages,alias:msg"`

	ID     uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SiteID string    `bun:"site_id,notnull" json:"siteId"`
	Sender string    `bun:"sender,notnull" json:"sender"`
	Body   string    `bun:"message,notnull" json:"message"`
	// Timestamp is caller-supplied on the realtime path; persistence fills it
	// with the server clock only when absent.
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`
	IsUser    bool      `bun:"is_user" json:"isUser"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
}
