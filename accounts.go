package buildtrack

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Accounts orchestrates the account lifecycle: registration, email OTP
// verification, login with lockout, password recovery, and password changes.
// Admin approval operations live in accounts_admin.go.
type Accounts struct {
	repo   RepositoryManager
	mailer Mailer
	tokens TokenService
	logger Logger
	now    func() time.Time
}

// AccountsOption customizes Accounts construction.
type AccountsOption func(*Accounts)

// WithAccountsLogger overrides the default logger.
func WithAccountsLogger(logger Logger) AccountsOption {
	return func(a *Accounts) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAccountsClock injects a custom clock (useful for tests).
func WithAccountsClock(clock func() time.Time) AccountsOption {
	return func(a *Accounts) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewAccounts wires the lifecycle service.
func NewAccounts(repo RepositoryManager, mailer Mailer, tokens TokenService, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		repo:   repo,
		mailer: mailer,
		tokens: tokens,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// RegisterInput is the registration payload after transport-level validation.
type RegisterInput struct {
	Name        string
	Email       string
	Phone       string
	Password    string
	CompanyCode string
}

// RegisterResult summarizes the freshly created, still-unverified account.
type RegisterResult struct {
	UserID          uuid.UUID `json:"userId"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	IsEmailVerified bool      `json:"isEmailVerified"`
}

// AuthResult is a session token plus the authenticated account.
type AuthResult struct {
	Token string    `json:"token"`
	User  *Employee `json:"user"`
}

// Register creates an account in the pending-email-verification state and
// delivers its OTP. If delivery fails the account is deleted again so no
// unverifiable orphan is left behind.
func (a *Accounts) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	email := NormalizeEmail(input.Email)

	if _, err := a.repo.Employees().GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !goerrors.IsNotFound(err) {
		return nil, wrapInternal(err, "failed to check for existing account")
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return nil, rich
		}
		return nil, wrapInternal(err, "failed to hash password")
	}

	otp, err := GenerateOTP()
	if err != nil {
		return nil, err
	}

	emp := &Employee{
		Name:         input.Name,
		Email:        email,
		Phone:        input.Phone,
		CompanyCode:  input.CompanyCode,
		PasswordHash: hash,
		Role:         RoleUser,
	}
	emp.IssueEmailOTP(otp, a.now())

	if emp, err = a.repo.Employees().Register(ctx, emp); err != nil {
		return nil, wrapInternal(err, "could not create user")
	}

	if err := a.mailer.SendVerificationOTP(ctx, emp.Email, emp.Name, otp); err != nil {
		a.logger.Error("registration OTP delivery for %s failed, deleting account: %v", emp.Email, err)
		if delErr := a.repo.Employees().DeleteByID(ctx, emp.ID); delErr != nil {
			a.logger.Error("compensating delete of %s failed: %v", emp.ID, delErr)
		}
		return nil, ErrNotificationFailure
	}

	return &RegisterResult{
		UserID:          emp.ID,
		Name:            emp.Name,
		Email:           emp.Email,
		IsEmailVerified: emp.IsEmailVerified,
	}, nil
}

// VerifyEmail consumes an email-verification OTP. On success the account is
// marked verified, a welcome mail goes out best-effort, and a session token
// is issued.
func (a *Accounts) VerifyEmail(ctx context.Context, email, otp string) (*AuthResult, error) {
	emp, err := a.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if emp.IsEmailVerified {
		return nil, ErrAlreadyVerified
	}

	stored := emp.EmailVerificationOTP
	if !emp.VerifyEmailOTP(otp, a.now()) {
		// detected expiry clears the channel; a plain mismatch keeps it
		if stored != "" && emp.EmailVerificationOTP == "" {
			if clearErr := a.repo.Employees().ClearEmailOTP(ctx, emp.ID, stored, false); clearErr != nil {
				a.logger.Error("failed to clear expired OTP for %s: %v", emp.ID, clearErr)
			}
		}
		return nil, ErrInvalidOTP
	}

	if err := a.repo.Employees().ClearEmailOTP(ctx, emp.ID, stored, true); err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich.TextCode == TextCodeInvalidOTP {
			// the code rotated between our read and the clear
			return nil, err
		}
		return nil, wrapInternal(err, "failed to persist email verification")
	}

	// advisory only; verification stands even if the mail bounces
	if err := a.mailer.SendWelcome(ctx, emp.Email, emp.Name); err != nil {
		a.logger.Error("welcome mail to %s failed: %v", emp.Email, err)
	}

	token, err := a.tokens.Generate(emp.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{Token: token, User: emp}, nil
}

// ResendOTP regenerates and redelivers the email-verification OTP.
func (a *Accounts) ResendOTP(ctx context.Context, email string) error {
	emp, err := a.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	if emp.IsEmailVerified {
		return ErrAlreadyVerified
	}

	otp, err := GenerateOTP()
	if err != nil {
		return err
	}

	if err := a.repo.Employees().StoreEmailOTP(ctx, emp.ID, otp, a.now().Add(OTPValidity)); err != nil {
		return wrapInternal(err, "failed to store OTP")
	}

	if err := a.mailer.SendVerificationOTP(ctx, emp.Email, emp.Name, otp); err != nil {
		a.logger.Error("OTP redelivery to %s failed: %v", emp.Email, err)
		return ErrNotificationFailure
	}

	return nil
}

// Login runs the ordered credential checks: account exists, not locked, email
// verified, admin approved (role=user only), password matches. A password
// mismatch records a failed attempt before failing. A successful login does
// not reset the attempt counter; the counter only restarts when an expired
// lock is detected on a later failed attempt.
func (a *Accounts) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	emp, err := a.repo.Employees().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, wrapInternal(err, "failed to load account")
	}

	now := a.now()

	switch emp.Status(now) {
	case StatusLocked:
		return nil, ErrAccountLocked
	case StatusPendingEmail:
		return nil, ErrEmailNotVerified
	case StatusPendingApproval:
		return nil, ErrPendingAdminApproval
	}

	if emp.PasswordHash == "" {
		return nil, ErrPasswordNotSet
	}

	if err := ComparePasswordAndHash(password, emp.PasswordHash); err != nil {
		if recErr := a.repo.Employees().RecordFailedLogin(ctx, emp.ID, now); recErr != nil {
			a.logger.Error("failed to record login attempt for %s: %v", emp.ID, recErr)
		}
		return nil, ErrInvalidCredentials
	}

	token, err := a.tokens.Generate(emp.ID)
	if err != nil {
		return nil, err
	}

	withSites, err := a.repo.Employees().GetWithSites(ctx, emp.ID)
	if err != nil {
		a.logger.Error("failed to load assigned sites for %s: %v", emp.ID, err)
		withSites = emp
	}

	return &AuthResult{Token: token, User: withSites}, nil
}

// CurrentUser loads the authenticated account with its site assignments.
func (a *Accounts) CurrentUser(ctx context.Context, id uuid.UUID) (*Employee, error) {
	emp, err := a.repo.Employees().GetWithSites(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapInternal(err, "failed to load account")
	}
	return emp, nil
}

// ChangePassword replaces the hash for an authenticated caller after
// verifying the current password.
func (a *Accounts) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	emp, err := a.CurrentUser(ctx, userID)
	if err != nil {
		return err
	}

	if emp.PasswordHash == "" {
		return ErrIncorrectCurrentPassword
	}

	if err := ComparePasswordAndHash(currentPassword, emp.PasswordHash); err != nil {
		return ErrIncorrectCurrentPassword
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return rich
		}
		return wrapInternal(err, "failed to hash password")
	}

	if err := a.repo.Employees().UpdatePasswordHash(ctx, emp.ID, hash); err != nil {
		return wrapInternal(err, "failed to update password")
	}

	return nil
}

// ForgotPassword arms the recovery OTP channel and mails the code. Requires
// an already-verified email.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) error {
	emp, err := a.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	if !emp.IsEmailVerified {
		return ErrVerifyBeforeReset
	}

	otp, err := GenerateOTP()
	if err != nil {
		return err
	}

	if err := a.repo.Employees().StoreRecoveryOTP(ctx, emp.ID, otp, a.now().Add(OTPValidity)); err != nil {
		return wrapInternal(err, "failed to store recovery OTP")
	}

	if err := a.mailer.SendPasswordResetOTP(ctx, emp.Email, emp.Name, otp); err != nil {
		a.logger.Error("password reset OTP delivery to %s failed: %v", emp.Email, err)
		return ErrNotificationFailure
	}

	return nil
}

// ResendForgotPasswordOTP regenerates and redelivers the recovery OTP; same
// guards as ForgotPassword.
func (a *Accounts) ResendForgotPasswordOTP(ctx context.Context, email string) error {
	return a.ForgotPassword(ctx, email)
}

// ResetPassword consumes an unexpired recovery OTP and replaces the password.
// The OTP channel is cleared on success and on detected expiry, never on a
// plain mismatch, so a mistyped code can be retried until the window closes.
func (a *Accounts) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	emp, err := a.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	stored := emp.ForgotPasswordOTP
	if !emp.VerifyRecoveryOTP(otp, a.now()) {
		if stored != "" && emp.ForgotPasswordOTP == "" {
			if clearErr := a.repo.Employees().ClearRecoveryOTP(ctx, emp.ID, stored); clearErr != nil {
				a.logger.Error("failed to clear expired recovery OTP for %s: %v", emp.ID, clearErr)
			}
		}
		return ErrInvalidOTP
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return rich
		}
		return wrapInternal(err, "failed to hash password")
	}

	if err := a.repo.Employees().ResetPasswordWithOTP(ctx, emp.ID, stored, hash); err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich.TextCode == TextCodeInvalidOTP {
			return err
		}
		return wrapInternal(err, "failed to reset password")
	}

	return nil
}

func (a *Accounts) findByEmail(ctx context.Context, email string) (*Employee, error) {
	emp, err := a.repo.Employees().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapInternal(err, "failed to load account")
	}
	return emp, nil
}
