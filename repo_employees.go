package buildtrack

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// maxCASRetries bounds the optimistic-update loop for lockout counters.
const maxCASRetries = 3

// Employees is the account store. Mutations to OTP channels, verification
// flags, and lockout counters go through conditional updates keyed by account
// id so concurrent requests cannot lose writes or re-arm cleared state.
type Employees interface {
	repository.Repository[*Employee]

	GetByEmail(ctx context.Context, email string) (*Employee, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Employee, error)
	GetWithSites(ctx context.Context, id uuid.UUID) (*Employee, error)

	Register(ctx context.Context, emp *Employee) (*Employee, error)
	RegisterTx(ctx context.Context, tx bun.IDB, emp *Employee) (*Employee, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error

	StoreEmailOTP(ctx context.Context, id uuid.UUID, otp string, expiry time.Time) error
	ClearEmailOTP(ctx context.Context, id uuid.UUID, otp string, markVerified bool) error
	StoreRecoveryOTP(ctx context.Context, id uuid.UUID, otp string, expiry time.Time) error
	ClearRecoveryOTP(ctx context.Context, id uuid.UUID, otp string) error

	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	ResetPasswordWithOTP(ctx context.Context, id uuid.UUID, otp, hash string) error

	RecordFailedLogin(ctx context.Context, id uuid.UUID, now time.Time) error

	PendingUsers(ctx context.Context) ([]*Employee, error)
	AdminVerifyTx(ctx context.Context, tx bun.IDB, targetID, adminID uuid.UUID, at time.Time) error
	ReplaceAssignedSitesTx(ctx context.Context, tx bun.IDB, employeeID uuid.UUID, siteIDs []uuid.UUID) error
}

type employees struct {
	repository.Repository[*Employee]
	db *bun.DB
}

var _ Employees = (*employees)(nil)

// NewEmployeesRepository builds the bun-backed account store.
func NewEmployeesRepository(db *bun.DB) Employees {
	repo := repository.NewRepository[*Employee](db, repository.ModelHandlers[*Employee]{
		NewRecord: func() *Employee { return &Employee{} },
		GetID: func(e *Employee) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *Employee, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &employees{
		Repository: repo,
		db:         db,
	}
}

// NormalizeEmail lowercases and trims an address; email matching is
// case-insensitive everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *employees) GetByEmail(ctx context.Context, email string) (*Employee, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *employees) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Employee, error) {
	record := &Employee{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.email) = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *employees) GetWithSites(ctx context.Context, id uuid.UUID) (*Employee, error) {
	record := &Employee{}
	err := a.db.NewSelect().
		Model(record).
		Relation("AssignedSites").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *employees) Register(ctx context.Context, emp *Employee) (*Employee, error) {
	return a.RegisterTx(ctx, a.db, emp)
}

func (a *employees) RegisterTx(ctx context.Context, tx bun.IDB, emp *Employee) (*Employee, error) {
	prepareEmployeeDefaults(emp)
	return a.Repository.CreateTx(ctx, tx, emp)
}

func (a *employees) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*Employee)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *employees) StoreEmailOTP(ctx context.Context, id uuid.UUID, otp string, expiry time.Time) error {
	return a.requireRow(ctx, id, a.db.NewUpdate().
		Model((*Employee)(nil)).
		Set("email_verification_otp = ?", otp).
		Set("otp_expiry = ?", expiry).
		Where("id = ?", id))
}

// ClearEmailOTP clears the email-verification channel, optionally marking the
// email verified. Guarded on the OTP value so a stale request cannot clear a
// newer code. When markVerified is set, a zero-row match means the code
// rotated between read and clear and the caller must not report success; the
// plain expiry-clear stays best effort.
func (a *employees) ClearEmailOTP(ctx context.Context, id uuid.UUID, otp string, markVerified bool) error {
	q := a.db.NewUpdate().
		Model((*Employee)(nil)).
		Set("email_verification_otp = NULL").
		Set("otp_expiry = NULL").
		Where("id = ?", id).
		Where("email_verification_otp = ?", otp)

	if markVerified {
		q = q.Set("is_email_verified = ?", true)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	if markVerified {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrInvalidOTP
		}
	}

	return nil
}

func (a *employees) StoreRecoveryOTP(ctx context.Context, id uuid.UUID, otp string, expiry time.Time) error {
	return a.requireRow(ctx, id, a.db.NewUpdate().
		Model((*Employee)(nil)).
		Set("forgot_password_otp = ?", otp).
		Set("forgot_password_otp_expiry = ?", expiry).
		Where("id = ?", id))
}

func (a *employees) ClearRecoveryOTP(ctx context.Context, id uuid.UUID, otp string) error {
	_, err := a.db.NewUpdate().
		Model((*Employee)(nil)).
		Set("forgot_password_otp = NULL").
		Set("forgot_password_otp_expiry = NULL").
		Where("id = ?", id).
		Where("forgot_password_otp = ?", otp).
		Exec(ctx)
	return err
}

func (a *employees) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return a.requireRow(ctx, id, a.db.NewUpdate().
		Model((*Employee)(nil)).
		Set("password_hash = ?", hash).
		Where("id = ?", id))
}

// ResetPasswordWithOTP replaces the password hash and consumes the recovery
// OTP in one statement, so two concurrent resets cannot both succeed on the
// same code.
func (a *employees) ResetPasswordWithOTP(ctx context.Context, id uuid.UUID, otp, hash string) error {
	res, err := a.db.NewUpdate().
		Model((*Employee)(nil)).
		Set("password_hash = ?", hash).
		Set("forgot_password_otp = NULL").
		Set("forgot_password_otp_expiry = NULL").
		Where("id = ?", id).
		Where("forgot_password_otp = ?", otp).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidOTP
	}

	return nil
}

// RecordFailedLogin advances the lockout state with an optimistic
// compare-and-swap: the update only applies when the counter and lock still
// match what was read, so concurrent failed attempts never lose increments.
func (a *employees) RecordFailedLogin(ctx context.Context, id uuid.UUID, now time.Time) error {
	for i := 0; i < maxCASRetries; i++ {
		current := &Employee{}
		err := a.db.NewSelect().
			Model(current).
			Column("id", "login_attempts", "lock_until").
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return err
		}

		prevAttempts := current.LoginAttempts
		prevLock := current.LockUntil

		current.ApplyFailedLogin(now)

		q := a.db.NewUpdate().
			Model((*Employee)(nil)).
			Set("login_attempts = ?", current.LoginAttempts).
			Set("lock_until = ?", current.LockUntil).
			Where("id = ?", id).
			Where("login_attempts = ?", prevAttempts)

		if prevLock == nil {
			q = q.Where("lock_until IS NULL")
		} else {
			q = q.Where("lock_until = ?", prevLock)
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}

		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
	}

	return goerrors.New("failed to record login attempt after retries", goerrors.CategoryOperation)
}

func (a *employees) PendingUsers(ctx context.Context) ([]*Employee, error) {
	var records []*Employee
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.role = ?", RoleUser).
		Where("?TableAlias.is_email_verified = ?", true).
		Where("?TableAlias.is_admin_verified = ?", false).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *employees) AdminVerifyTx(ctx context.Context, tx bun.IDB, targetID, adminID uuid.UUID, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*Employee)(nil)).
		Set("is_admin_verified = ?", true).
		Set("admin_verified_by = ?", adminID).
		Set("admin_verified_at = ?", at).
		Where("id = ?", targetID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (a *employees) ReplaceAssignedSitesTx(ctx context.Context, tx bun.IDB, employeeID uuid.UUID, siteIDs []uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*EmployeeSite)(nil)).
		Where("employee_id = ?", employeeID).
		Exec(ctx); err != nil {
		return err
	}

	if len(siteIDs) == 0 {
		return nil
	}

	rows := make([]*EmployeeSite, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		rows = append(rows, &EmployeeSite{
			EmployeeID: employeeID,
			SiteID:     siteID,
		})
	}

	_, err := tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}

// requireRow executes an update that must hit exactly one account.
func (a *employees) requireRow(ctx context.Context, id uuid.UUID, q *bun.UpdateQuery) error {
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func prepareEmployeeDefaults(record *Employee) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.Position == "" {
		record.Position = "Employee"
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
