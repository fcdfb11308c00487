package buildtrack

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Admin-side lifecycle operations: listing accounts awaiting approval,
// verifying them, and managing site assignments. Every operation re-checks
// the acting account's role even though the HTTP layer also gates the routes.

// PendingUsers lists role=user accounts that verified their email but still
// await admin approval.
func (a *Accounts) PendingUsers(ctx context.Context, actingID uuid.UUID) ([]*Employee, error) {
	if _, err := a.requireAdmin(ctx, actingID); err != nil {
		return nil, err
	}

	users, err := a.repo.Employees().PendingUsers(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list pending users")
	}

	return users, nil
}

// VerifyUser flips the admin-verification flag on the target and, when site
// ids are given, validates and commits the assignment in the same
// transaction. An unknown site id fails the whole call; the flag stays
// untouched.
func (a *Accounts) VerifyUser(ctx context.Context, actingID, targetID uuid.UUID, siteIDs []uuid.UUID) (*Employee, error) {
	if _, err := a.requireAdmin(ctx, actingID); err != nil {
		return nil, err
	}

	target, err := a.CurrentUser(ctx, targetID)
	if err != nil {
		return nil, err
	}

	// Approval is only meaningful once the email flow completed. The active
	// self edge keeps re-verification idempotent.
	if err := EnsureTransition(target.Status(a.now()), StatusActive); err != nil {
		return nil, err
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(siteIDs) > 0 {
			if err := a.checkSiteRefsTx(ctx, tx, siteIDs); err != nil {
				return err
			}
		}

		if err := a.repo.Employees().AdminVerifyTx(ctx, tx, targetID, actingID, a.now()); err != nil {
			return err
		}

		if len(siteIDs) > 0 {
			return a.repo.Employees().ReplaceAssignedSitesTx(ctx, tx, targetID, siteIDs)
		}

		return nil
	})
	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return nil, rich
		}
		return nil, wrapInternal(err, "user verification transaction failed")
	}

	return a.CurrentUser(ctx, targetID)
}

// AssignSites replaces the target's site assignments after validating every
// referenced site exists.
func (a *Accounts) AssignSites(ctx context.Context, actingID, targetID uuid.UUID, siteIDs []uuid.UUID) (*Employee, error) {
	if _, err := a.requireAdmin(ctx, actingID); err != nil {
		return nil, err
	}

	if _, err := a.CurrentUser(ctx, targetID); err != nil {
		return nil, err
	}

	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := a.checkSiteRefsTx(ctx, tx, siteIDs); err != nil {
			return err
		}

		return a.repo.Employees().ReplaceAssignedSitesTx(ctx, tx, targetID, siteIDs)
	})
	if err != nil {
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return nil, rich
		}
		return nil, wrapInternal(err, "site assignment transaction failed")
	}

	return a.CurrentUser(ctx, targetID)
}

// AllSites lists every site summary; admin only.
func (a *Accounts) AllSites(ctx context.Context, actingID uuid.UUID) ([]*Site, error) {
	if _, err := a.requireAdmin(ctx, actingID); err != nil {
		return nil, err
	}

	sites, err := a.repo.Sites().All(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list sites")
	}

	return sites, nil
}

func (a *Accounts) requireAdmin(ctx context.Context, actingID uuid.UUID) (*Employee, error) {
	acting, err := a.repo.Employees().GetWithSites(ctx, actingID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrAdminRequired
		}
		return nil, wrapInternal(err, "failed to load acting account")
	}

	if !acting.IsAdmin() {
		return nil, ErrAdminRequired
	}

	return acting, nil
}

func (a *Accounts) checkSiteRefsTx(ctx context.Context, tx bun.IDB, siteIDs []uuid.UUID) error {
	count, err := a.repo.Sites().CountByIDsTx(ctx, tx, siteIDs)
	if err != nil {
		return err
	}

	if count != len(siteIDs) {
		return ErrInvalidSiteReference
	}

	return nil
}
