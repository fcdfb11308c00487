package buildtrack

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sites exposes the minimal site-collaborator surface the auth flows need:
// listing summaries and validating assignment references.
type Sites interface {
	All(ctx context.Context) ([]*Site, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Site, error)
	CountByIDs(ctx context.Context, ids []uuid.UUID) (int, error)
	CountByIDsTx(ctx context.Context, tx bun.IDB, ids []uuid.UUID) (int, error)
	Create(ctx context.Context, site *Site) (*Site, error)
}

type sites struct {
	db *bun.DB
}

var _ Sites = (*sites)(nil)

// NewSitesRepository builds the bun-backed site store.
func NewSitesRepository(db *bun.DB) Sites {
	return &sites{db: db}
}

func (r *sites) All(ctx context.Context) ([]*Site, error) {
	var records []*Site
	err := r.db.NewSelect().
		Model(&records).
		Order("site_name ASC").
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return records, nil
}

func (r *sites) GetByID(ctx context.Context, id uuid.UUID) (*Site, error) {
	record := &Site{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *sites) CountByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	return r.CountByIDsTx(ctx, r.db, ids)
}

// CountByIDsTx counts how many of the given ids exist. Callers compare the
// count against len(ids) to detect dangling references before committing an
// assignment.
func (r *sites) CountByIDsTx(ctx context.Context, tx bun.IDB, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	return tx.NewSelect().
		Model((*Site)(nil)).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Count(ctx)
}

func (r *sites) Create(ctx context.Context, site *Site) (*Site, error) {
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}

	if _, err := r.db.NewInsert().Model(site).Exec(ctx); err != nil {
		return nil, err
	}

	return site, nil
}
