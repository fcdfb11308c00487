package buildtrack

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories plus transaction scoping.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Employees() Employees
	Sites() Sites
	ChatMessages() ChatMessages
}

type mngr struct {
	db           *bun.DB
	employees    Employees
	sites        Sites
	chatMessages ChatMessages
}

// NewRepositoryManager wires the bun-backed repositories. It registers the
// employee/site join model so m2m relations resolve.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	db.RegisterModel((*EmployeeSite)(nil))

	return &mngr{
		db:           db,
		employees:    NewEmployeesRepository(db),
		sites:        NewSitesRepository(db),
		chatMessages: NewChatMessagesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.employees == nil {
		return errors.New("repository employees should be initialized")
	}

	if m.sites == nil {
		return errors.New("repository sites should be initialized")
	}

	if m.chatMessages == nil {
		return errors.New("repository chatMessages should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Employees() Employees {
	return m.employees
}

func (m mngr) Sites() Sites {
	return m.sites
}

func (m mngr) ChatMessages() ChatMessages {
	return m.chatMessages
}
