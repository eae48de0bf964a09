package sqlite

import (
	"context"
	"database/sql"

	"usdqs-ledger/internal/repository"
)

// Store bundles the sqlite repositories into a repository.Store.
type Store struct {
	*UserRepository
	*AccountRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		UserRepository:    &UserRepository{db: db},
		AccountRepository: &AccountRepository{db: db},
	}
}

func (s *Store) Init(ctx context.Context) error {
	if err := s.UserRepository.Init(ctx); err != nil {
		return err
	}
	return s.AccountRepository.Init(ctx)
}

var _ repository.Store = (*Store)(nil)
