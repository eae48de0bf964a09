// Package memory keeps both ledger collections in process memory. It backs
// the "memory" persistence backend and lets tests inject storage faults.
package memory

import (
	"context"
	"sync"

	"usdqs-ledger/internal/domain"
	"usdqs-ledger/internal/repository"
)

// Faults holds errors returned by the next matching calls. Nil fields mean success.
type Faults struct {
	LoadUsers    error
	SaveUsers    error
	LoadAccounts error
	SaveAccounts error
}

type Store struct {
	mu       sync.Mutex
	users    []domain.User
	accounts []domain.Account
	faults   Faults

	userSaves    int
	accountSaves int
}

func NewStore() *Store {
	return &Store{}
}

// Fail makes subsequent calls return the configured errors until cleared with Fail(Faults{}).
func (s *Store) Fail(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// Saves reports how many successful saves each collection received.
func (s *Store) Saves() (users, accounts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userSaves, s.accountSaves
}

func (s *Store) Init(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) LoadUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.LoadUsers != nil {
		return nil, s.faults.LoadUsers
	}
	out := make([]domain.User, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *Store) SaveUsers(ctx context.Context, users []domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.SaveUsers != nil {
		return s.faults.SaveUsers
	}
	s.users = make([]domain.User, len(users))
	copy(s.users, users)
	s.userSaves++
	return nil
}

func (s *Store) LoadAccounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.LoadAccounts != nil {
		return nil, s.faults.LoadAccounts
	}
	return cloneAccounts(s.accounts), nil
}

func (s *Store) SaveAccounts(ctx context.Context, accounts []domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults.SaveAccounts != nil {
		return s.faults.SaveAccounts
	}
	s.accounts = cloneAccounts(accounts)
	s.accountSaves++
	return nil
}

func cloneAccounts(accounts []domain.Account) []domain.Account {
	out := make([]domain.Account, len(accounts))
	for i := range accounts {
		out[i] = accounts[i].Clone()
	}
	return out
}

var _ repository.Store = (*Store)(nil)
