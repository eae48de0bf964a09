package repository

import (
	"context"

	"usdqs-ledger/internal/domain"
)

// AccountRepository persists the whole account collection, histories included.
// A single SaveAccounts call must be applied entirely or not at all.
type AccountRepository interface {
	Init(ctx context.Context) error
	LoadAccounts(ctx context.Context) ([]domain.Account, error)
	SaveAccounts(ctx context.Context, accounts []domain.Account) error
}

// Store is a durable backend holding both collections.
type Store interface {
	UserRepository
	AccountRepository
}
