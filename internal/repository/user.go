package repository

import (
	"context"

	"usdqs-ledger/internal/domain"
)

// UserRepository persists the whole user collection. Loads and saves are
// never incremental: SaveUsers replaces everything previously stored.
type UserRepository interface {
	Init(ctx context.Context) error
	LoadUsers(ctx context.Context) ([]domain.User, error)
	SaveUsers(ctx context.Context, users []domain.User) error
}
