package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"usdqs-ledger/internal/domain"
)

// snapshotVersion tags every object written so the layout can evolve.
const snapshotVersion = 1

type usersSnapshot struct {
	Version int          `json:"version"`
	Users   []userRecord `json:"users"`
}

type userRecord struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type accountsSnapshot struct {
	Version  int             `json:"version"`
	Accounts []accountRecord `json:"accounts"`
}

type accountRecord struct {
	Username     string              `json:"username"`
	Balance      decimal.Decimal     `json:"balance"`
	CreatedAt    time.Time           `json:"created_at"`
	Transactions []transactionRecord `json:"transactions"`
}

type transactionRecord struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Timestamp time.Time       `json:"timestamp"`
}

func checkVersion(object string, version int) error {
	if version != snapshotVersion {
		return fmt.Errorf("%s: unsupported snapshot version %d", object, version)
	}
	return nil
}

func usersToSnapshot(users []domain.User) usersSnapshot {
	snap := usersSnapshot{Version: snapshotVersion, Users: make([]userRecord, len(users))}
	for i, u := range users {
		snap.Users[i] = userRecord{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			CreatedAt:    u.CreatedAt.UTC(),
		}
	}
	return snap
}

func usersFromSnapshot(snap usersSnapshot) []domain.User {
	users := make([]domain.User, len(snap.Users))
	for i, rec := range snap.Users {
		users[i] = domain.User{
			Username:     rec.Username,
			PasswordHash: rec.PasswordHash,
			CreatedAt:    rec.CreatedAt.UTC(),
		}
	}
	return users
}

func accountsToSnapshot(accounts []domain.Account) accountsSnapshot {
	snap := accountsSnapshot{Version: snapshotVersion, Accounts: make([]accountRecord, len(accounts))}
	for i, acct := range accounts {
		rec := accountRecord{
			Username:     acct.Username,
			Balance:      acct.Balance,
			CreatedAt:    acct.CreatedAt.UTC(),
			Transactions: make([]transactionRecord, len(acct.Transactions)),
		}
		for j, tx := range acct.Transactions {
			rec.Transactions[j] = transactionRecord{
				ID:        tx.ID,
				Type:      string(tx.Type),
				Amount:    tx.Amount,
				From:      tx.From,
				To:        tx.To,
				Timestamp: tx.Timestamp.UTC(),
			}
		}
		snap.Accounts[i] = rec
	}
	return snap
}

func accountsFromSnapshot(snap accountsSnapshot) []domain.Account {
	accounts := make([]domain.Account, len(snap.Accounts))
	for i, rec := range snap.Accounts {
		acct := domain.Account{
			Username:     rec.Username,
			Balance:      rec.Balance,
			CreatedAt:    rec.CreatedAt.UTC(),
			Transactions: make([]domain.Transaction, len(rec.Transactions)),
		}
		for j, tx := range rec.Transactions {
			acct.Transactions[j] = domain.Transaction{
				ID:        tx.ID,
				Type:      domain.TransactionType(tx.Type),
				Amount:    tx.Amount,
				From:      tx.From,
				To:        tx.To,
				Timestamp: tx.Timestamp.UTC(),
			}
		}
		accounts[i] = acct
	}
	return accounts
}
