package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"usdqs-ledger/internal/domain"
	"usdqs-ledger/internal/repository"
)

const createAccountTables = `
CREATE TABLE IF NOT EXISTS accounts (
	position INTEGER NOT NULL,
	username TEXT NOT NULL PRIMARY KEY,
	balance TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	account_username TEXT NOT NULL,
	position INTEGER NOT NULL,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	amount TEXT NOT NULL,
	from_party TEXT NOT NULL,
	to_party TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	PRIMARY KEY (account_username, id),
	FOREIGN KEY(account_username) REFERENCES accounts(username) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_transactions_account_position ON transactions(account_username, position);
`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if err := ensureSchemaVersion(ctx, r.db); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, createAccountTables); err != nil {
		return fmt.Errorf("create account tables: %w", err)
	}
	return nil
}

func (r *AccountRepository) LoadAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT username, balance, created_at
FROM accounts
ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	index := map[string]int{}
	for rows.Next() {
		var acct domain.Account
		if err := rows.Scan(&acct.Username, &acct.Balance, &acct.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acct.CreatedAt = acct.CreatedAt.UTC()
		acct.Transactions = []domain.Transaction{}
		index[acct.Username] = len(accounts)
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	if err := r.loadTransactions(ctx, accounts, index); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) loadTransactions(ctx context.Context, accounts []domain.Account, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT account_username, id, type, amount, from_party, to_party, timestamp
FROM transactions
ORDER BY account_username ASC, position ASC`)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			owner  string
			txType string
			amount decimal.Decimal
			tx     domain.Transaction
		)
		if err := rows.Scan(&owner, &tx.ID, &txType, &amount, &tx.From, &tx.To, &tx.Timestamp); err != nil {
			return fmt.Errorf("scan transaction: %w", err)
		}
		i, ok := index[owner]
		if !ok {
			return fmt.Errorf("transaction %s references unknown account %s", tx.ID, owner)
		}
		tx.Type = domain.TransactionType(txType)
		tx.Amount = amount
		tx.Timestamp = tx.Timestamp.UTC()
		accounts[i].Transactions = append(accounts[i].Transactions, tx)
	}

	return rows.Err()
}

func (r *AccountRepository) SaveAccounts(ctx context.Context, accounts []domain.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("delete accounts: %w", err)
	}

	for i, acct := range accounts {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO accounts (position, username, balance, created_at)
VALUES (?, ?, ?, ?)`,
			i,
			acct.Username,
			acct.Balance.String(),
			acct.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert account %s: %w", acct.Username, err)
		}

		for pos, record := range acct.Transactions {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO transactions (account_username, position, id, type, amount, from_party, to_party, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				acct.Username,
				pos,
				record.ID,
				string(record.Type),
				record.Amount.String(),
				record.From,
				record.To,
				record.Timestamp.UTC(),
			); err != nil {
				return fmt.Errorf("insert transaction %s: %w", record.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accounts: %w", err)
	}
	return nil
}
