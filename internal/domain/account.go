package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrOverdraft is returned when posting a transaction would drive a balance below zero.
var ErrOverdraft = errors.New("balance would become negative")

// Account holds a user's USDQS balance and its transaction history, newest first.
type Account struct {
	Username     string
	Balance      decimal.Decimal
	Transactions []Transaction
	CreatedAt    time.Time
}

// NewAccount returns an empty account with a zero balance.
func NewAccount(username string, createdAt time.Time) *Account {
	return &Account{
		Username:     username,
		Balance:      decimal.Zero,
		Transactions: []Transaction{},
		CreatedAt:    createdAt,
	}
}

// Append inserts tx at the head of the history. Existing entries are never
// reordered or removed. Append is not idempotent: every call adds a record.
func (a *Account) Append(tx Transaction) {
	a.Transactions = append(a.Transactions, Transaction{})
	copy(a.Transactions[1:], a.Transactions[:len(a.Transactions)-1])
	a.Transactions[0] = tx
}

// Post applies tx to the balance and appends it to the history.
func (a *Account) Post(tx Transaction) error {
	if !tx.Type.Valid() {
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive, got %s", tx.Amount)
	}
	next := a.Balance.Add(tx.Signed())
	if next.IsNegative() {
		return ErrOverdraft
	}
	a.Balance = next
	a.Append(tx)
	return nil
}

// Clone returns a deep copy whose history can be modified independently.
func (a Account) Clone() Account {
	txs := make([]Transaction, len(a.Transactions))
	copy(txs, a.Transactions)
	a.Transactions = txs
	return a
}

// Reconcile checks that the balance is non-negative and equals the signed sum of the history.
func (a Account) Reconcile() error {
	if a.Balance.IsNegative() {
		return fmt.Errorf("account %s: negative balance %s", a.Username, a.Balance)
	}
	sum := decimal.Zero
	for _, tx := range a.Transactions {
		if !tx.Type.Valid() {
			return fmt.Errorf("account %s: transaction %s has unknown type %q", a.Username, tx.ID, tx.Type)
		}
		sum = sum.Add(tx.Signed())
	}
	if !sum.Equal(a.Balance) {
		return fmt.Errorf("account %s: balance %s does not match history total %s", a.Username, a.Balance, sum)
	}
	return nil
}
