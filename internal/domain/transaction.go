package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemCounterparty is the abstract issuer on the other side of purchases and sales.
const SystemCounterparty = "system"

type TransactionType string

const (
	TransactionPurchase         TransactionType = "purchase"
	TransactionSale             TransactionType = "sale"
	TransactionTransferSent     TransactionType = "transfer_sent"
	TransactionTransferReceived TransactionType = "transfer_received"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPurchase, TransactionSale, TransactionTransferSent, TransactionTransferReceived:
		return true
	}
	return false
}

// Credit reports whether transactions of this type increase the owning account's balance.
func (t TransactionType) Credit() bool {
	return t == TransactionPurchase || t == TransactionTransferReceived
}

// Transaction is an immutable record of one balance-affecting event on an account.
// Amount is always positive; the direction is implied by Type.
type Transaction struct {
	ID        string
	Type      TransactionType
	Amount    decimal.Decimal
	From      string
	To        string
	Timestamp time.Time
}

// Signed returns the amount as seen by the owning account: positive for credits, negative for debits.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type.Credit() {
		return t.Amount
	}
	return t.Amount.Neg()
}
