package http

import (
	"math"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"usdqs-ledger/internal/domain"
)

// usdqs renders amounts as "1,234.50 USDQS".
var usdqs = money.AddCurrency("USDQS", "USDQS", "1 $", ".", ",", 2)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

func displayAmount(amount decimal.Decimal) string {
	minor := amount.Shift(int32(usdqs.Fraction)).Round(0)
	if minor.Abs().LessThanOrEqual(maxMinorUnits) {
		return money.New(minor.IntPart(), usdqs.Code).Display()
	}
	return displayLarge(amount)
}

// displayLarge formats amounts beyond go-money's int64 range with the same
// currency separators and template.
func displayLarge(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(int32(usdqs.Fraction))
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if amount.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(usdqs.Thousand)
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteString(usdqs.Decimal)
		b.WriteString(frac)
	}

	out := strings.Replace(usdqs.Template, "1", b.String(), 1)
	return strings.Replace(out, "$", usdqs.Grapheme, 1)
}

type UserResponse struct {
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

type SessionResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at"`
}

type TransactionResponse struct {
	ID            string                 `json:"id"`
	Type          domain.TransactionType `json:"type"`
	Amount        string                 `json:"amount"`
	AmountDisplay string                 `json:"amount_display"`
	From          string                 `json:"from"`
	To            string                 `json:"to"`
	Timestamp     string                 `json:"timestamp"`
}

type AccountResponse struct {
	Username       string                `json:"username"`
	Balance        string                `json:"balance"`
	BalanceDisplay string                `json:"balance_display"`
	Transactions   []TransactionResponse `json:"transactions"`
}

type OperationResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Account     AccountResponse     `json:"account"`
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

func transactionToResponse(tx domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            tx.ID,
		Type:          tx.Type,
		Amount:        tx.Amount.String(),
		AmountDisplay: displayAmount(tx.Amount),
		From:          tx.From,
		To:            tx.To,
		Timestamp:     tx.Timestamp.Format(time.RFC3339Nano),
	}
}

func accountToResponse(acct domain.Account) AccountResponse {
	resp := AccountResponse{
		Username:       acct.Username,
		Balance:        acct.Balance.String(),
		BalanceDisplay: displayAmount(acct.Balance),
		Transactions:   make([]TransactionResponse, len(acct.Transactions)),
	}
	for i := range acct.Transactions {
		resp.Transactions[i] = transactionToResponse(acct.Transactions[i])
	}
	return resp
}
