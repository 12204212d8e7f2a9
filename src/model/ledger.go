package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string
type TransactionStatus string

// MoneyPlaces is the number of fractional digits money is rounded to (lamports)
const MoneyPlaces = 9

const (
	TransactionKindDeposit    TransactionKind = "deposit"
	TransactionKindWithdrawal TransactionKind = "withdrawal"
	TransactionKindWager      TransactionKind = "wager"
	TransactionKindPayout     TransactionKind = "payout"
)

const ( // needs to match `transaction_status` in pg
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
)

// IsCredit reports whether the kind increases the balance
func (k TransactionKind) IsCredit() bool {
	return k == TransactionKindDeposit || k == TransactionKindPayout
}

// IsDebit reports whether the kind decreases the balance
func (k TransactionKind) IsDebit() bool {
	return k == TransactionKindWithdrawal || k == TransactionKindWager
}

type Transaction struct {
	ID        string            `json:"id"`
	Kind      TransactionKind   `json:"type"`
	Amount    decimal.Decimal   `json:"amount"`
	Timestamp time.Time         `json:"date"`
	Status    TransactionStatus `json:"status"`
}

// Signed returns the amount with the sign it has on the balance
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind.IsDebit() {
		return t.Amount.Neg()
	}
	return t.Amount
}

func NewTransactionID() string {
	return "TX-" + shortID(10)
}

func NewDuelID() string {
	return "DUEL-" + shortID(8)
}

func shortID(n int) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return raw[:n]
}
