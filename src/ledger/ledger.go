package ledger

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount       = fmt.Errorf("invalid amount")
	ErrInsufficientFunds   = fmt.Errorf("insufficient funds")
	ErrDuplicateSettlement = fmt.Errorf("duplicate settlement")
	ErrInvalidKind         = fmt.Errorf("invalid transaction kind")
)

const journalTimeout = 5 * time.Second

// Journal receives every committed ledger entry. It is best effort: a failed
// write is logged and never rolls back the in-memory state.
type Journal interface {
	PutTransaction(ctx context.Context, tx model.Transaction) error
	PutDuel(ctx context.Context, record model.DuelRecord) error
}

// Ledger is the single source of truth for one player's funds. Every mutation
// happens under mu, so concurrent debits can never overdraw the balance.
type Ledger struct {
	mu      sync.Mutex
	initial decimal.Decimal
	balance decimal.Decimal
	txs     []model.Transaction
	duels   []model.DuelRecord
	settled map[string]int // duel id -> index into duels

	journal Journal
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Ledger)

func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger.With(zap.String("component", "ledger")) }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(initial decimal.Decimal, opts ...Option) *Ledger {
	l := &Ledger{
		initial: initial,
		balance: initial,
		settled: map[string]int{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore rebuilds a ledger from journaled history. The balance is recomputed
// from the transactions rather than trusted from storage.
func Restore(initial decimal.Decimal, txs []model.Transaction, duels []model.DuelRecord, opts ...Option) (*Ledger, error) {
	l := New(initial, opts...)
	l.txs = append([]model.Transaction(nil), txs...)
	sort.SliceStable(l.txs, func(i, j int) bool { return l.txs[i].Timestamp.Before(l.txs[j].Timestamp) })

	byID := model.DuelArrayToMap(duels)
	if len(byID) != len(duels) {
		return nil, errors.Wrap(ErrDuplicateSettlement, "journal holds a duel id more than once")
	}
	l.duels = append([]model.DuelRecord(nil), duels...)
	sort.SliceStable(l.duels, func(i, j int) bool { return l.duels[i].Timestamp.Before(l.duels[j].Timestamp) })
	for i, d := range l.duels {
		l.settled[d.DuelID] = i
	}

	balance := initial
	for _, tx := range l.txs {
		if tx.Status != model.TransactionStatusCompleted {
			continue
		}
		balance = balance.Add(tx.Signed())
		if balance.IsNegative() {
			return nil, errors.Wrapf(ErrInsufficientFunds, "journal replay overdraws at %s", tx.ID)
		}
	}
	l.balance = balance
	return l, nil
}

// ParseAmount turns user input into a money amount, rejecting non-numeric,
// non-positive and over-precise values with ErrInvalidAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%q is not a number", raw)
	}
	if err := validateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errors.Wrapf(ErrInvalidAmount, "amount %s must be positive", amount)
	}
	if !amount.Equal(amount.Round(model.MoneyPlaces)) {
		return errors.Wrapf(ErrInvalidAmount, "amount %s exceeds %d decimal places", amount, model.MoneyPlaces)
	}
	return nil
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) Initial() decimal.Decimal {
	return l.initial
}

func (l *Ledger) Credit(ctx context.Context, amount decimal.Decimal, kind model.TransactionKind) (model.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return model.Transaction{}, err
	}
	if !kind.IsCredit() {
		return model.Transaction{}, errors.Wrapf(ErrInvalidKind, "%s is not a credit", kind)
	}

	l.mu.Lock()
	tx := l.appendLocked(kind, amount)
	l.mu.Unlock()

	l.journalTransactions(ctx, tx)
	return tx, nil
}

func (l *Ledger) Debit(ctx context.Context, amount decimal.Decimal, kind model.TransactionKind) (model.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return model.Transaction{}, err
	}
	if !kind.IsDebit() {
		return model.Transaction{}, errors.Wrapf(ErrInvalidKind, "%s is not a debit", kind)
	}

	l.mu.Lock()
	if amount.GreaterThan(l.balance) {
		balance := l.balance
		l.mu.Unlock()
		return model.Transaction{}, errors.Wrapf(ErrInsufficientFunds, "debit %s exceeds balance %s", amount, balance)
	}
	tx := l.appendLocked(kind, amount)
	l.mu.Unlock()

	l.journalTransactions(ctx, tx)
	return tx, nil
}

// RecordDuel appends a duel to the history exactly once per duel id. A repeat
// is a no-op and reports applied=false.
func (l *Ledger) RecordDuel(ctx context.Context, record model.DuelRecord) (bool, error) {
	if record.DuelID == "" {
		return false, fmt.Errorf("duel record is missing a duel id")
	}

	l.mu.Lock()
	if _, exists := l.settled[record.DuelID]; exists {
		l.mu.Unlock()
		return false, nil
	}
	l.appendDuelLocked(record)
	l.mu.Unlock()

	l.journalDuel(ctx, record)
	return true, nil
}

// Settle applies a duel's financial effect in one critical section: debit the
// wager, credit the payout on a win, record the duel. A duel id that was
// already settled returns the stored record and ErrDuplicateSettlement, which
// callers treat as success.
func (l *Ledger) Settle(ctx context.Context, record model.DuelRecord) (model.DuelRecord, error) {
	if record.DuelID == "" {
		return model.DuelRecord{}, fmt.Errorf("duel record is missing a duel id")
	}
	if err := validateAmount(record.Wager); err != nil {
		return model.DuelRecord{}, errors.Wrap(err, "invalid wager")
	}
	if record.Payout.IsNegative() {
		return model.DuelRecord{}, errors.Wrapf(ErrInvalidAmount, "payout %s is negative", record.Payout)
	}

	l.mu.Lock()
	if idx, exists := l.settled[record.DuelID]; exists {
		stored := l.duels[idx]
		l.mu.Unlock()
		return stored, errors.Wrapf(ErrDuplicateSettlement, "duel %s", record.DuelID)
	}
	if record.Wager.GreaterThan(l.balance) {
		balance := l.balance
		l.mu.Unlock()
		return model.DuelRecord{}, errors.Wrapf(ErrInsufficientFunds, "wager %s exceeds balance %s", record.Wager, balance)
	}
	txs := []model.Transaction{l.appendLocked(model.TransactionKindWager, record.Wager)}
	if record.Payout.IsPositive() {
		txs = append(txs, l.appendLocked(model.TransactionKindPayout, record.Payout))
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = l.now().UTC()
	}
	if record.ID == "" {
		record.ID = model.NewTransactionID()
	}
	l.appendDuelLocked(record)
	l.mu.Unlock()

	l.journalTransactions(ctx, txs...)
	l.journalDuel(ctx, record)
	return record, nil
}

// IsSettled reports whether the duel id already has a record
func (l *Ledger) IsSettled(duelID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.settled[duelID]
	return ok
}

// Duel looks up a settled duel by id
func (l *Ledger) Duel(duelID string) (model.DuelRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.settled[duelID]
	if !ok {
		return model.DuelRecord{}, false
	}
	return l.duels[idx], true
}

func (l *Ledger) appendLocked(kind model.TransactionKind, amount decimal.Decimal) model.Transaction {
	tx := model.Transaction{
		ID:        model.NewTransactionID(),
		Kind:      kind,
		Amount:    amount,
		Timestamp: l.now().UTC(),
		Status:    model.TransactionStatusCompleted,
	}
	if kind.IsDebit() {
		l.balance = l.balance.Sub(amount)
	} else {
		l.balance = l.balance.Add(amount)
	}
	l.txs = append(l.txs, tx)
	return tx
}

func (l *Ledger) appendDuelLocked(record model.DuelRecord) {
	l.settled[record.DuelID] = len(l.duels)
	l.duels = append(l.duels, record)
}

func (l *Ledger) journalTransactions(ctx context.Context, txs ...model.Transaction) {
	if l.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	for _, tx := range txs {
		if err := l.journal.PutTransaction(ctx, tx); err != nil {
			l.logger.Error("failed journaling transaction", zap.String("tx", tx.ID), zap.Error(err))
		}
	}
}

func (l *Ledger) journalDuel(ctx context.Context, record model.DuelRecord) {
	if l.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()
	if err := l.journal.PutDuel(ctx, record); err != nil {
		l.logger.Error("failed journaling duel", zap.String("duel", record.DuelID), zap.Error(err))
	}
}

// History walks the transactions newest first. The walk reads a snapshot taken
// when iteration starts; entries are immutable once appended.
func (l *Ledger) History() iter.Seq[model.Transaction] {
	return func(yield func(model.Transaction) bool) {
		l.mu.Lock()
		snapshot := l.txs[:len(l.txs):len(l.txs)]
		l.mu.Unlock()
		for i := len(snapshot) - 1; i >= 0; i-- {
			if !yield(snapshot[i]) {
				return
			}
		}
	}
}

type DuelFilter string

const (
	FilterAll    DuelFilter = "all"
	FilterWins   DuelFilter = "wins"
	FilterLosses DuelFilter = "losses"
)

func ParseDuelFilter(raw string) (DuelFilter, error) {
	switch DuelFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterWins:
		return FilterWins, nil
	case FilterLosses:
		return FilterLosses, nil
	}
	return "", fmt.Errorf("unknown duel filter %q", raw)
}

func (f DuelFilter) match(d model.DuelRecord) bool {
	switch f {
	case FilterWins:
		return d.Won()
	case FilterLosses:
		return !d.Won()
	}
	return true
}

// Duels walks settled duels newest first, keeping those matching the filter
func (l *Ledger) Duels(filter DuelFilter) iter.Seq[model.DuelRecord] {
	return func(yield func(model.DuelRecord) bool) {
		l.mu.Lock()
		snapshot := l.duels[:len(l.duels):len(l.duels)]
		l.mu.Unlock()
		for i := len(snapshot) - 1; i >= 0; i-- {
			if !filter.match(snapshot[i]) {
				continue
			}
			if !yield(snapshot[i]) {
				return
			}
		}
	}
}

// Verify checks the conservation invariant: the balance equals the initial
// balance plus the signed sum of every completed transaction.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	expected := l.initial
	for _, tx := range l.txs {
		if tx.Status == model.TransactionStatusCompleted {
			expected = expected.Add(tx.Signed())
		}
	}
	if !expected.Equal(l.balance) {
		return fmt.Errorf("balance %s does not match replayed history %s", l.balance, expected)
	}
	return nil
}
