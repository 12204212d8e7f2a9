package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/onemorebsmith/coinduel/src/agent"
	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/metrics"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/schedule"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrPlayerNotFound = fmt.Errorf("player not found")
	ErrDuelNotFound   = fmt.Errorf("duel not found")
)

const storeTimeout = 5 * time.Second

// JournalStore persists ledger history per player
type JournalStore interface {
	Journal(playerID string) ledger.Journal
	LoadPlayer(ctx context.Context, playerID string) ([]model.Transaction, []model.DuelRecord, error)
}

// SnapshotStore persists the latest session phase per player
type SnapshotStore interface {
	SaveSession(ctx context.Context, playerID string, snap session.Snapshot) error
	LoadSession(ctx context.Context, playerID string) (session.Snapshot, bool, error)
	DeleteSession(ctx context.Context, playerID string) error
}

type Player struct {
	ID      string
	Ledger  *ledger.Ledger
	Session *session.Session

	snaps *snapshotWriter
}

// snapshotWriter keeps one player's snapshot saves in session order. Events
// are emitted after the session lock is released, so two of them can race.
type snapshotWriter struct {
	mu     sync.Mutex
	last   uint64
	closed bool
}

// Engine is the registry of connected players. Each player owns one ledger and
// one session; nothing is shared between players except the pool and resolver.
// Listeners run on session goroutines and must not call back into the Engine
// while a Connect is in flight.
type Engine struct {
	mu      sync.Mutex
	players map[string]*Player
	seeds   *rand.Rand

	pool       poolsim.StatsSource
	resolver   *duel.Resolver
	scheduler  schedule.Scheduler
	timings    session.Timings
	initial    decimal.Decimal
	sample     bool
	dispatcher *agent.Dispatcher
	journals   JournalStore
	snapshots  SnapshotStore
	listeners  []session.Listener
	logger     *zap.Logger
	ctx        context.Context
}

type Option func(*Engine)

func WithScheduler(s schedule.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

func WithTimings(t session.Timings) Option {
	return func(e *Engine) { e.timings = t }
}

func WithInitialBalance(initial decimal.Decimal) Option {
	return func(e *Engine) { e.initial = initial }
}

// WithSampleData gives players with no journaled history a demo history
func WithSampleData(enabled bool) Option {
	return func(e *Engine) { e.sample = enabled }
}

func WithDispatcher(d *agent.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithJournalStore sets where ledgers are journaled. Without one the engine
// journals into an in-process MemoryStore, so a ledger outlives its session.
func WithJournalStore(j JournalStore) Option {
	return func(e *Engine) { e.journals = j }
}

func WithSnapshotStore(s SnapshotStore) Option {
	return func(e *Engine) { e.snapshots = s }
}

func WithListener(l session.Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger.With(zap.String("component", "engine")) }
}

// WithSeed makes per-player randomness reproducible
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seeds = rand.New(rand.NewSource(seed)) }
}

// WithContext bounds the lifetime of work started by timers
func WithContext(ctx context.Context) Option {
	return func(e *Engine) { e.ctx = ctx }
}

func New(pool poolsim.StatsSource, resolver *duel.Resolver, opts ...Option) *Engine {
	e := &Engine{
		players:   map[string]*Player{},
		pool:      pool,
		resolver:  resolver,
		scheduler: schedule.Real{},
		timings:   session.DefaultTimings,
		initial:   decimal.Zero,
		logger:    zap.NewNop(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.seeds == nil {
		e.seeds = rand.New(rand.NewSource(common.MustSeed()))
	}
	if e.journals == nil {
		e.journals = NewMemoryStore()
	}
	return e
}

func (e *Engine) Pool() poolsim.StatsSource {
	return e.pool
}

func (e *Engine) Resolver() *duel.Resolver {
	return e.resolver
}

// Connect returns the player's live session, creating it if needed. A new
// player's ledger is replayed from the journal and its session resumes from
// the last snapshot, or starts fresh in WagerSelect.
func (e *Engine) Connect(ctx context.Context, playerID string) (*Player, error) {
	if playerID == "" {
		return nil, errors.Wrap(ErrPlayerNotFound, "empty player id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.players[playerID]; ok {
		return p, nil
	}

	l, err := e.loadLedger(ctx, playerID)
	if err != nil {
		return nil, err
	}
	snaps := &snapshotWriter{}
	sess := session.New(session.Config{
		PlayerID:  playerID,
		Account:   l,
		Resolver:  e.resolver,
		Pool:      e.pool,
		Scheduler: e.scheduler,
		Timings:   e.timings,
		Rand:      rand.New(rand.NewSource(e.seeds.Int63())),
		Listener:  func(ev session.Event) { e.onEvent(snaps, ev) },
		Logger:    e.logger,
		Context:   e.ctx,
	})
	if err := e.resumeSession(ctx, sess); err != nil {
		return nil, err
	}

	p := &Player{ID: playerID, Ledger: l, Session: sess, snaps: snaps}
	e.players[playerID] = p
	e.logger.Info("player connected", zap.String("player", playerID), zap.String("balance", l.Balance().String()))
	return p, nil
}

func (e *Engine) loadLedger(ctx context.Context, playerID string) (*ledger.Ledger, error) {
	journal := e.journals.Journal(playerID)
	opts := []ledger.Option{
		ledger.WithLogger(e.logger.With(zap.String("player", playerID))),
		ledger.WithJournal(journal),
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	txs, duels, err := e.journals.LoadPlayer(ctx, playerID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed loading journal for %s", playerID)
	}
	if len(txs) == 0 && len(duels) == 0 && e.sample {
		txs, duels = SampleHistory(e.seeds, time.Now(), e.resolver)
		for _, tx := range txs {
			if err := journal.PutTransaction(ctx, tx); err != nil {
				return nil, errors.Wrap(err, "failed journaling sample transaction")
			}
		}
		for _, d := range duels {
			if err := journal.PutDuel(ctx, d); err != nil {
				return nil, errors.Wrap(err, "failed journaling sample duel")
			}
		}
	}
	l, err := ledger.Restore(e.initial, txs, duels, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "journal for %s does not replay", playerID)
	}
	return l, nil
}

func (e *Engine) resumeSession(ctx context.Context, sess *session.Session) error {
	if e.snapshots != nil {
		ctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		snap, found, err := e.snapshots.LoadSession(ctx, sess.PlayerID())
		if err != nil {
			e.logger.Warn("failed loading session snapshot, starting fresh", zap.String("player", sess.PlayerID()), zap.Error(err))
		}
		if found && snap.Phase != session.PhaseIdle {
			state, err := snap.State()
			if err == nil {
				return sess.Restore(state)
			}
			e.logger.Warn("discarding unreadable session snapshot", zap.String("player", sess.PlayerID()), zap.Error(err))
		}
	}
	return sess.Connect()
}

// Disconnect stops the player's timers and drops the session
func (e *Engine) Disconnect(ctx context.Context, playerID string) error {
	e.mu.Lock()
	p, ok := e.players[playerID]
	delete(e.players, playerID)
	e.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrPlayerNotFound, "%s", playerID)
	}
	p.Session.Disconnect()
	p.snaps.mu.Lock()
	defer p.snaps.mu.Unlock()
	p.snaps.closed = true
	if e.snapshots != nil {
		ctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if err := e.snapshots.DeleteSession(ctx, playerID); err != nil {
			e.logger.Warn("failed deleting session snapshot", zap.String("player", playerID), zap.Error(err))
		}
	}
	e.logger.Info("player disconnected", zap.String("player", playerID))
	return nil
}

// Shutdown disconnects everyone, stopping every outstanding timer
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.players))
	for id := range e.players {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		_ = e.Disconnect(ctx, id)
	}
}

func (e *Engine) Player(playerID string) (*Player, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[playerID]
	if !ok {
		return nil, errors.Wrapf(ErrPlayerNotFound, "%s", playerID)
	}
	return p, nil
}

func (e *Engine) Players() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.players)
}

func (e *Engine) Deposit(ctx context.Context, playerID, rawAmount string) (model.Transaction, error) {
	p, err := e.Player(playerID)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := ledger.ParseAmount(rawAmount)
	if err != nil {
		return model.Transaction{}, err
	}
	return p.Ledger.Credit(ctx, amount, model.TransactionKindDeposit)
}

func (e *Engine) Withdraw(ctx context.Context, playerID, rawAmount string) (model.Transaction, error) {
	p, err := e.Player(playerID)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := ledger.ParseAmount(rawAmount)
	if err != nil {
		return model.Transaction{}, err
	}
	return p.Ledger.Debit(ctx, amount, model.TransactionKindWithdrawal)
}

// SelectWager parses the raw amount and hands it to the session. Non-numeric
// or over-precise input is ErrInvalidAmount; the session judges the value.
func (e *Engine) SelectWager(playerID, rawAmount string) error {
	p, err := e.Player(playerID)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(rawAmount))
	if err != nil {
		return errors.Wrapf(ledger.ErrInvalidAmount, "%q is not a number", rawAmount)
	}
	if !amount.Equal(amount.Round(model.MoneyPlaces)) {
		return errors.Wrapf(ledger.ErrInvalidAmount, "wager %s exceeds %d decimal places", amount, model.MoneyPlaces)
	}
	return p.Session.SelectWager(amount)
}

func (e *Engine) onEvent(snaps *snapshotWriter, ev session.Event) {
	metrics.RecordTransition(string(ev.To))
	if ev.Err != nil {
		e.logger.Warn("session fell back", zap.String("player", ev.PlayerID),
			zap.String("from", string(ev.From)), zap.Error(ev.Err))
	}
	if e.snapshots != nil {
		e.saveSnapshot(snaps, ev)
	}
	for _, l := range e.listeners {
		l(ev)
	}
}

// saveSnapshot drops events older than the last one saved and anything that
// arrives once the player has disconnected
func (e *Engine) saveSnapshot(snaps *snapshotWriter, ev session.Event) {
	snaps.mu.Lock()
	defer snaps.mu.Unlock()
	if snaps.closed || ev.Seq <= snaps.last {
		return
	}
	snaps.last = ev.Seq
	ctx, cancel := context.WithTimeout(e.ctx, storeTimeout)
	defer cancel()
	if err := e.snapshots.SaveSession(ctx, ev.PlayerID, session.SnapshotOf(ev.State)); err != nil {
		e.logger.Warn("failed saving session snapshot", zap.String("player", ev.PlayerID), zap.Error(err))
	}
}
