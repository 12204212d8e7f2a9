package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/schedule"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidTransition   = fmt.Errorf("invalid transition")
	ErrInsufficientBalance = fmt.Errorf("insufficient balance")
)

// Timings are the three delays of a duel: the matchmaking search, the
// randomized opponent discovery window and the coin resolution
type Timings struct {
	Search       time.Duration
	DiscoveryMin time.Duration
	DiscoveryMax time.Duration
	Resolve      time.Duration
}

var DefaultTimings = Timings{
	Search:       2500 * time.Millisecond,
	DiscoveryMin: 5 * time.Second,
	DiscoveryMax: 15 * time.Second,
	Resolve:      4 * time.Second,
}

// Account is the slice of the ledger a session needs
type Account interface {
	Balance() decimal.Decimal
	duel.Settler
}

type Resolver interface {
	Resolve(ctx context.Context, settler duel.Settler, req duel.Request) (model.DuelRecord, error)
}

type Event struct {
	PlayerID string
	From     Phase
	To       Phase
	State    State
	Err      error  // set when a settlement failed and the session fell back
	Seq      uint64 // increases with every transition of one session
}

type Listener func(Event)

type Config struct {
	PlayerID  string
	Account   Account
	Resolver  Resolver
	Pool      poolsim.StatsSource
	Scheduler schedule.Scheduler
	Timings   Timings
	Rand      *rand.Rand
	Listener  Listener
	Logger    *zap.Logger
	Context   context.Context // used for settlements started by timers
}

// Session drives one player's duel lifecycle. All state changes happen under
// mu; timer callbacks carry the epoch they were scheduled in and do nothing
// once the session has moved on.
type Session struct {
	mu    sync.Mutex
	cfg   Config
	state State
	epoch uint64
	seq   uint64
	tasks schedule.Group
	rng   *rand.Rand
}

func New(cfg Config) *Session {
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.Real{}
	}
	if cfg.Timings == (Timings{}) {
		cfg.Timings = DefaultTimings
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Logger = cfg.Logger.With(zap.String("player", cfg.PlayerID))
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(common.MustSeed()))
	}
	return &Session{cfg: cfg, state: Idle{}, rng: rng}
}

func (s *Session) PlayerID() string {
	return s.cfg.PlayerID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connect() error {
	return s.apply(func() (State, error) {
		if _, ok := s.state.(Idle); !ok {
			return nil, s.invalid("connect")
		}
		return WagerSelect{}, nil
	})
}

// SelectWager checks the amount against the current balance. Nothing is
// debited until the duel resolves.
func (s *Session) SelectWager(wager decimal.Decimal) error {
	return s.apply(func() (State, error) {
		if _, ok := s.state.(WagerSelect); !ok {
			return nil, s.invalid("select wager")
		}
		if wager.Sign() <= 0 {
			return nil, errors.Wrapf(ErrInsufficientBalance, "wager %s must be positive", wager)
		}
		if balance := s.cfg.Account.Balance(); wager.GreaterThan(balance) {
			return nil, errors.Wrapf(ErrInsufficientBalance, "wager %s exceeds balance %s", wager, balance)
		}
		return SidePick{Wager: wager}, nil
	})
}

func (s *Session) ChooseSide(side model.Side) error {
	return s.apply(func() (State, error) {
		pick, ok := s.state.(SidePick)
		if !ok {
			return nil, s.invalid("choose side")
		}
		if !side.Valid() {
			return nil, errors.Wrapf(duel.ErrInvalidSide, "%q", side)
		}
		s.after(s.cfg.Timings.Search, s.searchDone)
		return Matchmaking{Wager: pick.Wager, Side: side}, nil
	})
}

// Cancel backs out of a pending duel. Once an opponent has been found the duel
// can no longer be cancelled and Cancel is a no-op.
func (s *Session) Cancel() error {
	return s.apply(func() (State, error) {
		switch s.state.(type) {
		case SidePick, Matchmaking, Waiting:
			return WagerSelect{}, nil
		case InDuel, Result:
			return nil, nil
		}
		return nil, s.invalid("cancel")
	})
}

func (s *Session) PlayAgain() error {
	return s.apply(func() (State, error) {
		if _, ok := s.state.(Result); !ok {
			return nil, s.invalid("play again")
		}
		return WagerSelect{}, nil
	})
}

// Disconnect stops every pending timer and parks the session in Idle
func (s *Session) Disconnect() {
	_ = s.apply(func() (State, error) {
		if _, ok := s.state.(Idle); ok {
			return nil, nil
		}
		return Idle{}, nil
	})
}

// Restore resumes a persisted state on an idle session. Timed phases come back
// as WagerSelect since their timers were lost with the process.
func (s *Session) Restore(state State) error {
	return s.apply(func() (State, error) {
		if _, ok := s.state.(Idle); !ok {
			return nil, s.invalid("restore")
		}
		switch st := state.(type) {
		case Matchmaking, Waiting, InDuel:
			return WagerSelect{}, nil
		case SidePick:
			if st.Wager.GreaterThan(s.cfg.Account.Balance()) {
				return WagerSelect{}, nil
			}
			return st, nil
		case nil:
			return Idle{}, nil
		}
		return state, nil
	})
}

func (s *Session) invalid(action string) error {
	return errors.Wrapf(ErrInvalidTransition, "cannot %s while %s", action, s.state.Phase())
}

// apply runs step under the lock. A nil next state leaves the session where it
// is. Steps only schedule tasks on their success path. The listener is called
// after the lock is released.
func (s *Session) apply(step func() (State, error)) error {
	s.mu.Lock()
	from := s.state
	epochBefore := s.epoch
	next, err := step()
	if err != nil || next == nil {
		s.mu.Unlock()
		return err
	}
	seq := s.transitionLocked(next, epochBefore)
	s.mu.Unlock()
	s.emit(Event{PlayerID: s.cfg.PlayerID, From: from.Phase(), To: next.Phase(), State: next, Seq: seq})
	return nil
}

// transitionLocked swaps in the next state. Tasks scheduled before this step
// are stopped; tasks the step itself scheduled were given the new epoch. It
// returns the sequence number stamped on the transition's event.
func (s *Session) transitionLocked(next State, epochBefore uint64) uint64 {
	if s.epoch == epochBefore {
		s.tasks.StopAll()
		s.epoch++
	}
	s.state = next
	s.seq++
	return s.seq
}

// after schedules fn for the epoch the in-progress transition will enter. It
// retires the current epoch straight away so later transitionLocked keeps the
// task it just created.
func (s *Session) after(d time.Duration, fn func(epoch uint64)) {
	s.tasks.StopAll()
	s.epoch++
	epoch := s.epoch
	s.tasks.Add(s.cfg.Scheduler.AfterFunc(d, func() { fn(epoch) }))
}

// fire runs a timer step if the session is still in the epoch that scheduled it
func (s *Session) fire(epoch uint64, step func() (State, error)) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	from := s.state
	next, err := step()
	if next == nil {
		s.mu.Unlock()
		return
	}
	seq := s.transitionLocked(next, epoch)
	s.mu.Unlock()
	s.emit(Event{PlayerID: s.cfg.PlayerID, From: from.Phase(), To: next.Phase(), State: next, Err: err, Seq: seq})
}

func (s *Session) searchDone(epoch uint64) {
	s.fire(epoch, func() (State, error) {
		mm, ok := s.state.(Matchmaking)
		if !ok {
			return nil, nil
		}
		depth := 0
		if s.cfg.Pool != nil {
			if tier, err := s.cfg.Pool.StatsFor(mm.Wager); err == nil {
				depth = tier.QueueCount
			}
		}
		s.after(s.discoveryDelay(), s.opponentFound)
		return Waiting{Wager: mm.Wager, Side: mm.Side, QueueDepth: depth}, nil
	})
}

func (s *Session) opponentFound(epoch uint64) {
	s.fire(epoch, func() (State, error) {
		w, ok := s.state.(Waiting)
		if !ok {
			return nil, nil
		}
		s.after(s.cfg.Timings.Resolve, s.resolve)
		return InDuel{
			Wager:      w.Wager,
			Side:       w.Side,
			OpponentID: duel.NewOpponentID(s.rng),
			DuelID:     model.NewDuelID(),
		}, nil
	})
}

// resolve settles the duel without holding mu, since settlement journals to
// the store. The result only lands if the session is still in that duel; a
// duel settled after a disconnect stays in the ledger.
func (s *Session) resolve(epoch uint64) {
	s.mu.Lock()
	d, ok := s.state.(InDuel)
	if epoch != s.epoch || !ok {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	record, err := s.cfg.Resolver.Resolve(s.cfg.Context, s.cfg.Account, duel.Request{
		DuelID:     d.DuelID,
		OpponentID: d.OpponentID,
		Wager:      d.Wager,
		Side:       d.Side,
	})
	if err != nil {
		s.cfg.Logger.Warn("settlement failed, returning to wager select",
			zap.String("duel", d.DuelID), zap.Error(err))
	}

	s.fire(epoch, func() (State, error) {
		if cur, ok := s.state.(InDuel); !ok || cur.DuelID != d.DuelID {
			return nil, nil
		}
		if err != nil {
			return WagerSelect{}, err
		}
		return Result{Record: record}, nil
	})
}

// discoveryDelay is uniform in [DiscoveryMin, DiscoveryMax]
func (s *Session) discoveryDelay() time.Duration {
	lo, hi := s.cfg.Timings.DiscoveryMin, s.cfg.Timings.DiscoveryMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)+1))
}

func (s *Session) emit(ev Event) {
	if s.cfg.Listener != nil {
		s.cfg.Listener(ev)
	}
}
