package poolsim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/onemorebsmith/coinduel/src/metrics"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrTierNotFound = fmt.Errorf("tier not found")

const DefaultRefreshInterval = 8 * time.Second

const (
	minQueue  = 1
	maxQueue  = 15
	minActive = 5
	maxActive = 34
)

// StatsSource is anything that can report live queue telemetry per tier. The
// simulator is one; a real matchmaking pool would be another.
type StatsSource interface {
	Tiers() []model.Tier
	StatsFor(tier decimal.Decimal) (model.Tier, error)
	TotalOnline() int
	TotalActiveGames() int
}

// Publisher receives every refreshed snapshot, e.g. to mirror it into redis
type Publisher interface {
	PublishTiers(ctx context.Context, tiers []model.Tier) error
}

type Simulator struct {
	mu        sync.RWMutex
	rng       *rand.Rand
	tiers     []model.Tier
	publisher Publisher
	logger    *zap.Logger
}

var _ StatsSource = (*Simulator)(nil)

type Option func(*Simulator)

func WithPublisher(p Publisher) Option {
	return func(s *Simulator) { s.publisher = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulator) { s.logger = logger.With(zap.String("component", "poolsim")) }
}

// NewSimulator builds a simulator over the given tiers and fills it once. The
// same seed always yields the same sequence of snapshots.
func NewSimulator(tiers []decimal.Decimal, seed int64, opts ...Option) *Simulator {
	s := &Simulator{
		rng:    rand.New(rand.NewSource(seed)),
		tiers:  make([]model.Tier, len(tiers)),
		logger: zap.NewNop(),
	}
	for i, t := range tiers {
		s.tiers[i] = model.Tier{Tier: t}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Refresh()
	return s
}

// Refresh regenerates queue depth in [1,15] and active games in [5,34] for
// every tier
func (s *Simulator) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tiers {
		s.tiers[i].QueueCount = s.rng.Intn(maxQueue-minQueue+1) + minQueue
		s.tiers[i].ActiveGames = s.rng.Intn(maxActive-minActive+1) + minActive
	}
}

func (s *Simulator) Tiers() []model.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Tier(nil), s.tiers...)
}

func (s *Simulator) StatsFor(tier decimal.Decimal) (model.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tiers {
		if t.Tier.Equal(tier) {
			return t, nil
		}
	}
	return model.Tier{}, errors.Wrapf(ErrTierNotFound, "no pool for %s", tier)
}

func (s *Simulator) TotalOnline() int {
	return TotalOnline(s.Tiers())
}

func (s *Simulator) TotalActiveGames() int {
	return TotalActiveGames(s.Tiers())
}

// TotalOnline counts two players per queued entry and per active game
func TotalOnline(tiers []model.Tier) int {
	total := 0
	for _, t := range tiers {
		total += t.QueueCount*2 + t.ActiveGames*2
	}
	return total
}

func TotalActiveGames(tiers []model.Tier) int {
	total := 0
	for _, t := range tiers {
		total += t.ActiveGames
	}
	return total
}

func (s *Simulator) RefreshThread(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping pool refresh thread, context cancelled")
			return
		case <-ticker.C:
			if err := s.DoRefreshOnce(ctx); err != nil {
				s.logger.Warn("failed publishing pool snapshot", zap.Error(err))
			}
		}
	}
}

// DoRefreshOnce refreshes, records gauges and hands the snapshot to the publisher
func (s *Simulator) DoRefreshOnce(ctx context.Context) error {
	s.Refresh()
	tiers := s.Tiers()
	for _, t := range tiers {
		metrics.RecordPoolTier(t.Tier, t.QueueCount, t.ActiveGames)
	}
	if s.publisher == nil {
		return nil
	}
	return errors.Wrap(s.publisher.PublishTiers(ctx, tiers), "publish")
}
