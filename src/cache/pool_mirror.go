package cache

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	PoolQueueKey  = "pool_queue"
	PoolActiveKey = "pool_active"
)

// PoolMirror copies pool telemetry into two sorted sets keyed by tier, so
// other processes can read queue depth without talking to the server
type PoolMirror struct {
	queue  ZSet
	active ZSet
}

var _ poolsim.Publisher = (*PoolMirror)(nil)

func NewPoolMirror(rd *redis.Client) *PoolMirror {
	return &PoolMirror{
		queue:  NewZSet(rd, PoolQueueKey),
		active: NewZSet(rd, PoolActiveKey),
	}
}

func (p *PoolMirror) PublishTiers(ctx context.Context, tiers []model.Tier) error {
	queue := make([]ZSetKVP, 0, len(tiers))
	active := make([]ZSetKVP, 0, len(tiers))
	for _, t := range tiers {
		queue = append(queue, ZSetKVP{Member: t.Tier.String(), Score: float64(t.QueueCount)})
		active = append(active, ZSetKVP{Member: t.Tier.String(), Score: float64(t.ActiveGames)})
	}
	if err := p.queue.Set(ctx, queue...); err != nil {
		return errors.Wrap(err, "failed writing pool queue")
	}
	if err := p.active.Set(ctx, active...); err != nil {
		return errors.Wrap(err, "failed writing pool active games")
	}
	return nil
}

// Tiers reads the mirrored snapshot back
func (p *PoolMirror) Tiers(ctx context.Context) ([]model.Tier, error) {
	queued, err := p.queue.All(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading pool queue")
	}
	tiers := make([]model.Tier, 0, len(queued))
	for _, q := range queued {
		member, ok := q.Member.(string)
		if !ok {
			continue
		}
		tier, err := decimal.NewFromString(member)
		if err != nil {
			return nil, errors.Wrapf(err, "bad tier member %q", member)
		}
		active, err := p.active.Score(ctx, member)
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, errors.Wrapf(err, "failed reading active games for %s", member)
		}
		tiers = append(tiers, model.Tier{Tier: tier, QueueCount: int(q.Score), ActiveGames: int(active)})
	}
	return tiers, nil
}
