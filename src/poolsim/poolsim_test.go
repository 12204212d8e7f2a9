package poolsim

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func TestAggregates(t *testing.T) {
	tiers := []model.Tier{
		{Tier: decimal.NewFromInt(1), QueueCount: 2, ActiveGames: 5},
		{Tier: decimal.NewFromInt(2), QueueCount: 3, ActiveGames: 7},
	}
	if got := TotalOnline(tiers); got != 34 {
		t.Fatalf("expected total online 34, got %d", got)
	}
	if got := TotalActiveGames(tiers); got != 12 {
		t.Fatalf("expected total active 12, got %d", got)
	}
	if TotalOnline(nil) != 0 || TotalActiveGames(nil) != 0 {
		t.Fatal("empty pool should aggregate to zero")
	}
}

func TestRefreshBounds(t *testing.T) {
	sim := NewSimulator(model.DefaultWagerTiers, 42)
	seenQueue := map[int]bool{}
	for i := 0; i < 2000; i++ {
		sim.Refresh()
		for _, tier := range sim.Tiers() {
			if tier.QueueCount < 1 || tier.QueueCount > 15 {
				t.Fatalf("queue count %d out of [1,15]", tier.QueueCount)
			}
			if tier.ActiveGames < 5 || tier.ActiveGames > 34 {
				t.Fatalf("active games %d out of [5,34]", tier.ActiveGames)
			}
			seenQueue[tier.QueueCount] = true
		}
	}
	if len(seenQueue) != 15 {
		t.Fatalf("expected every queue depth 1..15 to appear, saw %d", len(seenQueue))
	}
}

func TestDeterministicBySeed(t *testing.T) {
	a := NewSimulator(model.DefaultWagerTiers, 12345678)
	b := NewSimulator(model.DefaultWagerTiers, 12345678)
	for i := 0; i < 10; i++ {
		if d := cmp.Diff(a.Tiers(), b.Tiers()); d != "" {
			t.Fatalf("same seed diverged at refresh %d: %s", i, d)
		}
		a.Refresh()
		b.Refresh()
	}
}

func TestStatsFor(t *testing.T) {
	sim := NewSimulator(model.DefaultWagerTiers, 1)
	tier, err := sim.StatsFor(decimal.RequireFromString("5.0"))
	if err != nil {
		t.Fatal(err)
	}
	if !tier.Tier.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("wrong tier returned: %s", tier.Tier)
	}
	if _, err := sim.StatsFor(decimal.NewFromInt(3)); !errors.Is(err, ErrTierNotFound) {
		t.Fatalf("expected ErrTierNotFound, got %v", err)
	}
}

type capturePublisher struct {
	published [][]model.Tier
}

func (c *capturePublisher) PublishTiers(_ context.Context, tiers []model.Tier) error {
	c.published = append(c.published, tiers)
	return nil
}

func TestDoRefreshOncePublishes(t *testing.T) {
	pub := &capturePublisher{}
	sim := NewSimulator(model.DefaultWagerTiers, 7, WithPublisher(pub))
	if err := sim.DoRefreshOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
	if d := cmp.Diff(sim.Tiers(), pub.published[0]); d != "" {
		t.Fatalf("published snapshot differs from current: %s", d)
	}
	if sim.TotalOnline() != TotalOnline(pub.published[0]) {
		t.Fatal("simulator aggregate disagrees with published snapshot")
	}
}
