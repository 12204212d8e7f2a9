package duel

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedFor scans for a seed whose flip lands on side
func seedFor(t *testing.T, side model.Side) int64 {
	t.Helper()
	for s := int64(1); s < 1000; s++ {
		if Flip(s) == side {
			return s
		}
	}
	t.Fatalf("no seed in range flips %s", side)
	return 0
}

func fixedSeed(seed int64) Option {
	return WithSeedSource(func() (int64, error) { return seed, nil })
}

func TestPayoutFormula(t *testing.T) {
	r, err := NewResolver(DefaultPlatformFee)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Payout(dec("2"), true); !got.Equal(dec("3.8")) {
		t.Fatalf("expected payout 3.8, got %s", got)
	}
	if got := r.Payout(dec("2"), false); !got.IsZero() {
		t.Fatalf("expected zero payout on a loss, got %s", got)
	}
	// 0.000000015 * 1.9 = 0.0000000285 rounds half-even down to ...28
	if got := r.Payout(dec("0.000000015"), true); !got.Equal(dec("0.000000028")) {
		t.Fatalf("expected half-even rounding to 0.000000028, got %s", got)
	}
}

func TestNewResolverRejectsBadFee(t *testing.T) {
	for _, fee := range []string{"-0.01", "1", "1.5"} {
		if _, err := NewResolver(dec(fee)); err == nil {
			t.Fatalf("fee %s should be rejected", fee)
		}
	}
}

func TestResolveWin(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(dec("5"))
	r, err := NewResolver(DefaultPlatformFee, fixedSeed(seedFor(t, model.SideA)))
	if err != nil {
		t.Fatal(err)
	}

	record, err := r.Resolve(ctx, l, Request{DuelID: "DUEL-WIN00001", OpponentID: "opp", Wager: dec("2"), Side: model.SideA})
	if err != nil {
		t.Fatal(err)
	}
	if !record.Won() || !record.Payout.Equal(dec("3.8")) {
		t.Fatalf("expected a 3.8 win, got %+v", record)
	}
	if !l.Balance().Equal(dec("6.8")) {
		t.Fatalf("expected balance 6.8, got %s", l.Balance())
	}
	if err := r.Verify(record); err != nil {
		t.Fatalf("settled record should verify: %s", err)
	}
}

func TestResolveLoss(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(dec("5"))
	r, err := NewResolver(DefaultPlatformFee, fixedSeed(seedFor(t, model.SideB)))
	if err != nil {
		t.Fatal(err)
	}
	record, err := r.Resolve(ctx, l, Request{DuelID: "DUEL-LOSS0001", Wager: dec("2"), Side: model.SideA})
	if err != nil {
		t.Fatal(err)
	}
	if record.Won() || !record.Payout.IsZero() {
		t.Fatalf("expected a loss with zero payout, got %+v", record)
	}
	if !l.Balance().Equal(dec("3")) {
		t.Fatalf("expected balance 3, got %s", l.Balance())
	}
}

func TestResolveIdempotent(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(dec("10"))
	r, err := NewResolver(DefaultPlatformFee)
	if err != nil {
		t.Fatal(err)
	}
	req := Request{DuelID: "DUEL-REPLAY01", Wager: dec("1"), Side: model.SideB}
	first, err := r.Resolve(ctx, l, req)
	if err != nil {
		t.Fatal(err)
	}
	balance := l.Balance()
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(ctx, l, req)
		if err != nil {
			t.Fatalf("replay should succeed, got %s", err)
		}
		if again.Seed != first.Seed || again.Outcome != first.Outcome {
			t.Fatal("replay returned a different record than the first settlement")
		}
	}
	if !l.Balance().Equal(balance) {
		t.Fatalf("replays changed the balance from %s to %s", balance, l.Balance())
	}
	if n := len(l.Snapshot(0).Duels); n != 1 {
		t.Fatalf("expected a single duel record, got %d", n)
	}
}

func TestResolveInsufficientFunds(t *testing.T) {
	l := ledger.New(dec("1"))
	r, err := NewResolver(DefaultPlatformFee)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve(context.Background(), l, Request{DuelID: "DUEL-BROKE001", Wager: dec("2"), Side: model.SideA})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestResolveInvalidSide(t *testing.T) {
	r, err := NewResolver(DefaultPlatformFee)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve(context.Background(), ledger.New(dec("1")), Request{DuelID: "DUEL-X", Wager: dec("1"), Side: "C"})
	if !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
}

// Over many duels the win fraction for a fixed side should sit near 0.5. With
// n=10000 the standard error is 0.005, so 0.03 is a six sigma band.
func TestFairness(t *testing.T) {
	const n = 10000
	wins := 0
	for i := 0; i < n; i++ {
		seed, err := common.NewSeed()
		if err != nil {
			t.Fatal(err)
		}
		if Flip(seed) == model.SideA {
			wins++
		}
	}
	frac := float64(wins) / n
	if frac < 0.47 || frac > 0.53 {
		t.Fatalf("win fraction %f outside fairness band", frac)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	r, err := NewResolver(DefaultPlatformFee, fixedSeed(seedFor(t, model.SideA)))
	if err != nil {
		t.Fatal(err)
	}
	record, err := r.Resolve(context.Background(), ledger.New(dec("5")), Request{DuelID: "DUEL-TAMPER01", Wager: dec("1"), Side: model.SideA})
	if err != nil {
		t.Fatal(err)
	}

	forged := record
	forged.Payout = dec("100")
	if err := r.Verify(forged); !errors.Is(err, ErrUnfairRecord) {
		t.Fatalf("expected inflated payout to fail verification, got %v", err)
	}
	forged = record
	forged.Seed++
	if err := r.Verify(forged); !errors.Is(err, ErrUnfairRecord) {
		t.Fatalf("expected swapped seed to fail verification, got %v", err)
	}
}

func TestOpponentID(t *testing.T) {
	rng := rand.New(rand.NewSource(12345678))
	id := NewOpponentID(rng)
	if len(id) != 44 {
		t.Fatalf("expected 44 chars, got %d", len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune(addressAlphabet, c) {
			t.Fatalf("unexpected character %q in %s", c, id)
		}
	}
	if got := Truncate("ABCDEFGHIJKL"); got != "ABCD...IJKL" {
		t.Fatalf("unexpected truncation %s", got)
	}
	if got := Truncate("short"); got != "short" {
		t.Fatalf("short addresses should pass through, got %s", got)
	}
}
