package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/coinduel/src/agent"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

func TestConfigParsing(t *testing.T) {
	raw := `
platform_fee: "0.1"
wager_tiers: ["1", "2.5"]
initial_balance: "3"
search_delay: 2500ms
discovery_min: 5s
discovery_max: 15s
resolve_delay: 4s
fairness_agent: "custom-fairness"
`
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatal(err)
	}
	fee, err := cfg.Fee()
	if err != nil || !fee.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expected fee 0.1, got %s (%v)", fee, err)
	}
	tiers, err := cfg.Tiers()
	if err != nil {
		t.Fatal(err)
	}
	if len(tiers) != 2 || !tiers[1].Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected tiers %v", tiers)
	}
	initial, err := cfg.Initial()
	if err != nil || !initial.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected initial 3, got %s (%v)", initial, err)
	}
	if d := cmp.Diff(session.DefaultTimings, cfg.Timings()); d != "" {
		t.Fatalf("unexpected timings (-want +got):\n%s", d)
	}
	want := agent.AgentIDs{
		Wallet:   agent.DefaultAgentIDs.Wallet,
		Fairness: "custom-fairness",
		Insight:  agent.DefaultAgentIDs.Insight,
	}
	if d := cmp.Diff(want, cfg.Agents); d != "" {
		t.Fatalf("unexpected agent ids (-want +got):\n%s", d)
	}
}

func TestConfigRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WagerTiers = []string{"1", "-2"}
	if _, err := cfg.Tiers(); err == nil {
		t.Fatal("expected a negative tier to be rejected")
	}
	cfg.PlatformFee = "five percent"
	if _, err := cfg.Fee(); err == nil {
		t.Fatal("expected a non numeric fee to be rejected")
	}
	cfg.InitialBalance = "-1"
	if _, err := cfg.Initial(); err == nil {
		t.Fatal("expected a negative initial balance to be rejected")
	}

	cfg.DiscoveryMin = 10 * time.Second
	cfg.DiscoveryMax = time.Second
	if got := cfg.Timings().DiscoveryMax; got != 10*time.Second {
		t.Fatalf("expected discovery max clamped to min, got %s", got)
	}
}
