package engine

import (
	"time"

	"github.com/onemorebsmith/coinduel/src/agent"
	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config is the game tuning block of config.yaml. Money values are strings so
// they parse as exact decimals.
type Config struct {
	PlatformFee    string         `yaml:"platform_fee"`
	WagerTiers     []string       `yaml:"wager_tiers"`
	InitialBalance string         `yaml:"initial_balance"`
	SampleData     bool           `yaml:"sample_data"`
	PoolRefresh    time.Duration  `yaml:"pool_refresh"`
	PoolSeed       int64          `yaml:"pool_seed"` // 0 draws a crypto seed
	SearchDelay    time.Duration  `yaml:"search_delay"`
	DiscoveryMin   time.Duration  `yaml:"discovery_min"`
	DiscoveryMax   time.Duration  `yaml:"discovery_max"`
	ResolveDelay   time.Duration  `yaml:"resolve_delay"`
	AgentURL       string         `yaml:"agent_url"`
	AgentTimeout   time.Duration  `yaml:"agent_timeout"`
	Agents         agent.AgentIDs `yaml:",inline"`
}

func DefaultConfig() Config {
	tiers := make([]string, len(model.DefaultWagerTiers))
	for i, t := range model.DefaultWagerTiers {
		tiers[i] = t.String()
	}
	return Config{
		PlatformFee:    duel.DefaultPlatformFee.String(),
		WagerTiers:     tiers,
		InitialBalance: "0",
		PoolRefresh:    poolsim.DefaultRefreshInterval,
		SearchDelay:    session.DefaultTimings.Search,
		DiscoveryMin:   session.DefaultTimings.DiscoveryMin,
		DiscoveryMax:   session.DefaultTimings.DiscoveryMax,
		ResolveDelay:   session.DefaultTimings.Resolve,
		AgentTimeout:   agent.DefaultTimeout,
		Agents:         agent.DefaultAgentIDs,
	}
}

func (c Config) Fee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.PlatformFee)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "bad platform_fee %q", c.PlatformFee)
	}
	return fee, nil
}

func (c Config) Tiers() ([]decimal.Decimal, error) {
	if len(c.WagerTiers) == 0 {
		return model.DefaultWagerTiers, nil
	}
	tiers := make([]decimal.Decimal, 0, len(c.WagerTiers))
	for _, raw := range c.WagerTiers {
		t, err := decimal.NewFromString(raw)
		if err != nil || !t.IsPositive() {
			return nil, errors.Errorf("bad wager tier %q", raw)
		}
		tiers = append(tiers, t)
	}
	return tiers, nil
}

func (c Config) Initial() (decimal.Decimal, error) {
	if c.InitialBalance == "" {
		return decimal.Zero, nil
	}
	initial, err := decimal.NewFromString(c.InitialBalance)
	if err != nil || initial.IsNegative() {
		return decimal.Zero, errors.Errorf("bad initial_balance %q", c.InitialBalance)
	}
	return initial, nil
}

func (c Config) Timings() session.Timings {
	t := session.Timings{
		Search:       c.SearchDelay,
		DiscoveryMin: c.DiscoveryMin,
		DiscoveryMax: c.DiscoveryMax,
		Resolve:      c.ResolveDelay,
	}
	if t.DiscoveryMax < t.DiscoveryMin {
		t.DiscoveryMax = t.DiscoveryMin
	}
	return t
}
