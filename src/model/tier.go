package model

import "github.com/shopspring/decimal"

// Tier - live queue telemetry for one wager bucket
type Tier struct {
	Tier        decimal.Decimal `json:"tier"`
	QueueCount  int             `json:"queueCount"`
	ActiveGames int             `json:"activeGames"`
}

// DefaultWagerTiers are the wager buckets offered in the lobby
var DefaultWagerTiers = []decimal.Decimal{
	decimal.RequireFromString("0.5"),
	decimal.NewFromInt(1),
	decimal.NewFromInt(2),
	decimal.NewFromInt(5),
	decimal.NewFromInt(10),
}
