package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type Outcome string

const (
	SideA Side = "A" // heads
	SideB Side = "B" // tails
)

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// DuelRecord - a settled duel, one per duel id
type DuelRecord struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"date"`
	OpponentID string          `json:"opponent"`
	Wager      decimal.Decimal `json:"wager"`
	Outcome    Outcome         `json:"result"`
	Payout     decimal.Decimal `json:"payout"`
	DuelID     string          `json:"duelId"`
	ChosenSide Side            `json:"side"`
	CoinFace   Side            `json:"coin"`
	Seed       int64           `json:"seed"`
	Commitment string          `json:"commitment"`
}

func (d DuelRecord) Won() bool {
	return d.Outcome == OutcomeWin
}

// Net is the change this duel made to the balance
func (d DuelRecord) Net() decimal.Decimal {
	return d.Payout.Sub(d.Wager)
}

func DuelArrayToMap(arr []DuelRecord) map[string]DuelRecord {
	mapped := map[string]DuelRecord{}
	for _, v := range arr {
		mapped[v.DuelID] = v
	}
	return mapped
}
