package engine

import (
	"math/rand"
	"time"

	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/shopspring/decimal"
)

var sampleWagers = []string{"0.5", "1", "2", "5", "1", "2", "0.5", "10"}
var sampleOutcomes = []model.Outcome{
	model.OutcomeWin, model.OutcomeLoss, model.OutcomeWin, model.OutcomeWin,
	model.OutcomeLoss, model.OutcomeWin, model.OutcomeWin, model.OutcomeLoss,
}

type sampleTx struct {
	kind  model.TransactionKind
	amt   string
	hours time.Duration // age
}

var sampleTxs = []sampleTx{
	{model.TransactionKindDeposit, "10", 24},
	{model.TransactionKindWager, "2", 20},
	{model.TransactionKindPayout, "3.8", 20},
	{model.TransactionKindWager, "1", 10},
	{model.TransactionKindDeposit, "5", 5},
	{model.TransactionKindWithdrawal, "3", 2},
}

// SampleHistory builds a demo account: eight past duels and six transactions.
// The duels carry fair seeds so they verify like real ones.
func SampleHistory(rng *rand.Rand, now time.Time, resolver *duel.Resolver) ([]model.Transaction, []model.DuelRecord) {
	txs := make([]model.Transaction, 0, len(sampleTxs))
	for _, s := range sampleTxs {
		txs = append(txs, model.Transaction{
			ID:        model.NewTransactionID(),
			Kind:      s.kind,
			Amount:    decimal.RequireFromString(s.amt),
			Timestamp: now.Add(-s.hours * time.Hour).UTC(),
			Status:    model.TransactionStatusCompleted,
		})
	}

	duels := make([]model.DuelRecord, 0, len(sampleWagers))
	for i, raw := range sampleWagers {
		wager := decimal.RequireFromString(raw)
		won := sampleOutcomes[i] == model.OutcomeWin
		seed := rng.Int63()
		face := duel.Flip(seed)
		side := face
		if !won {
			side = face.Opposite()
		}
		age := time.Duration((i+1)*(i+2)) * time.Hour
		duels = append(duels, model.DuelRecord{
			ID:         model.NewTransactionID(),
			Timestamp:  now.Add(-age).UTC(),
			OpponentID: duel.NewOpponentID(rng),
			Wager:      wager,
			Outcome:    sampleOutcomes[i],
			Payout:     resolver.Payout(wager, won),
			DuelID:     model.NewDuelID(),
			ChosenSide: side,
			CoinFace:   face,
			Seed:       seed,
			Commitment: duel.Commitment(seed),
		})
	}
	return txs, duels
}
