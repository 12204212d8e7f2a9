package ledger

import (
	"iter"

	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/shopspring/decimal"
)

type Stats struct {
	Wins    int             `json:"wins"`
	Losses  int             `json:"losses"`
	WinRate int             `json:"winRate"` // percent, rounded
	Streak  int             `json:"streak"`  // positive for a win streak, negative for a loss streak
	Wagered decimal.Decimal `json:"wagered"`
	PaidOut decimal.Decimal `json:"paidOut"`
	Net     decimal.Decimal `json:"net"`
}

func (l *Ledger) Stats() Stats {
	return ComputeStats(l.Duels(FilterAll))
}

// ComputeStats folds a newest-first duel sequence into dashboard stats
func ComputeStats(duels iter.Seq[model.DuelRecord]) Stats {
	stats := Stats{Wagered: decimal.Zero, PaidOut: decimal.Zero, Net: decimal.Zero}
	streakOpen := true
	var first model.Outcome
	for d := range duels {
		if d.Won() {
			stats.Wins++
		} else {
			stats.Losses++
		}
		stats.Wagered = stats.Wagered.Add(d.Wager)
		stats.PaidOut = stats.PaidOut.Add(d.Payout)

		if first == "" {
			first = d.Outcome
		}
		if streakOpen && d.Outcome == first {
			stats.Streak++
		} else {
			streakOpen = false
		}
	}
	if first == model.OutcomeLoss {
		stats.Streak = -stats.Streak
	}
	if total := stats.Wins + stats.Losses; total > 0 {
		stats.WinRate = int(decimal.NewFromInt(int64(stats.Wins * 100)).
			Div(decimal.NewFromInt(int64(total))).Round(0).IntPart())
	}
	stats.Net = stats.PaidOut.Sub(stats.Wagered)
	return stats
}

// Snapshot is the read-only view handed to the presentation layer and the
// wallet assistant
type Snapshot struct {
	Balance      decimal.Decimal     `json:"balance"`
	Transactions []model.Transaction `json:"transactions"`
	Duels        []model.DuelRecord  `json:"duels"`
	Stats        Stats               `json:"stats"`
}

// Snapshot copies up to limit of the newest transactions and duels; limit <= 0
// copies everything. Balance, history and stats come from one critical section.
func (l *Ledger) Snapshot(limit int) Snapshot {
	l.mu.Lock()
	balance := l.balance
	txs := l.txs[:len(l.txs):len(l.txs)]
	duels := l.duels[:len(l.duels):len(l.duels)]
	l.mu.Unlock()

	snap := Snapshot{
		Balance:      balance,
		Transactions: newestFirst(txs, limit),
		Duels:        newestFirst(duels, limit),
		Stats: ComputeStats(func(yield func(model.DuelRecord) bool) {
			for i := len(duels) - 1; i >= 0; i-- {
				if !yield(duels[i]) {
					return
				}
			}
		}),
	}
	return snap
}

func newestFirst[T any](entries []T, limit int) []T {
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}
