package agent

import (
	"fmt"
	"strings"

	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/model"
)

const walletContextTxs = 5

// WalletPrompt appends a read-only account summary to the player's question
func WalletPrompt(question string, snap ledger.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(question))
	fmt.Fprintf(&sb, "\n\nAccount context: balance %s SOL, %d wins, %d losses, win rate %d%%, streak %d.",
		snap.Balance, snap.Stats.Wins, snap.Stats.Losses, snap.Stats.WinRate, snap.Stats.Streak)
	if len(snap.Transactions) > 0 {
		sb.WriteString(" Recent transactions:")
		for i, tx := range snap.Transactions {
			if i == walletContextTxs {
				break
			}
			fmt.Fprintf(&sb, " %s %s SOL (%s);", tx.Kind, tx.Amount, tx.Status)
		}
	}
	return sb.String()
}

func FairnessPrompt(record model.DuelRecord) string {
	msg := fmt.Sprintf("Verify fairness for duel ID: %s", record.DuelID)
	if record.Commitment != "" {
		msg += fmt.Sprintf(" (seed %d, blake2b commitment %s, coin %s, player side %s)",
			record.Seed, record.Commitment, record.CoinFace, record.ChosenSide)
	}
	return msg
}

func InsightPrompt(playerAddress string, record model.DuelRecord, streak int) string {
	return fmt.Sprintf("Generate insight for duel %s: Player %s vs %s, wager %s SOL, result: %s, payout: %s SOL, current streak: %d",
		record.DuelID, duel.Truncate(playerAddress), duel.Truncate(record.OpponentID),
		record.Wager, record.Outcome, record.Payout, streak)
}
