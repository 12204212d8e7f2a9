package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Store journals ledger history per player. Inserts are idempotent, so a
// replayed write is harmless.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Journal scopes writes to one player
type Journal struct {
	playerID string
}

var _ ledger.Journal = (*Journal)(nil)

func (s *Store) Journal(playerID string) ledger.Journal {
	return &Journal{playerID: playerID}
}

func (j *Journal) PutTransaction(ctx context.Context, tx model.Transaction) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO ledger_transactions(tx_id, player_id, kind, amount, status, created)
					VALUES ($1, $2, $3::text::transaction_kind, $4::numeric, $5::text::transaction_status, $6)
					ON CONFLICT DO NOTHING`,
			tx.ID, j.playerID, string(tx.Kind), tx.Amount.String(), string(tx.Status), tx.Timestamp)
		return errors.Wrapf(err, "failed to insert transaction %s", tx.ID)
	})
}

func (j *Journal) PutDuel(ctx context.Context, d model.DuelRecord) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO duel_records(record_id, player_id, duel_id, opponent_id, wager, outcome,
					payout, chosen_side, coin_face, seed, commitment, settled)
					VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9, $10, $11, $12)
					ON CONFLICT (player_id, duel_id) DO NOTHING`,
			d.ID, j.playerID, d.DuelID, d.OpponentID, d.Wager.String(), string(d.Outcome),
			d.Payout.String(), string(d.ChosenSide), string(d.CoinFace), d.Seed, d.Commitment, d.Timestamp)
		return errors.Wrapf(err, "failed to insert duel %s", d.DuelID)
	})
}

// LoadPlayer returns the player's journal oldest first, ready for ledger.Restore
func (s *Store) LoadPlayer(ctx context.Context, playerID string) ([]model.Transaction, []model.DuelRecord, error) {
	var txs []model.Transaction
	var duels []model.DuelRecord
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT tx_id, kind::text, amount::text, status::text, created
					FROM ledger_transactions WHERE player_id = $1 ORDER BY created ASC`, playerID)
		if err != nil {
			return errors.Wrap(err, "failed querying transactions")
		}
		for rows.Next() {
			var tx model.Transaction
			var kind, amount, status string
			if err := rows.Scan(&tx.ID, &kind, &amount, &status, &tx.Timestamp); err != nil {
				rows.Close()
				return errors.Wrap(err, "failed scanning transaction")
			}
			tx.Kind = model.TransactionKind(kind)
			tx.Status = model.TransactionStatus(status)
			if tx.Amount, err = decimal.NewFromString(amount); err != nil {
				rows.Close()
				return errors.Wrapf(err, "bad amount on %s", tx.ID)
			}
			txs = append(txs, tx)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, "failed reading transactions")
		}

		rows, err = conn.Query(ctx,
			`SELECT record_id, duel_id, opponent_id, wager::text, outcome, payout::text,
					chosen_side, coin_face, seed, commitment, settled
					FROM duel_records WHERE player_id = $1 ORDER BY settled ASC`, playerID)
		if err != nil {
			return errors.Wrap(err, "failed querying duels")
		}
		defer rows.Close()
		for rows.Next() {
			var d model.DuelRecord
			var wager, outcome, payout, side, face string
			if err := rows.Scan(&d.ID, &d.DuelID, &d.OpponentID, &wager, &outcome, &payout,
				&side, &face, &d.Seed, &d.Commitment, &d.Timestamp); err != nil {
				return errors.Wrap(err, "failed scanning duel")
			}
			d.Outcome = model.Outcome(outcome)
			d.ChosenSide = model.Side(side)
			d.CoinFace = model.Side(face)
			if d.Wager, err = decimal.NewFromString(wager); err != nil {
				return errors.Wrapf(err, "bad wager on %s", d.DuelID)
			}
			if d.Payout, err = decimal.NewFromString(payout); err != nil {
				return errors.Wrapf(err, "bad payout on %s", d.DuelID)
			}
			duels = append(duels, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}
	return txs, duels, nil
}
