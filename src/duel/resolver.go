package duel

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"

	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/metrics"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

var DefaultPlatformFee = decimal.RequireFromString("0.05")

var ErrInvalidSide = fmt.Errorf("invalid side")
var ErrUnfairRecord = fmt.Errorf("duel record does not replay")

// Settler applies a duel's financial effect exactly once per duel id
type Settler interface {
	Settle(ctx context.Context, record model.DuelRecord) (model.DuelRecord, error)
}

var _ Settler = (*ledger.Ledger)(nil)

type Request struct {
	DuelID     string
	OpponentID string
	Wager      decimal.Decimal
	Side       model.Side
}

type Resolver struct {
	fee    decimal.Decimal
	seeds  func() (int64, error)
	logger *zap.Logger
}

type Option func(*Resolver)

// WithSeedSource replaces the crypto seed source, for tests
func WithSeedSource(fn func() (int64, error)) Option {
	return func(r *Resolver) { r.seeds = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger.With(zap.String("component", "resolver")) }
}

func NewResolver(platformFee decimal.Decimal, opts ...Option) (*Resolver, error) {
	if platformFee.IsNegative() || platformFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.Errorf("platform fee %s must be in [0, 1)", platformFee)
	}
	r := &Resolver{
		fee:    platformFee,
		seeds:  common.NewSeed,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Resolver) PlatformFee() decimal.Decimal {
	return r.fee
}

// Payout is wager * 2 * (1 - fee) on a win, rounded half-even to money
// precision, and zero on a loss
func (r *Resolver) Payout(wager decimal.Decimal, won bool) decimal.Decimal {
	if !won {
		return decimal.Zero
	}
	return wager.Mul(decimal.NewFromInt(2)).
		Mul(decimal.NewFromInt(1).Sub(r.fee)).
		RoundBank(model.MoneyPlaces)
}

// Resolve flips the coin and settles the result. A duel id that was already
// settled returns the stored record untouched.
func (r *Resolver) Resolve(ctx context.Context, settler Settler, req Request) (model.DuelRecord, error) {
	if !req.Side.Valid() {
		return model.DuelRecord{}, errors.Wrapf(ErrInvalidSide, "%q", req.Side)
	}
	seed, err := r.seeds()
	if err != nil {
		return model.DuelRecord{}, errors.Wrap(err, "failed drawing duel seed")
	}
	face := Flip(seed)
	won := face == req.Side
	outcome := model.OutcomeLoss
	if won {
		outcome = model.OutcomeWin
	}
	record := model.DuelRecord{
		DuelID:     req.DuelID,
		OpponentID: req.OpponentID,
		Wager:      req.Wager,
		Outcome:    outcome,
		Payout:     r.Payout(req.Wager, won),
		ChosenSide: req.Side,
		CoinFace:   face,
		Seed:       seed,
		Commitment: Commitment(seed),
	}

	settled, err := settler.Settle(ctx, record)
	if errors.Is(err, ledger.ErrDuplicateSettlement) {
		r.logger.Debug("duel already settled", zap.String("duel", req.DuelID))
		return settled, nil
	}
	if err != nil {
		return model.DuelRecord{}, errors.Wrapf(err, "failed settling duel %s", req.DuelID)
	}
	metrics.RecordSettlement(string(settled.Outcome), settled.Wager, settled.Payout)
	r.logger.Info("duel settled",
		zap.String("duel", settled.DuelID),
		zap.String("outcome", string(settled.Outcome)),
		zap.String("wager", settled.Wager.String()),
		zap.String("payout", settled.Payout.String()))
	return settled, nil
}

// Flip derives the coin face from a seed. Same seed, same face.
func Flip(seed int64) model.Side {
	if rand.New(rand.NewSource(seed)).Intn(2) == 0 {
		return model.SideA
	}
	return model.SideB
}

// Commitment is the hex blake2b-256 digest of the little-endian seed
func Commitment(seed int64) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(seed))
	sum := blake2b.Sum256(b[:])
	return hex.EncodeToString(sum[:])
}

// Verify replays a settled record from its seed and checks every derived field
func (r *Resolver) Verify(record model.DuelRecord) error {
	if Commitment(record.Seed) != record.Commitment {
		return errors.Wrap(ErrUnfairRecord, "seed does not match commitment")
	}
	face := Flip(record.Seed)
	if face != record.CoinFace {
		return errors.Wrapf(ErrUnfairRecord, "seed flips %s, record says %s", face, record.CoinFace)
	}
	won := face == record.ChosenSide
	if won != record.Won() {
		return errors.Wrapf(ErrUnfairRecord, "outcome %s does not follow from the flip", record.Outcome)
	}
	if expected := r.Payout(record.Wager, won); !expected.Equal(record.Payout) {
		return errors.Wrapf(ErrUnfairRecord, "payout %s, expected %s", record.Payout, expected)
	}
	return nil
}
