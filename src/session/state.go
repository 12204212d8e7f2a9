package session

import (
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseWagerSelect Phase = "wager_select"
	PhaseSidePick    Phase = "side_pick"
	PhaseMatchmaking Phase = "matchmaking"
	PhaseWaiting     Phase = "waiting"
	PhaseInDuel      Phase = "in_duel"
	PhaseResult      Phase = "result"
)

// State is one phase of a player's session together with exactly the data that
// phase needs. A value of one of the types below.
type State interface {
	Phase() Phase
	isState()
}

type Idle struct{}

type WagerSelect struct{}

type SidePick struct {
	Wager decimal.Decimal
}

type Matchmaking struct {
	Wager decimal.Decimal
	Side  model.Side
}

type Waiting struct {
	Wager      decimal.Decimal
	Side       model.Side
	QueueDepth int // queue for the wager's tier, 0 for custom amounts
}

type InDuel struct {
	Wager      decimal.Decimal
	Side       model.Side
	OpponentID string
	DuelID     string
}

type Result struct {
	Record model.DuelRecord
}

func (Idle) Phase() Phase        { return PhaseIdle }
func (WagerSelect) Phase() Phase { return PhaseWagerSelect }
func (SidePick) Phase() Phase    { return PhaseSidePick }
func (Matchmaking) Phase() Phase { return PhaseMatchmaking }
func (Waiting) Phase() Phase     { return PhaseWaiting }
func (InDuel) Phase() Phase      { return PhaseInDuel }
func (Result) Phase() Phase      { return PhaseResult }

func (Idle) isState()        {}
func (WagerSelect) isState() {}
func (SidePick) isState()    {}
func (Matchmaking) isState() {}
func (Waiting) isState()     {}
func (InDuel) isState()      {}
func (Result) isState()      {}

// OpponentSide is always the side the player did not pick
func (d InDuel) OpponentSide() model.Side {
	return d.Side.Opposite()
}

// Snapshot is the flat, serializable form of a State
type Snapshot struct {
	Phase      Phase             `json:"phase"`
	Wager      *decimal.Decimal  `json:"wager,omitempty"`
	Side       model.Side        `json:"side,omitempty"`
	OpponentID string            `json:"opponentId,omitempty"`
	DuelID     string            `json:"duelId,omitempty"`
	QueueDepth int               `json:"queueDepth,omitempty"`
	Record     *model.DuelRecord `json:"record,omitempty"`
}

func SnapshotOf(state State) Snapshot {
	switch st := state.(type) {
	case SidePick:
		return Snapshot{Phase: PhaseSidePick, Wager: &st.Wager}
	case Matchmaking:
		return Snapshot{Phase: PhaseMatchmaking, Wager: &st.Wager, Side: st.Side}
	case Waiting:
		return Snapshot{Phase: PhaseWaiting, Wager: &st.Wager, Side: st.Side, QueueDepth: st.QueueDepth}
	case InDuel:
		return Snapshot{Phase: PhaseInDuel, Wager: &st.Wager, Side: st.Side, OpponentID: st.OpponentID, DuelID: st.DuelID}
	case Result:
		return Snapshot{Phase: PhaseResult, Record: &st.Record}
	case nil:
		return Snapshot{Phase: PhaseIdle}
	}
	return Snapshot{Phase: state.Phase()}
}

// State rebuilds the typed state, rejecting snapshots missing their phase data
func (s Snapshot) State() (State, error) {
	needWager := func() (decimal.Decimal, error) {
		if s.Wager == nil {
			return decimal.Zero, errors.Errorf("%s snapshot without a wager", s.Phase)
		}
		return *s.Wager, nil
	}
	switch s.Phase {
	case PhaseIdle, "":
		return Idle{}, nil
	case PhaseWagerSelect:
		return WagerSelect{}, nil
	case PhaseSidePick:
		w, err := needWager()
		return SidePick{Wager: w}, err
	case PhaseMatchmaking:
		w, err := needWager()
		return Matchmaking{Wager: w, Side: s.Side}, err
	case PhaseWaiting:
		w, err := needWager()
		return Waiting{Wager: w, Side: s.Side, QueueDepth: s.QueueDepth}, err
	case PhaseInDuel:
		w, err := needWager()
		return InDuel{Wager: w, Side: s.Side, OpponentID: s.OpponentID, DuelID: s.DuelID}, err
	case PhaseResult:
		if s.Record == nil {
			return nil, errors.New("result snapshot without a record")
		}
		return Result{Record: *s.Record}, nil
	}
	return nil, errors.Errorf("unknown phase %q", s.Phase)
}
