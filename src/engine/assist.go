package engine

import (
	"context"

	"github.com/onemorebsmith/coinduel/src/agent"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/pkg/errors"
)

const walletSnapshotDepth = 20

// Verification pairs the local replay of a duel's seed with the fairness
// agent's narration of it
type Verification struct {
	DuelID      string                `json:"duelId"`
	Replayed    bool                  `json:"replayed"`
	ReplayError string                `json:"replayError,omitempty"`
	Report      *agent.FairnessReport `json:"report,omitempty"`
}

func (e *Engine) call(ctx context.Context, agentID, message string) (agent.Payload, error) {
	if e.dispatcher == nil {
		return nil, errors.Wrap(agent.ErrAgentUnavailable, "no agent endpoint configured")
	}
	reply := agent.Await(ctx, e.dispatcher.Dispatch(ctx, agentID, message))
	return reply.Payload, reply.Err
}

// AskWallet forwards a question to the wallet assistant along with a read-only
// snapshot of the player's account
func (e *Engine) AskWallet(ctx context.Context, playerID, question string) (agent.WalletAdvice, error) {
	p, err := e.Player(playerID)
	if err != nil {
		return agent.WalletAdvice{}, err
	}
	if e.dispatcher == nil {
		return agent.WalletAdvice{}, errors.Wrap(agent.ErrAgentUnavailable, "no agent endpoint configured")
	}
	prompt := agent.WalletPrompt(question, p.Ledger.Snapshot(walletSnapshotDepth))
	payload, err := e.call(ctx, e.dispatcher.IDs().Wallet, prompt)
	if err != nil {
		return agent.WalletAdvice{}, err
	}
	advice, err := agent.Decode[agent.WalletAdvice](payload)
	if err != nil {
		return agent.WalletAdvice{}, errors.Wrap(agent.ErrAgentUnavailable, err.Error())
	}
	return advice, nil
}

func (e *Engine) duel(playerID, duelID string) (*Player, model.DuelRecord, error) {
	p, err := e.Player(playerID)
	if err != nil {
		return nil, model.DuelRecord{}, err
	}
	record, ok := p.Ledger.Duel(duelID)
	if !ok {
		return nil, model.DuelRecord{}, errors.Wrapf(ErrDuelNotFound, "%s", duelID)
	}
	return p, record, nil
}

// VerifyDuel replays the duel's seed locally, then asks the fairness agent.
// The local replay is returned even when the agent is unavailable.
func (e *Engine) VerifyDuel(ctx context.Context, playerID, duelID string) (Verification, error) {
	_, record, err := e.duel(playerID, duelID)
	if err != nil {
		return Verification{}, err
	}
	v := Verification{DuelID: duelID, Replayed: true}
	if err := e.resolver.Verify(record); err != nil {
		v.Replayed = false
		v.ReplayError = err.Error()
	}
	if e.dispatcher == nil {
		return v, errors.Wrap(agent.ErrAgentUnavailable, "no agent endpoint configured")
	}
	payload, err := e.call(ctx, e.dispatcher.IDs().Fairness, agent.FairnessPrompt(record))
	if err != nil {
		return v, err
	}
	report, err := agent.Decode[agent.FairnessReport](payload)
	if err != nil {
		return v, errors.Wrap(agent.ErrAgentUnavailable, err.Error())
	}
	v.Report = &report
	return v, nil
}

// Insight asks for a shareable summary of a settled duel
func (e *Engine) Insight(ctx context.Context, playerID, duelID string) (agent.MatchInsight, error) {
	p, record, err := e.duel(playerID, duelID)
	if err != nil {
		return agent.MatchInsight{}, err
	}
	if e.dispatcher == nil {
		return agent.MatchInsight{}, errors.Wrap(agent.ErrAgentUnavailable, "no agent endpoint configured")
	}
	prompt := agent.InsightPrompt(playerID, record, p.Ledger.Stats().Streak)
	payload, err := e.call(ctx, e.dispatcher.IDs().Insight, prompt)
	if err != nil {
		return agent.MatchInsight{}, err
	}
	insight, err := agent.Decode[agent.MatchInsight](payload)
	if err != nil {
		return agent.MatchInsight{}, errors.Wrap(agent.ErrAgentUnavailable, err.Error())
	}
	return insight, nil
}
