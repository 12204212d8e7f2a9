package agent

import (
	"context"
	"time"

	"github.com/onemorebsmith/coinduel/src/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Reply is the outcome of one asynchronous agent call
type Reply struct {
	AgentID string
	Payload Payload
	Err     error
}

// AgentIDs names the agent behind each helper
type AgentIDs struct {
	Wallet   string `yaml:"wallet_agent"`
	Fairness string `yaml:"fairness_agent"`
	Insight  string `yaml:"insight_agent"`
}

var DefaultAgentIDs = AgentIDs{
	Wallet:   DefaultWalletAgent,
	Fairness: DefaultFairnessAgent,
	Insight:  DefaultInsightAgent,
}

// Dispatcher runs agent calls off the caller's goroutine. Results only ever
// flow back through the returned channel.
type Dispatcher struct {
	collab  Collaborator
	timeout time.Duration
	ids     AgentIDs
	logger  *zap.Logger
}

func NewDispatcher(collab Collaborator, ids AgentIDs, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ids.Wallet == "" {
		ids.Wallet = DefaultWalletAgent
	}
	if ids.Fairness == "" {
		ids.Fairness = DefaultFairnessAgent
	}
	if ids.Insight == "" {
		ids.Insight = DefaultInsightAgent
	}
	return &Dispatcher{collab: collab, timeout: timeout, ids: ids, logger: logger.With(zap.String("component", "dispatcher"))}
}

func (d *Dispatcher) IDs() AgentIDs {
	return d.ids
}

// Dispatch starts the call and returns a channel that receives exactly one
// reply. Cancelling ctx or hitting the timeout yields ErrAgentUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID, message string) <-chan Reply {
	out := make(chan Reply, 1)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		payload, err := d.collab.Call(ctx, agentID, message)
		if err != nil {
			err = wrapUnavailable(err)
			d.logger.Warn("agent call failed", zap.String("agent", agentID), zap.Error(err))
		}
		metrics.RecordAgentCall(agentID, err)
		out <- Reply{AgentID: agentID, Payload: payload, Err: err}
	}()
	return out
}

// Await blocks for the reply or the caller giving up
func Await(ctx context.Context, replies <-chan Reply) Reply {
	select {
	case r := <-replies:
		return r
	case <-ctx.Done():
		return Reply{Err: wrapUnavailable(ctx.Err())}
	}
}

func wrapUnavailable(err error) error {
	if errors.Is(err, ErrAgentUnavailable) {
		return err
	}
	return errors.Wrap(ErrAgentUnavailable, err.Error())
}
