package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrAgentUnavailable = fmt.Errorf("agent unavailable")

const DefaultTimeout = 30 * time.Second

const (
	DefaultWalletAgent   = "699a77f6e2098a3529de82e3"
	DefaultFairnessAgent = "699a77f6c1653e1be7d96226"
	DefaultInsightAgent  = "699a77f6b0da46f6ada21c33"
)

// Payload is the free-form result object an agent returns
type Payload map[string]any

// Collaborator sends one prompt to one agent
type Collaborator interface {
	Call(ctx context.Context, agentID, message string) (Payload, error)
}

type callRequest struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

type callResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Response struct {
		Result json.RawMessage `json:"result"`
	} `json:"response"`
}

type HTTPCollaborator struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ Collaborator = (*HTTPCollaborator)(nil)

func NewHTTPCollaborator(url string, timeout time.Duration, logger *zap.Logger) *HTTPCollaborator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPCollaborator{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "agent")),
	}
}

// Call posts the prompt and decodes the agent's result. Every failure, from
// transport to a `success: false` body, comes back as ErrAgentUnavailable.
func (c *HTTPCollaborator) Call(ctx context.Context, agentID, message string) (Payload, error) {
	body, err := json.Marshal(callRequest{AgentID: agentID, Message: message})
	if err != nil {
		return nil, errors.Wrap(err, "failed encoding agent request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed building agent request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrAgentUnavailable, "agent %s: %s", agentID, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(ErrAgentUnavailable, "agent %s: failed reading body: %s", agentID, err)
	}
	if resp.StatusCode >= 300 {
		c.logger.Warn("agent returned non-2xx", zap.String("agent", agentID), zap.Int("status", resp.StatusCode))
		return nil, errors.Wrapf(ErrAgentUnavailable, "agent %s: status %d", agentID, resp.StatusCode)
	}

	var decoded callResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrapf(ErrAgentUnavailable, "agent %s: malformed response: %s", agentID, err)
	}
	if !decoded.Success {
		msg := decoded.Error
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, errors.Wrapf(ErrAgentUnavailable, "agent %s: %s", agentID, msg)
	}
	payload, err := decodeResult(decoded.Response.Result)
	if err != nil {
		return nil, errors.Wrapf(ErrAgentUnavailable, "agent %s: %s", agentID, err)
	}
	return payload, nil
}

// decodeResult accepts an object, or a string holding either an object or
// plain text
func decodeResult(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("empty result")
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err == nil {
		return payload, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, errors.Wrap(err, "result is neither an object nor a string")
	}
	if err := json.Unmarshal([]byte(text), &payload); err == nil {
		return payload, nil
	}
	return Payload{"text": text}, nil
}

// Decode copies a payload into a typed response, ignoring unknown fields
func Decode[T any](p Payload) (T, error) {
	var out T
	raw, err := json.Marshal(p)
	if err != nil {
		return out, errors.Wrap(err, "failed re-encoding payload")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.Wrap(err, "payload does not match response shape")
	}
	return out, nil
}
