package api

import (
	"net/http"

	"github.com/onemorebsmith/coinduel/src/agent"
	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/engine"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/pkg/errors"
)

// agentDownMessage is what players see when an assistant cannot answer
const agentDownMessage = "the assistant is unavailable right now, please try again later"

type errorMapping struct {
	target error
	status int
	msg    string
}

var errorMappings = []errorMapping{
	{ledger.ErrInvalidAmount, http.StatusBadRequest, ""},
	{ledger.ErrInvalidKind, http.StatusBadRequest, ""},
	{duel.ErrInvalidSide, http.StatusBadRequest, ""},
	{session.ErrInsufficientBalance, http.StatusConflict, ""},
	{ledger.ErrInsufficientFunds, http.StatusConflict, ""},
	{session.ErrInvalidTransition, http.StatusConflict, ""},
	{engine.ErrPlayerNotFound, http.StatusNotFound, ""},
	{engine.ErrDuelNotFound, http.StatusNotFound, ""},
	{poolsim.ErrTierNotFound, http.StatusNotFound, ""},
	{agent.ErrAgentUnavailable, http.StatusServiceUnavailable, agentDownMessage},
}

// statusFor maps a domain error onto an HTTP status and the message returned
// to the caller. Unknown errors are a 500 with a generic message.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.msg != "" {
				return m.status, m.msg
			}
			return m.status, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}
