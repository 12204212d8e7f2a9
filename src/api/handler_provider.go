package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/onemorebsmith/coinduel/src/engine"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

// HandlerProvider exposes the engine's player operations over HTTP
type HandlerProvider struct {
	eng    *engine.Engine
	logger *zap.Logger
}

func NewHandler(eng *engine.Engine, logger *zap.Logger) *HandlerProvider {
	return &HandlerProvider{eng: eng, logger: logger.With(zap.String("component", "api"))}
}

func (h *HandlerProvider) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *HandlerProvider) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// fail translates a domain error into its status code
func (h *HandlerProvider) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.writeError(w, status, msg)
}

func playerID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "playerId"))
	if id == "" {
		return "", errors.Wrap(engine.ErrPlayerNotFound, "missing playerId")
	}
	return id, nil
}

// decodeBody reads a bounded JSON body, rejecting unknown fields
func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return errors.New("invalid JSON")
	}
	return nil
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type sideRequest struct {
	Side string `json:"side"`
}

type questionRequest struct {
	Question string `json:"question"`
}

type sessionResponse struct {
	PlayerID string           `json:"playerId"`
	Balance  decimal.Decimal  `json:"balance"`
	Session  session.Snapshot `json:"session"`
}

type poolResponse struct {
	Tiers       []model.Tier `json:"tiers"`
	Online      int          `json:"online"`
	ActiveGames int          `json:"activeGames"`
}

func (h *HandlerProvider) sessionView(w http.ResponseWriter, p *engine.Player, status int) {
	h.writeJSON(w, status, sessionResponse{
		PlayerID: p.ID,
		Balance:  p.Ledger.Balance(),
		Session:  session.SnapshotOf(p.Session.State()),
	})
}

// withPlayer resolves the path's player before running fn
func (h *HandlerProvider) withPlayer(fn func(http.ResponseWriter, *http.Request, *engine.Player)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := playerID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		p, err := h.eng.Player(id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		fn(w, r, p)
	}
}

// ConnectHandler handles POST /players/{playerId}/connect
func (h *HandlerProvider) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.eng.Connect(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessionView(w, p, http.StatusOK)
}

// DisconnectHandler handles POST /players/{playerId}/disconnect
func (h *HandlerProvider) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.eng.Disconnect(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HandlerProvider) SessionHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	h.sessionView(w, p, http.StatusOK)
}

// WagerHandler handles POST /players/{playerId}/wager
func (h *HandlerProvider) WagerHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.eng.SelectWager(p.ID, req.Amount); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessionView(w, p, http.StatusOK)
}

// SideHandler handles POST /players/{playerId}/side
func (h *HandlerProvider) SideHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	var req sideRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side := model.Side(strings.ToUpper(strings.TrimSpace(req.Side)))
	if err := p.Session.ChooseSide(side); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessionView(w, p, http.StatusAccepted)
}

func (h *HandlerProvider) CancelHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	if err := p.Session.Cancel(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessionView(w, p, http.StatusOK)
}

func (h *HandlerProvider) PlayAgainHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	if err := p.Session.PlayAgain(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessionView(w, p, http.StatusOK)
}

func (h *HandlerProvider) DepositHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	h.transfer(w, r, p, h.eng.Deposit)
}

func (h *HandlerProvider) WithdrawHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	h.transfer(w, r, p, h.eng.Withdraw)
}

type transferFunc func(ctx context.Context, playerID, rawAmount string) (model.Transaction, error)

func (h *HandlerProvider) transfer(w http.ResponseWriter, r *http.Request, p *engine.Player, op transferFunc) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := op(r.Context(), p.ID, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"transaction": tx,
		"balance":     p.Ledger.Balance(),
	})
}

func (h *HandlerProvider) BalanceHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"playerId": p.ID,
		"balance":  p.Ledger.Balance(),
	})
}

// limitParam reads ?limit=, 0 meaning everything
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

// TransactionsHandler handles GET /players/{playerId}/transactions?limit=
func (h *HandlerProvider) TransactionsHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txs := []model.Transaction{}
	for tx := range p.Ledger.History() {
		if limit > 0 && len(txs) >= limit {
			break
		}
		txs = append(txs, tx)
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// DuelsHandler handles GET /players/{playerId}/duels?filter=all|wins|losses
func (h *HandlerProvider) DuelsHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	filter, err := ledger.ParseDuelFilter(r.URL.Query().Get("filter"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	duels := []model.DuelRecord{}
	for d := range p.Ledger.Duels(filter) {
		if limit > 0 && len(duels) >= limit {
			break
		}
		duels = append(duels, d)
	}
	h.writeJSON(w, http.StatusOK, duels)
}

func (h *HandlerProvider) StatsHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	h.writeJSON(w, http.StatusOK, p.Ledger.Stats())
}

// AssistantHandler handles POST /players/{playerId}/assistant
func (h *HandlerProvider) AssistantHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	var req questionRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.writeError(w, http.StatusBadRequest, "question required")
		return
	}
	advice, err := h.eng.AskWallet(r.Context(), p.ID, req.Question)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, advice)
}

// VerifyHandler handles POST /players/{playerId}/duels/{duelId}/verify. The
// local replay is returned with the agent's report, or alone with a notice
// when the agent is down.
func (h *HandlerProvider) VerifyHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	v, err := h.eng.VerifyDuel(r.Context(), p.ID, chi.URLParam(r, "duelId"))
	if err != nil {
		if v.DuelID == "" {
			h.fail(w, r, err)
			return
		}
		status, msg := statusFor(err)
		h.writeJSON(w, status, map[string]any{"verification": v, "error": msg})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"verification": v})
}

// InsightHandler handles POST /players/{playerId}/duels/{duelId}/insight
func (h *HandlerProvider) InsightHandler(w http.ResponseWriter, r *http.Request, p *engine.Player) {
	insight, err := h.eng.Insight(r.Context(), p.ID, chi.URLParam(r, "duelId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, insight)
}

// PoolHandler handles GET /pool, optionally narrowed with ?tier=
func (h *HandlerProvider) PoolHandler(w http.ResponseWriter, r *http.Request) {
	pool := h.eng.Pool()
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, err := decimal.NewFromString(raw)
		if err != nil {
			h.fail(w, r, errors.Wrapf(ledger.ErrInvalidAmount, "%q is not a tier", raw))
			return
		}
		stats, err := pool.StatsFor(tier)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, stats)
		return
	}
	tiers := slices.Clone(pool.Tiers())
	h.writeJSON(w, http.StatusOK, poolResponse{
		Tiers:       tiers,
		Online:      poolsim.TotalOnline(tiers),
		ActiveGames: poolsim.TotalActiveGames(tiers),
	})
}
