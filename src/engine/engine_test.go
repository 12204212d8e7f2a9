package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/onemorebsmith/coinduel/src/agent"
	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/schedule"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var logger *zap.Logger

func TestMain(m *testing.M) {
	logger = common.ConfigureZap(zap.WarnLevel)
	m.Run()
}

var fastTimings = session.Timings{
	Search:       time.Second,
	DiscoveryMin: 5 * time.Second,
	DiscoveryMax: 5 * time.Second,
	Resolve:      time.Second,
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *schedule.Manual) {
	t.Helper()
	resolver, err := duel.NewResolver(duel.DefaultPlatformFee)
	if err != nil {
		t.Fatal(err)
	}
	clock := schedule.NewManual()
	base := []Option{
		WithScheduler(clock),
		WithTimings(fastTimings),
		WithInitialBalance(decimal.NewFromInt(10)),
		WithSeed(12345678),
		WithLogger(logger),
	}
	return New(poolsim.NewSimulator(model.DefaultWagerTiers, 1), resolver, append(base, opts...)...), clock
}

func TestConnectIsSingleSession(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	p, err := e.Connect(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Session.State().Phase() != session.PhaseWagerSelect {
		t.Fatalf("expected a fresh session in wager select, got %s", p.Session.State().Phase())
	}
	again, err := e.Connect(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if again != p {
		t.Fatal("reconnecting a live player should return the existing session")
	}
	if e.Players() != 1 {
		t.Fatalf("expected 1 player, got %d", e.Players())
	}
	if _, err := e.Connect(ctx, ""); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected empty id to be rejected, got %v", err)
	}
}

func TestDepositWithdraw(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	if _, err := e.Connect(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Deposit(ctx, "bob", "2.5"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Withdraw(ctx, "bob", "1"); err != nil {
		t.Fatal(err)
	}
	p, _ := e.Player("bob")
	if !p.Ledger.Balance().Equal(decimal.RequireFromString("11.5")) {
		t.Fatalf("expected 11.5, got %s", p.Ledger.Balance())
	}

	for _, raw := range []string{"abc", "0", "-3", ""} {
		if _, err := e.Deposit(ctx, "bob", raw); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("deposit %q: expected ErrInvalidAmount, got %v", raw, err)
		}
	}
	if _, err := e.Withdraw(ctx, "bob", "100"); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := e.Deposit(ctx, "nobody", "1"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestSelectWagerErrors(t *testing.T) {
	e, _ := newEngine(t)
	if _, err := e.Connect(context.Background(), "carol"); err != nil {
		t.Fatal(err)
	}
	if err := e.SelectWager("carol", "lots"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := e.SelectWager("carol", "0.0000000001"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for over-precise wager, got %v", err)
	}
	if err := e.SelectWager("carol", "0"); !errors.Is(err, session.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := e.SelectWager("carol", "11"); !errors.Is(err, session.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := e.SelectWager("carol", "10"); err != nil {
		t.Fatal(err)
	}
}

func TestDuelPersistsAcrossReconnect(t *testing.T) {
	store := NewMemoryStore()
	var phases []session.Phase
	e, clock := newEngine(t,
		WithJournalStore(store),
		WithSnapshotStore(store),
		WithListener(func(ev session.Event) { phases = append(phases, ev.To) }),
	)
	ctx := context.Background()
	p, err := e.Connect(ctx, "dave")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SelectWager("dave", "2"); err != nil {
		t.Fatal(err)
	}
	if err := p.Session.ChooseSide(model.SideA); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	result, ok := p.Session.State().(session.Result)
	if !ok {
		t.Fatalf("expected result, got %s", p.Session.State().Phase())
	}
	balance := p.Ledger.Balance()

	snap, found, _ := store.LoadSession(ctx, "dave")
	if !found || snap.Phase != session.PhaseResult {
		t.Fatalf("expected result snapshot, got %+v", snap)
	}

	// simulate a crash: a second engine over the same store resumes the player
	other, _ := newEngine(t, WithJournalStore(store), WithSnapshotStore(store))
	resumed, err := other.Connect(ctx, "dave")
	if err != nil {
		t.Fatal(err)
	}
	if !resumed.Ledger.Balance().Equal(balance) {
		t.Fatalf("resumed balance %s, expected %s", resumed.Ledger.Balance(), balance)
	}
	if !resumed.Ledger.IsSettled(result.Record.DuelID) {
		t.Fatal("resumed ledger lost the duel")
	}
	if resumed.Session.State().Phase() != session.PhaseResult {
		t.Fatalf("expected resumed result phase, got %s", resumed.Session.State().Phase())
	}

	if err := e.Disconnect(ctx, "dave"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.LoadSession(ctx, "dave"); found {
		t.Fatal("disconnect should drop the session snapshot")
	}
	if _, err := e.Player("dave"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound after disconnect, got %v", err)
	}
	if err := e.Disconnect(ctx, "dave"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected second disconnect to fail, got %v", err)
	}

	expected := []session.Phase{
		session.PhaseWagerSelect, session.PhaseSidePick, session.PhaseMatchmaking,
		session.PhaseWaiting, session.PhaseInDuel, session.PhaseResult, session.PhaseIdle,
	}
	if d := cmp.Diff(expected, phases); d != "" {
		t.Fatalf("unexpected transitions: %s", d)
	}
}

func TestResumeRewindsTimedPhase(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newEngine(t, WithJournalStore(store), WithSnapshotStore(store))
	ctx := context.Background()
	p, err := e.Connect(ctx, "erin")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SelectWager("erin", "1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Session.ChooseSide(model.SideB); err != nil {
		t.Fatal(err)
	}

	other, _ := newEngine(t, WithJournalStore(store), WithSnapshotStore(store))
	resumed, err := other.Connect(ctx, "erin")
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Session.State().Phase() != session.PhaseWagerSelect {
		t.Fatalf("matchmaking should resume as wager select, got %s", resumed.Session.State().Phase())
	}
}

func TestSampleData(t *testing.T) {
	e, _ := newEngine(t, WithSampleData(true), WithInitialBalance(decimal.Zero))
	p, err := e.Connect(context.Background(), "frank")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Ledger.Balance().Equal(decimal.RequireFromString("12.8")) {
		t.Fatalf("expected sample balance 12.8, got %s", p.Ledger.Balance())
	}
	stats := p.Ledger.Stats()
	if stats.Wins != 5 || stats.Losses != 3 {
		t.Fatalf("expected 5 wins and 3 losses, got %+v", stats)
	}
	if d := p.Ledger.Verify(); d != nil {
		t.Fatal(d)
	}
	for d := range p.Ledger.Duels(ledger.FilterAll) {
		if err := e.Resolver().Verify(d); err != nil {
			t.Fatalf("sample duel %s does not verify: %s", d.DuelID, err)
		}
	}
}

func TestAgentsUnavailableWithoutEndpoint(t *testing.T) {
	e, _ := newEngine(t, WithSampleData(true))
	ctx := context.Background()
	p, err := e.Connect(ctx, "gina")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AskWallet(ctx, "gina", "balance?"); !errors.Is(err, agent.ErrAgentUnavailable) {
		t.Fatalf("expected ErrAgentUnavailable, got %v", err)
	}
	var duelID string
	for d := range p.Ledger.Duels(ledger.FilterAll) {
		duelID = d.DuelID
		break
	}
	v, err := e.VerifyDuel(ctx, "gina", duelID)
	if !errors.Is(err, agent.ErrAgentUnavailable) {
		t.Fatalf("expected ErrAgentUnavailable, got %v", err)
	}
	if !v.Replayed {
		t.Fatalf("local replay should still succeed: %s", v.ReplayError)
	}
	if _, err := e.Insight(ctx, "gina", "DUEL-MISSING"); !errors.Is(err, ErrDuelNotFound) {
		t.Fatalf("expected ErrDuelNotFound, got %v", err)
	}
}

func TestInsightThroughAgent(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		prompt = buf.String()
		w.Write([]byte(`{"success":true,"response":{"result":{"summary":"clean win","share_text":"gg"}}}`))
	}))
	defer srv.Close()

	dispatcher := agent.NewDispatcher(agent.NewHTTPCollaborator(srv.URL, time.Second, logger), agent.DefaultAgentIDs, time.Second, logger)
	e, _ := newEngine(t, WithSampleData(true), WithDispatcher(dispatcher))
	ctx := context.Background()
	p, err := e.Connect(ctx, "hank")
	if err != nil {
		t.Fatal(err)
	}
	var duelID string
	for d := range p.Ledger.Duels(ledger.FilterWins) {
		duelID = d.DuelID
		break
	}
	insight, err := e.Insight(ctx, "hank", duelID)
	if err != nil {
		t.Fatal(err)
	}
	if insight.Summary != "clean win" || insight.ShareText != "gg" {
		t.Fatalf("unexpected insight %+v", insight)
	}
	if !strings.Contains(prompt, "Generate insight for duel "+duelID) {
		t.Fatalf("prompt did not name the duel: %s", prompt)
	}
	if !strings.Contains(prompt, agent.DefaultInsightAgent) {
		t.Fatalf("request did not target the insight agent: %s", prompt)
	}
}

func TestMalformedAgentReplyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"response":{"result":{"advice":42,"summary":["not","text"]}}}`))
	}))
	defer srv.Close()

	dispatcher := agent.NewDispatcher(agent.NewHTTPCollaborator(srv.URL, time.Second, logger), agent.DefaultAgentIDs, time.Second, logger)
	e, _ := newEngine(t, WithSampleData(true), WithDispatcher(dispatcher))
	ctx := context.Background()
	p, err := e.Connect(ctx, "ivy")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.AskWallet(ctx, "ivy", "balance?"); !errors.Is(err, agent.ErrAgentUnavailable) {
		t.Fatalf("expected ErrAgentUnavailable for a malformed wallet reply, got %v", err)
	}
	var duelID string
	for d := range p.Ledger.Duels(ledger.FilterAll) {
		duelID = d.DuelID
		break
	}
	if _, err := e.Insight(ctx, "ivy", duelID); !errors.Is(err, agent.ErrAgentUnavailable) {
		t.Fatalf("expected ErrAgentUnavailable for a malformed insight reply, got %v", err)
	}
}

func TestLedgerSurvivesReconnect(t *testing.T) {
	// the server's wiring without postgres or redis, and an engine with no stores at all
	shared := NewMemoryStore()
	wirings := map[string][]Option{
		"shared memory store": {WithJournalStore(shared), WithSnapshotStore(shared), WithSampleData(true)},
		"default journal":     {WithSampleData(true)},
	}
	for name, opts := range wirings {
		t.Run(name, func(t *testing.T) {
			e, _ := newEngine(t, opts...)
			ctx := context.Background()
			p, err := e.Connect(ctx, "frank")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := e.Deposit(ctx, "frank", "100"); err != nil {
				t.Fatal(err)
			}
			balance := p.Ledger.Balance()
			history := len(p.Ledger.Snapshot(0).Transactions)

			if err := e.Disconnect(ctx, "frank"); err != nil {
				t.Fatal(err)
			}
			again, err := e.Connect(ctx, "frank")
			if err != nil {
				t.Fatal(err)
			}
			if again.Ledger == p.Ledger {
				t.Fatal("expected a fresh ledger replayed from the journal")
			}
			if !again.Ledger.Balance().Equal(balance) {
				t.Fatalf("reconnect changed the balance from %s to %s", balance, again.Ledger.Balance())
			}
			if n := len(again.Ledger.Snapshot(0).Transactions); n != history {
				t.Fatalf("reconnect changed the history from %d to %d entries", history, n)
			}
		})
	}
}

func TestStaleEventKeepsNewerSnapshot(t *testing.T) {
	store := NewMemoryStore()
	e, _ := newEngine(t, WithSnapshotStore(store))
	ctx := context.Background()
	p, err := e.Connect(ctx, "gina")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SelectWager("gina", "2"); err != nil {
		t.Fatal(err)
	}

	// the connect event delivered late
	e.onEvent(p.snaps, session.Event{PlayerID: "gina", To: session.PhaseWagerSelect, State: session.WagerSelect{}, Seq: 1})
	snap, found, _ := store.LoadSession(ctx, "gina")
	if !found || snap.Phase != session.PhaseSidePick {
		t.Fatalf("expected the side pick snapshot to stand, got %+v", snap)
	}

	if err := e.Disconnect(ctx, "gina"); err != nil {
		t.Fatal(err)
	}
	e.onEvent(p.snaps, session.Event{PlayerID: "gina", To: session.PhaseWagerSelect, State: session.WagerSelect{}, Seq: 99})
	if _, found, _ := store.LoadSession(ctx, "gina"); found {
		t.Fatal("an event after disconnect brought the snapshot back")
	}
}

// gatedStore holds the first Result snapshot save until release is closed
type gatedStore struct {
	*MemoryStore
	once    chan struct{}
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) SaveSession(ctx context.Context, playerID string, snap session.Snapshot) error {
	if snap.Phase == session.PhaseResult {
		select {
		case <-g.once:
			close(g.entered)
			<-g.release
		default:
		}
	}
	return g.MemoryStore.SaveSession(ctx, playerID, snap)
}

func TestDisconnectWhileResultSaves(t *testing.T) {
	store := &gatedStore{
		MemoryStore: NewMemoryStore(),
		once:        make(chan struct{}, 1),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	store.once <- struct{}{}
	e, clock := newEngine(t, WithSnapshotStore(store))
	ctx := context.Background()
	p, err := e.Connect(ctx, "hank")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SelectWager("hank", "1"); err != nil {
		t.Fatal(err)
	}
	if err := p.Session.ChooseSide(model.SideB); err != nil {
		t.Fatal(err)
	}

	fired := make(chan struct{})
	go func() {
		clock.Advance(time.Minute)
		close(fired)
	}()
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("result snapshot never saved")
	}

	left := make(chan error, 1)
	go func() { left <- e.Disconnect(ctx, "hank") }()
	close(store.release)
	<-fired
	if err := <-left; err != nil {
		t.Fatal(err)
	}

	if _, found, _ := store.LoadSession(ctx, "hank"); found {
		t.Fatal("the result snapshot outlived the disconnect")
	}
	if n := len(p.Ledger.Snapshot(0).Duels); n != 1 {
		t.Fatalf("expected the duel to settle, got %d", n)
	}
}
