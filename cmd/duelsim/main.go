package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/onemorebsmith/coinduel/src/common"
	"github.com/onemorebsmith/coinduel/src/duel"
	"github.com/onemorebsmith/coinduel/src/engine"
	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/poolsim"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type simConfig struct {
	players int
	rounds  int
	wager   string
	seed    int64
	sample  bool
	tick    time.Duration
}

// duelsim drives a handful of bot players through real timers and prints how
// their ledgers ended up
func main() {
	cfg := simConfig{}
	flag.IntVar(&cfg.players, "players", 3, "number of bot players")
	flag.IntVar(&cfg.rounds, "rounds", 5, "duels per player")
	flag.StringVar(&cfg.wager, "wager", "1", "wager per duel")
	flag.Int64Var(&cfg.seed, "seed", 0, "seed for bot choices, 0 draws one")
	flag.BoolVar(&cfg.sample, "sample", false, "start players with the demo history")
	flag.DurationVar(&cfg.tick, "tick", 50*time.Millisecond, "base delay of the duel timers")
	flag.Parse()

	pterm.DefaultHeader.WithFullWidth().Println("coin duel simulator")
	if err := run(cfg); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

func run(cfg simConfig) error {
	wager, err := decimal.NewFromString(cfg.wager)
	if err != nil || !wager.IsPositive() {
		return errors.Errorf("bad wager %q", cfg.wager)
	}
	if cfg.seed == 0 {
		if cfg.seed, err = common.NewSeed(); err != nil {
			return err
		}
	}
	pterm.Info.Printfln("players: %d, rounds: %d, wager: %s SOL, seed: %d", cfg.players, cfg.rounds, wager, cfg.seed)

	logger := common.ConfigureZap(zap.ErrorLevel)
	resolver, err := duel.NewResolver(duel.DefaultPlatformFee, duel.WithLogger(logger))
	if err != nil {
		return err
	}

	ids := make([]string, cfg.players)
	inbox := make(map[string]chan session.Event, cfg.players)
	rng := rand.New(rand.NewSource(cfg.seed))
	for i := range ids {
		ids[i] = duel.NewOpponentID(rng)
		inbox[ids[i]] = make(chan session.Event, 8)
	}

	store := engine.NewMemoryStore()
	eng := engine.New(poolsim.NewSimulator(model.DefaultWagerTiers, cfg.seed), resolver,
		engine.WithLogger(logger),
		engine.WithSeed(cfg.seed),
		engine.WithJournalStore(store),
		engine.WithSnapshotStore(store),
		engine.WithSampleData(cfg.sample),
		engine.WithInitialBalance(wager.Mul(decimal.NewFromInt(int64(cfg.rounds)))),
		engine.WithTimings(session.Timings{
			Search:       cfg.tick,
			DiscoveryMin: 2 * cfg.tick,
			DiscoveryMax: 6 * cfg.tick,
			Resolve:      cfg.tick,
		}),
		engine.WithListener(func(ev session.Event) {
			if ev.To == session.PhaseResult || ev.Err != nil {
				inbox[ev.PlayerID] <- ev
			}
		}),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer eng.Shutdown(ctx)

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("running %d duels ...", cfg.players*cfg.rounds))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		choices := rand.New(rand.NewSource(cfg.seed + int64(i)))
		g.Go(func() error {
			return playBot(gctx, eng, id, wager, cfg.rounds, choices, inbox[id])
		})
	}
	if err := g.Wait(); err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("all duels settled")

	return report(eng, ids)
}

func playBot(ctx context.Context, eng *engine.Engine, id string, wager decimal.Decimal, rounds int, rng *rand.Rand, events <-chan session.Event) error {
	p, err := eng.Connect(ctx, id)
	if err != nil {
		return err
	}
	for round := 0; round < rounds; round++ {
		if p.Ledger.Balance().LessThan(wager) {
			if _, err := eng.Deposit(ctx, id, wager.String()); err != nil {
				return err
			}
		}
		if err := p.Session.SelectWager(wager); err != nil {
			return errors.Wrapf(err, "%s round %d", duel.Truncate(id), round)
		}
		side := model.SideA
		if rng.Intn(2) == 1 {
			side = model.SideB
		}
		if err := p.Session.ChooseSide(side); err != nil {
			return errors.Wrapf(err, "%s round %d", duel.Truncate(id), round)
		}
		select {
		case ev := <-events:
			if ev.Err != nil {
				return errors.Wrapf(ev.Err, "%s round %d", duel.Truncate(id), round)
			}
		case <-time.After(time.Minute):
			return errors.Errorf("%s round %d never resolved", duel.Truncate(id), round)
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := p.Session.PlayAgain(); err != nil {
			return err
		}
	}
	return nil
}

func report(eng *engine.Engine, ids []string) error {
	table := pterm.TableData{{"player", "balance", "wins", "losses", "win rate", "streak", "net"}}
	var panels []pterm.Panel
	for _, id := range ids {
		p, err := eng.Player(id)
		if err != nil {
			return err
		}
		if err := p.Ledger.Verify(); err != nil {
			return errors.Wrapf(err, "ledger for %s", duel.Truncate(id))
		}
		stats := p.Ledger.Stats()
		table = append(table, []string{
			duel.Truncate(id),
			p.Ledger.Balance().String(),
			fmt.Sprint(stats.Wins),
			fmt.Sprint(stats.Losses),
			fmt.Sprintf("%d%%", stats.WinRate),
			fmt.Sprint(stats.Streak),
			stats.Net.String(),
		})
		for last := range p.Ledger.Duels(ledger.FilterAll) {
			panels = append(panels, duelPanel(eng, id, last))
			break
		}
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		return err
	}
	if len(panels) > 0 {
		if err := pterm.DefaultPanel.WithPanels([][]pterm.Panel{panels}).Render(); err != nil {
			return err
		}
	}
	pool := eng.Pool()
	pterm.Info.Printfln("pool: %d online, %d active games", pool.TotalOnline(), pool.TotalActiveGames())
	return nil
}

func duelPanel(eng *engine.Engine, id string, d model.DuelRecord) pterm.Panel {
	box := pterm.DefaultBox.WithHorizontalPadding(2).WithTopPadding(1).WithBottomPadding(1)
	outcome := pterm.LightGreen("WIN")
	if !d.Won() {
		outcome = pterm.LightRed("LOSS")
	}
	fair := pterm.LightGreen("verified")
	if err := eng.Resolver().Verify(d); err != nil {
		fair = pterm.LightRed(err.Error())
	}
	body := pterm.Sprintfln("%s vs %s\n%s on %s, coin %s\nwager %s payout %s\ncommit %s...\n%s",
		duel.Truncate(id), duel.Truncate(d.OpponentID), outcome, d.ChosenSide, d.CoinFace,
		d.Wager, d.Payout, d.Commitment[:16], fair)
	return pterm.Panel{Data: box.WithTitle(pterm.LightYellow(d.DuelID)).WithTitleTopCenter().Sprint(body)}
}
