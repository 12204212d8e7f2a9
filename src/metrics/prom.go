package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var duelSettledCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "duel_settled_total",
	Help: "Number of duels settled, by outcome",
}, []string{"outcome"})

var duelPayoutCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "duel_payout_total",
	Help: "Sum of payouts credited to players",
})

var duelWagerCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "duel_wager_total",
	Help: "Sum of wagers debited from players",
})

var sessionTransitionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "session_transition_total",
	Help: "Session phase transitions, by phase entered",
}, []string{"phase"})

var poolQueueGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pool_queue_count",
	Help: "Simulated players queued per wager tier",
}, []string{"tier"})

var poolActiveGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pool_active_games",
	Help: "Simulated games in progress per wager tier",
}, []string{"tier"})

var agentCallCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_call_total",
	Help: "Calls to external agents, by agent and status",
}, []string{"agent", "status"})

func RecordSettlement(outcome string, wager, payout decimal.Decimal) {
	duelSettledCounter.WithLabelValues(outcome).Inc()
	duelWagerCounter.Add(wager.InexactFloat64())
	if payout.IsPositive() {
		duelPayoutCounter.Add(payout.InexactFloat64())
	}
}

func RecordTransition(phase string) {
	sessionTransitionCounter.WithLabelValues(phase).Inc()
}

func RecordPoolTier(tier decimal.Decimal, queueCount, activeGames int) {
	poolQueueGauge.WithLabelValues(tier.String()).Set(float64(queueCount))
	poolActiveGauge.WithLabelValues(tier.String()).Set(float64(activeGames))
}

func RecordAgentCall(agent string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	agentCallCounter.WithLabelValues(agent, status).Inc()
}

func StartPromServer(logger *zap.Logger, port string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("hosting prom stats on " + port + "/metrics")
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("prom server stopped", zap.Error(err))
		}
	}()
}
