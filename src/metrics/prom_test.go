package metrics

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestRecordSettlement(t *testing.T) {
	before := testutil.ToFloat64(duelSettledCounter.WithLabelValues("win"))
	RecordSettlement("win", decimal.NewFromInt(2), decimal.RequireFromString("3.8"))
	if got := testutil.ToFloat64(duelSettledCounter.WithLabelValues("win")) - before; got != 1 {
		t.Fatalf("expected win counter to advance by 1, got %f", got)
	}
}

func TestRecordPoolTier(t *testing.T) {
	RecordPoolTier(decimal.RequireFromString("0.5"), 7, 21)
	if got := testutil.ToFloat64(poolQueueGauge.WithLabelValues("0.5")); got != 7 {
		t.Fatalf("expected queue gauge 7, got %f", got)
	}
	if got := testutil.ToFloat64(poolActiveGauge.WithLabelValues("0.5")); got != 21 {
		t.Fatalf("expected active gauge 21, got %f", got)
	}
}

func TestRecordAgentCall(t *testing.T) {
	before := testutil.ToFloat64(agentCallCounter.WithLabelValues("insight", "error"))
	RecordAgentCall("insight", errors.New("timeout"))
	if got := testutil.ToFloat64(agentCallCounter.WithLabelValues("insight", "error")) - before; got != 1 {
		t.Fatalf("expected error counter to advance by 1, got %f", got)
	}
}
