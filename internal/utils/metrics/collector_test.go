package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordInstructionOutcomes(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	c.RecordInstruction(ctx, "buy_tokens", 10*time.Millisecond, nil, "")
	c.RecordInstruction(ctx, "buy_tokens", time.Millisecond, errors.New("boom"), "validation")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	c.RecordInstruction(cancelled, "airdrop", time.Millisecond, context.Canceled, "transient")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.instructions.WithLabelValues("buy_tokens", OutcomeSuccess, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.instructions.WithLabelValues("buy_tokens", OutcomeFailed, "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.instructions.WithLabelValues("airdrop", OutcomeCancelled, "transient")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.RecordCycle("paid")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.cycles.WithLabelValues("paid")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cycles.WithLabelValues("paid")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordCycle("paid")
		c.RecordSchedulerError("transient")
		c.ObserveCycleState(1, 2)
		c.RecordPublished("buy.executed", nil)
		c.RecordInstruction(context.Background(), "airdrop", 0, nil, "")
	})
}

func TestHandlerExposesGauges(t *testing.T) {
	c := NewCollector()
	c.ObserveCycleState(100_000_000_000, 1_700_000_100)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fossr_airdrop_pot_units 1e+11")
	assert.Contains(t, rec.Body.String(), "fossr_next_airdrop_timestamp_seconds 1.7000001e+09")

	c.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pot))
}
