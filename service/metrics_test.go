package service

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"election-ledger/models"
)

func TestMetricsCollectorGroups(t *testing.T) {
	a := require.New(t)
	mc := NewMetricsCollector()

	mc.RecordTransaction(models.MethodAddShareholder, 2*time.Millisecond, nil)
	mc.RecordTransaction(models.MethodAddProposal, 3*time.Millisecond, errors.New("registration period over"))
	mc.RecordTransaction(models.MethodVote, 5*time.Millisecond, nil)
	mc.RecordTransaction(models.MethodDelegate, 5*time.Millisecond, nil)

	m := mc.GetMetrics()
	a.Equal(1, m.Registration.Count)
	a.Equal(1, m.Registration.Rejected)
	a.Equal(int64(5), m.Registration.ProcessingTime)
	a.Equal(2, m.Voting.Count)
	a.Zero(m.Voting.Rejected)
	a.False(m.Voting.StartTime.IsZero())

	text := scrape(t, mc)
	a.Contains(text, `election_transactions_total{method="vote",status="committed"} 1`)
	a.Contains(text, `election_transactions_total{method="addProposal",status="rejected"} 1`)

	mc.RecordTransaction("mint", time.Millisecond, errors.New("unknown method"))
	a.Contains(scrape(t, mc), `election_transactions_total{method="unknown",status="rejected"} 1`)
	a.Equal(2, mc.GetMetrics().Registration.Rejected)
}

func TestMetricsHandler(t *testing.T) {
	mc := NewMetricsCollector()
	mc.SetHeight(7)
	mc.ObservePhase(func() models.Phase { return models.PhaseVoting })
	mc.ObserveQueueDepth(func() int { return 3 })
	mc.RecordTransaction(models.MethodVote, time.Millisecond, nil)

	text := scrape(t, mc)
	for _, want := range []string{
		"election_ledger_height 7",
		"election_phase 1",
		"election_queue_depth 3",
		`election_transactions_total{method="vote",status="committed"} 1`,
		"election_transaction_duration_seconds_bucket",
	} {
		require.True(t, strings.Contains(text, want), "missing %q", want)
	}
}

func TestMetricsObserversCanBeReplaced(t *testing.T) {
	a := require.New(t)
	mc := NewMetricsCollector()
	a.Contains(scrape(t, mc), "election_phase 0")

	mc.ObservePhase(func() models.Phase { return models.PhaseVoting })
	mc.ObserveQueueDepth(func() int { return 1 })
	a.NotPanics(func() {
		mc.ObservePhase(func() models.Phase { return models.PhaseFinished })
		mc.ObserveQueueDepth(func() int { return 4 })
	})

	text := scrape(t, mc)
	a.Contains(text, "election_phase 2")
	a.Contains(text, "election_queue_depth 4")
}

func scrape(t *testing.T, mc *MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
