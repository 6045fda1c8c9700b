package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilRegistererIsNoop(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// Every recorder must tolerate a nil receiver.
	assert.NotPanics(t, func() {
		m.EventDelivered("repository", "CREATE", OutcomeOK)
		m.ExecutorPath("index", PathSynchronous)
		m.IndexUpdate("repository", "store", nil)
		m.Reindexed("repository", time.Second)
		m.HealthChecked("42", "light", 0)
		m.Forget("42")
	})
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.EventDelivered("repository", "CREATE", OutcomeOK)
	m.EventDelivered("repository", "CREATE", OutcomeOK)
	m.ExecutorPath("health", PathFallback)
	m.IndexUpdate("repository", "delete", errors.New("boom"))
	m.HealthChecked("42", "full", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsDelivered.WithLabelValues("repository", "CREATE", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executorPaths.WithLabelValues("health", PathFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.indexUpdates.WithLabelValues("repository", "delete", OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.unhealthyFailures.WithLabelValues("42")))

	m.Forget("42")
	assert.Equal(t, 0, testutil.CollectAndCount(m.unhealthyFailures))
}

func TestNew_RegisterTwiceOnSameRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
