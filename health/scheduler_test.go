package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_InvalidSpec(t *testing.T) {
	f := setup(t, WithPool(newPool(t)))
	_, err := NewScheduler(f.checker, "every tuesday", time.Second, nil)
	assert.ErrorContains(t, err, "invalid health check schedule")

	_, err = NewScheduler(nil, "* * * * *", time.Second, nil)
	assert.ErrorIs(t, err, ErrCheckerRequired)
}

func TestScheduler_RunChecksAsAdmin(t *testing.T) {
	f := setup(t, WithPool(newPool(t)), WithLightCheck(TypeCheck("hg")))
	f.add(t, heartOfGold())
	s, err := NewScheduler(f.checker, "*/5 * * * *", time.Hour, nil)
	require.NoError(t, err)

	// No subject in the context: the run elevates itself.
	s.Run(context.Background())

	runs, last := s.Runs()
	assert.Equal(t, 1, runs)
	assert.False(t, last.IsZero())
	require.Len(t, f.events.all(), 1)
	assert.Len(t, f.events.all()[0].CurrentFailures, 1)

	s.Start()
	s.Stop()
}
