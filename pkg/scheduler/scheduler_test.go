package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerSchedulerRunsAndStops(t *testing.T) {
	var ticks atomic.Int32

	stop := TickerScheduler{}.Every(5*time.Millisecond, func() {
		ticks.Add(1)
	})

	require.Eventually(t, func() bool {
		return ticks.Load() >= 2
	}, time.Second, time.Millisecond)

	stop()
	settled := ticks.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load(), "no ticks after stop")
}

func TestTickerSchedulerStopIsIdempotent(t *testing.T) {
	stop := TickerScheduler{}.Every(time.Hour, func() {})

	assert.NotPanics(t, func() {
		stop()
		stop()
	})
}
