package timerwheel

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPeriodicTimerFiresAtExactIntervals is spec.md §8 boundary scenario
// 5: a periodic timer with period 10 driven for 100 ticks fires exactly
// 10 times, at ticks 10, 20, ..., 100.
func TestPeriodicTimerFiresAtExactIntervals(t *testing.T) {
	w := NewWheel()
	defer w.Close()

	var fires int64
	var mu sync.Mutex
	var firedAtTick []uint64

	timer := w.NewTimer(10, 10, func(arg any) {
		mu.Lock()
		firedAtTick = append(firedAtTick, w.Tick())
		mu.Unlock()
		atomic.AddInt64(&fires, 1)
	}, nil)
	w.Start(timer)

	for i := 1; i <= 100; i++ {
		w.Advance()
		if i%10 == 0 {
			want := int64(i / 10)
			require.Eventually(t, func() bool {
				return atomic.LoadInt64(&fires) == want
			}, time.Second, time.Millisecond, "timer should have fired %d times by tick %d", want, i)
		}
	}

	assert.Equal(t, int64(10), atomic.LoadInt64(&fires))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, firedAtTick, 10)
	for i, tick := range firedAtTick {
		assert.Equal(t, uint64((i+1)*10), tick, "fire %d landed on the wrong tick", i)
	}
}

// TestOneShotTimerFiresOnceThenGoesInactive confirms a one-shot timer
// (period 0) fires exactly once and reports Inactive afterward, even
// when the wheel keeps advancing.
func TestOneShotTimerFiresOnceThenGoesInactive(t *testing.T) {
	w := NewWheel()
	defer w.Close()

	var fires int64
	timer := w.NewTimer(5, 0, func(arg any) {
		atomic.AddInt64(&fires, 1)
	}, nil)
	w.Start(timer)

	for i := 0; i < 20; i++ {
		w.Advance()
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fires) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, Inactive, timer.State())
}

// TestStopBeforeFireReportsNotRunning confirms Stop on a timer whose
// callback never started reports false.
func TestStopBeforeFireReportsNotRunning(t *testing.T) {
	w := NewWheel()
	defer w.Close()

	timer := w.NewTimer(1000, 0, func(arg any) {}, nil)
	w.Start(timer)

	wasRunning := w.Stop(timer)
	assert.False(t, wasRunning)
	assert.Equal(t, Inactive, timer.State())
}

// TestStopWaitsForInFlightCallback is the Open Question resolution from
// spec.md §9: a Stop racing an in-flight callback invocation blocks
// until that invocation completes, then reports true.
func TestStopWaitsForInFlightCallback(t *testing.T) {
	w := NewWheel()
	defer w.Close()

	callbackStarted := make(chan struct{})
	releaseCallback := make(chan struct{})
	timer := w.NewTimer(1, 0, func(arg any) {
		close(callbackStarted)
		<-releaseCallback
	}, nil)
	w.Start(timer)
	w.Advance()

	select {
	case <-callbackStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never started")
	}

	stopDone := make(chan bool, 1)
	go func() { stopDone <- w.Stop(timer) }()

	// Stop must block while the callback is still running.
	select {
	case <-stopDone:
		t.Fatal("Stop returned before the in-flight callback completed")
	case <-time.After(30 * time.Millisecond):
	}

	close(releaseCallback)

	select {
	case wasRunning := <-stopDone:
		assert.True(t, wasRunning, "Stop must report true when it caught a running callback")
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the callback finished")
	}
}
