package daemon

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/metrics"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	ticks   int32
	stopped int32
}

func (r *countingRunner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&r.stopped, 1)
			return
		case <-ticker.C:
			atomic.AddInt32(&r.ticks, 1)
		}
	}
}

// orderedDrainer records what had already stopped when it was closed.
type orderedDrainer struct {
	sequencer *Sequencer
	runner    *countingRunner

	closed           int32
	sequencerStopped bool
	runnerStopped    bool
}

func (d *orderedDrainer) Close() {
	atomic.AddInt32(&d.closed, 1)
	d.sequencerStopped = d.sequencer.Submit(context.Background(), func(context.Context) error { return nil }) != nil
	d.runnerStopped = atomic.LoadInt32(&d.runner.stopped) == 1
}

func TestDaemonStopsOnContextDone(t *testing.T) {
	sequencer := NewSequencer(&recordingCommitter{}, metrics.New(), 4)
	runner := &countingRunner{}
	events := &orderedDrainer{sequencer: sequencer, runner: runner}

	d := NewDaemon(sequencer, events, http.NotFoundHandler(), "0", time.Millisecond, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Execute(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runner.ticks) > 0 }, time.Second, time.Millisecond)
	require.NoError(t, sequencer.Submit(context.Background(), func(context.Context) error { return nil }))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&runner.stopped))
	require.Equal(t, int32(1), atomic.LoadInt32(&events.closed))
	require.True(t, events.sequencerStopped, "events drain after the sequencer stops")
	require.False(t, events.runnerStopped, "events drain before runners flush")
	require.ErrorIs(t, sequencer.Submit(context.Background(), func(context.Context) error { return nil }), ErrSequencerStopped)
}

func TestDaemonReturnsListenError(t *testing.T) {
	sequencer := NewSequencer(&recordingCommitter{}, metrics.New(), 1)
	d := NewDaemon(sequencer, &orderedDrainer{sequencer: sequencer, runner: &countingRunner{}}, http.NotFoundHandler(), "not-a-port", time.Second)

	require.Error(t, d.Execute(context.Background()))
}
