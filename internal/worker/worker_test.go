package worker

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simple-server/internal/jobqueue"
	"simple-server/internal/metrics"
)

func newTestWorker(t *testing.T, id int) (*Worker, *jobqueue.Queue, *instruments) {
	t.Helper()
	q := jobqueue.New()
	in := &instruments{metrics: metrics.New()}
	return newWorker(id, q, in), q, in
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Stopped", StateStopped.String())
	assert.Equal(t, "Unknown", State(9).String())
}

func TestWorkerRunsJobsUntilTerminate(t *testing.T) {
	w, q, in := newTestWorker(t, 3)
	assert.Equal(t, 3, w.ID())
	assert.Equal(t, StateRunning, w.State())

	ran := make(chan int, 3)
	for i := range 3 {
		require.NoError(t, q.Send(jobqueue.NewJob(func() { ran <- i })))
	}
	require.NoError(t, q.Send(jobqueue.Terminate()))

	w.Join()

	assert.Equal(t, StateStopped, w.State())
	assert.Len(t, ran, 3)
	assert.Equal(t, uint64(3), in.metrics.Completed())
	assert.Equal(t, int64(0), in.metrics.LiveWorkers())
}

func TestWorkerStopsOnClosedQueue(t *testing.T) {
	w, q, _ := newTestWorker(t, 0)

	q.Close()
	w.Join()

	assert.Equal(t, StateStopped, w.State())
}

func TestWorkerSurvivesPanic(t *testing.T) {
	w, q, in := newTestWorker(t, 0)

	after := make(chan struct{})
	require.NoError(t, q.Send(jobqueue.NewJob(func() { panic("boom") })))
	require.NoError(t, q.Send(jobqueue.NewJob(func() { close(after) })))

	select {
	case <-after:
	case <-time.After(time.Second):
		t.Fatal("worker did not run the job after a panic")
	}
	assert.Equal(t, StateRunning, w.State())

	require.NoError(t, q.Send(jobqueue.Terminate()))
	w.Join()

	assert.Equal(t, uint64(1), in.metrics.Panicked())
	assert.Equal(t, uint64(1), in.metrics.Completed())
}

func TestWorkerSurvivesGoexit(t *testing.T) {
	w, q, in := newTestWorker(t, 0)

	after := make(chan struct{})
	require.NoError(t, q.Send(jobqueue.NewJob(func() { runtime.Goexit() })))
	require.NoError(t, q.Send(jobqueue.NewJob(func() { close(after) })))

	select {
	case <-after:
	case <-time.After(time.Second):
		t.Fatal("worker did not run the job after runtime.Goexit")
	}
	assert.Equal(t, StateRunning, w.State())
	assert.Equal(t, int64(1), in.metrics.LiveWorkers())

	require.NoError(t, q.Send(jobqueue.Terminate()))
	w.Join()

	assert.Equal(t, StateStopped, w.State())
	assert.Equal(t, uint64(1), in.metrics.Exited())
	assert.Zero(t, in.metrics.Panicked())
	assert.Equal(t, int64(0), in.metrics.LiveWorkers())
}

func TestWorkerDoubleJoinPanics(t *testing.T) {
	w, q, _ := newTestWorker(t, 0)
	require.NoError(t, q.Send(jobqueue.Terminate()))

	w.Join()
	assert.Panics(t, w.Join, "second Join should panic")
}
