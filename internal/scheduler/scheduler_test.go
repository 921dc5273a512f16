package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner runs until cancelled.
type blockingRunner struct {
	id      string
	started chan string
	stopped chan string
}

func (r *blockingRunner) Run(ctx context.Context) error {
	r.started <- r.id
	<-ctx.Done()
	r.stopped <- r.id
	return ctx.Err()
}

type harness struct {
	store   *store.Store
	sched   *Scheduler
	started chan string
	stopped chan string
	gauge   *gauge
}

type gauge struct {
	mu sync.Mutex
	n  int
}

func (g *gauge) SetActiveJobs(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = n
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   store.Load(filepath.Join(t.TempDir(), "jobs.json"), logger.NewNop()),
		started: make(chan string, 16),
		stopped: make(chan string, 16),
		gauge:   &gauge{},
	}
	h.sched = New(h.store, job.DefaultCatalogue(), func(owner string, j job.Job) Runnable {
		return &blockingRunner{id: j.ID, started: h.started, stopped: h.stopped}
	}, logger.NewNop(), h.gauge)
	return h
}

func validJob(t *testing.T, slot string) job.Job {
	t.Helper()
	j, err := job.New(job.DefaultCatalogue(), "WOODLANDS CIQ", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), slot, 2)
	require.NoError(t, err)
	return j
}

func receive(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runner")
		return ""
	}
}

func TestStart_ResumesOnlyActiveJobs(t *testing.T) {
	h := newHarness(t)
	a, err := h.store.Append("1", validJob(t, "08:30"))
	require.NoError(t, err)
	_, err = h.store.Append("2", validJob(t, "09:45"))
	require.NoError(t, err)
	_, err = h.store.MarkAllCompleted("2")
	require.NoError(t, err)

	n := h.sched.Start(context.Background())
	defer h.sched.Stop()

	assert.Equal(t, 1, n)
	assert.Equal(t, a.ID, receive(t, h.started))
	assert.Equal(t, 1, h.sched.Running())
}

func TestCreateJob_SpawnsImmediately(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	defer h.sched.Stop()

	stored, err := h.sched.CreateJob(context.Background(), "42", validJob(t, "08:30"))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, stored.ID, receive(t, h.started))
	assert.Len(t, h.sched.ListActive("42"), 1)
}

func TestCreateJob_Validates(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	defer h.sched.Stop()

	j := validJob(t, "08:30")
	j.Passengers = 9
	_, err := h.sched.CreateJob(context.Background(), "42", j)
	var verr *job.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, h.store.ListActive("42"))
}

func TestCreateJob_BeforeStart(t *testing.T) {
	h := newHarness(t)
	_, err := h.sched.CreateJob(context.Background(), "42", validJob(t, "08:30"))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestStopAll_CancelsOwnerRunners(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	defer h.sched.Stop()

	mine, err := h.sched.CreateJob(context.Background(), "42", validJob(t, "08:30"))
	require.NoError(t, err)
	_, err = h.sched.CreateJob(context.Background(), "7", validJob(t, "09:45"))
	require.NoError(t, err)
	receive(t, h.started)
	receive(t, h.started)

	n, err := h.sched.StopAll("42")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, mine.ID, receive(t, h.stopped))
	assert.Empty(t, h.sched.ListActive("42"))
	assert.Len(t, h.sched.ListActive("7"), 1)

	// A stopped job is not resumed on the next start.
	h2 := New(h.store, nil, func(owner string, j job.Job) Runnable {
		return &blockingRunner{id: j.ID, started: h.started, stopped: h.stopped}
	}, logger.NewNop(), nil)
	assert.Equal(t, 1, h2.Start(context.Background()))
	h2.Stop()
}

func TestStopAll_UnknownOwner(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	defer h.sched.Stop()

	_, err := h.sched.StopAll("nobody")
	assert.ErrorIs(t, err, store.ErrOwnerNotFound)
}

func TestRemoveActive_CancelsRunner(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())
	defer h.sched.Stop()

	var ids []string
	for _, slot := range []string{"08:30", "09:45", "11:00"} {
		j, err := h.sched.CreateJob(context.Background(), "42", validJob(t, slot))
		require.NoError(t, err)
		receive(t, h.started)
		ids = append(ids, j.ID)
	}

	removed, err := h.sched.RemoveActive("42", 2)
	require.NoError(t, err)
	assert.Equal(t, ids[1], removed.ID)
	assert.Equal(t, ids[1], receive(t, h.stopped))

	active := h.sched.ListActive("42")
	require.Len(t, active, 2)
	assert.Equal(t, ids[0], active[0].ID)
	assert.Equal(t, ids[2], active[1].ID)
}

func TestStop_WaitsForRunners(t *testing.T) {
	h := newHarness(t)
	h.sched.Start(context.Background())

	_, err := h.sched.CreateJob(context.Background(), "42", validJob(t, "08:30"))
	require.NoError(t, err)
	receive(t, h.started)

	h.sched.Stop()
	assert.Equal(t, 0, h.sched.Running())
	assert.Len(t, h.stopped, 1)

	h.gauge.mu.Lock()
	defer h.gauge.mu.Unlock()
	assert.Equal(t, 0, h.gauge.n)
}

type doneRunner struct{}

func (doneRunner) Run(context.Context) error { return nil }

func TestRunnerFinishingOnItsOwnIsForgotten(t *testing.T) {
	s := store.Load(filepath.Join(t.TempDir(), "jobs.json"), logger.NewNop())
	sched := New(s, nil, func(string, job.Job) Runnable { return doneRunner{} }, logger.NewNop(), nil)
	sched.Start(context.Background())

	_, err := sched.CreateJob(context.Background(), "42", validJob(t, "08:30"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sched.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
	sched.Stop()
}
