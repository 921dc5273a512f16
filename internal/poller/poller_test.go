package poller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/notify"
	"github.com/aatumaykin/shuttlewatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "42"

type fakeMetrics struct {
	mu            sync.Mutex
	outcomes      []string
	notifications []string
}

func (m *fakeMetrics) ObserveCycle(outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) CountNotification(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, kind)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ResultsTimeout = time.Millisecond
	cfg.InterstitialTimeout = time.Millisecond
	cfg.DismissDelay = 0
	cfg.RetryDelay = 0
	cfg.CycleInterval = 0
	return cfg
}

func setup(t *testing.T, passengers int) (*store.Store, job.Job) {
	t.Helper()
	s := store.Load(filepath.Join(t.TempDir(), "jobs.json"), logger.NewNop())
	j, err := s.Append(owner, job.Job{
		Origin: "WOODLANDS CIQ", Destination: "JB SENTRAL",
		Day: "05", Month: "MAR", Year: "2026", Time: "08:30", Passengers: passengers,
		ReturnDay: "05", ReturnMonth: "MAR", ReturnYear: "2026",
	})
	require.NoError(t, err)
	return s, j
}

func session(results ...browser.FakeResult) *browser.FakeSession {
	return &browser.FakeSession{
		ResultsSelector: DefaultTarget().ResultsSelector,
		Results:         results,
	}
}

func page(seats string) browser.FakeResult {
	return browser.FakeResult{HTML: resultsPage(row("0745", "20 seats"), row("0830", seats))}
}

func TestRun_ShortfallIsDeduplicatedThenCompletes(t *testing.T) {
	s, j := setup(t, 4)
	rec := &notify.Recorder{}
	m := &fakeMetrics{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop(), WithMetrics(m))

	sess := session(page("3 seats"), page("3 seats"), page("5 seats left"))
	require.NoError(t, p.Run(context.Background(), sess))

	assert.Equal(t, []string{
		"🔄 Train on 05 MAR 2026 at 08:30 → 3 seats, need 4.",
		"✅ Train on 05 MAR 2026 at 08:30 → 5 seats.",
	}, rec.Texts())
	assert.Equal(t, []string{"shortfall", "unchanged", "completed"}, m.outcomes)
	assert.Equal(t, []string{KindShortfall, KindSuccess}, m.notifications)
	assert.False(t, s.IsActive(j.ID))

	got, _ := s.Get(j.ID)
	require.NotNil(t, got.Job.LastNotified)
	assert.Equal(t, 3, *got.Job.LastNotified)
}

func TestRun_SevenSeatsAgainstFourPassengersCompletes(t *testing.T) {
	s, j := setup(t, 4)
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop())

	require.NoError(t, p.Run(context.Background(), session(page("7 seats"))))
	assert.Equal(t, []string{"✅ Train on 05 MAR 2026 at 08:30 → 7 seats."}, rec.Texts())
}

func TestRun_ShortfallRecordsLastNotified(t *testing.T) {
	s, j := setup(t, 6)
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := session(page("5 seats"))
	p.observer = func(_ string, st State) {
		if st == Navigating {
			return
		}
		if sess.Submits() >= 2 && st == FormReady {
			cancel()
		}
	}

	err := p.Run(ctx, sess)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"🔄 Train on 05 MAR 2026 at 08:30 → 5 seats, need 6."}, rec.Texts())
	n, ok := p.LastNotified()
	require.True(t, ok)
	assert.Equal(t, 5, n)
	assert.True(t, s.IsActive(j.ID))
}

func TestRun_CompletedJobIsNeverPolledAgain(t *testing.T) {
	s, j := setup(t, 2)
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop())

	require.NoError(t, p.Run(context.Background(), session(page("2 seats"))))
	require.Len(t, rec.Texts(), 1)

	again := session(page("9 seats"))
	assert.ErrorIs(t, p.Run(context.Background(), again), ErrJobInactive)
	assert.Empty(t, again.Calls())
	assert.Len(t, rec.Texts(), 1)
}

func TestRun_StoppedJobExitsWithoutNotifications(t *testing.T) {
	s, j := setup(t, 2)
	_, err := s.MarkAllCompleted(owner)
	require.NoError(t, err)

	rec := &notify.Recorder{}
	sess := session(page("9 seats"))
	err = New(testConfig(), owner, j, s, rec, logger.NewNop()).Run(context.Background(), sess)
	assert.ErrorIs(t, err, ErrJobInactive)
	assert.Empty(t, rec.Texts())
	assert.Empty(t, sess.Calls())
}

func TestRun_PersistedLastNotifiedSuppressesRepeat(t *testing.T) {
	s, j := setup(t, 4)
	require.NoError(t, s.RecordNotified(j.ID, 3))
	entry, _ := s.Get(j.ID)

	rec := &notify.Recorder{}
	p := New(testConfig(), owner, entry.Job, s, rec, logger.NewNop())
	require.NoError(t, p.Run(context.Background(), session(page("3 seats"), page("4 seats"))))

	assert.Equal(t, []string{"✅ Train on 05 MAR 2026 at 08:30 → 4 seats."}, rec.Texts())
}

func TestRun_SlotNotFound(t *testing.T) {
	s, j := setup(t, 1)
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop())

	missing := browser.FakeResult{HTML: resultsPage(row("0745", "1"), row("0945", "1"))}
	require.NoError(t, p.Run(context.Background(), session(missing, page("1 seat"))))

	assert.Equal(t, []string{
		"❌ Train at 08:30 not found. Seen: [0745, 0945]",
		"✅ Train on 05 MAR 2026 at 08:30 → 1 seats.",
	}, rec.Texts())
}

func TestRun_UnexpectedFormatKeepsDedupState(t *testing.T) {
	s, j := setup(t, 4)
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop())

	sess := session(page("2 seats"), page("Sold out"), page("2 seats"), page("4"))
	require.NoError(t, p.Run(context.Background(), sess))

	assert.Equal(t, []string{
		"🔄 Train on 05 MAR 2026 at 08:30 → 2 seats, need 4.",
		"⚠️ Unexpected format: “Sold out”",
		"✅ Train on 05 MAR 2026 at 08:30 → 4 seats.",
	}, rec.Texts())
}

func TestRun_ResultsTimeoutRetriesOnSameSession(t *testing.T) {
	s, j := setup(t, 1)
	rec := &notify.Recorder{}
	m := &fakeMetrics{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop(), WithMetrics(m))

	sess := session(browser.FakeResult{Timeout: true}, browser.FakeResult{Timeout: true}, page("1"))
	require.NoError(t, p.Run(context.Background(), sess))

	msgs := rec.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "⚠️ Timeout loading train list. Retrying.", msgs[0].Text)
	assert.Equal(t, "⚠️ Timeout loading train list. Retrying (attempt 2).", msgs[1].Text)
	assert.Equal(t, msgs[0].Handle, msgs[1].Replaces)
	assert.Contains(t, msgs[2].Text, "✅")
	assert.Equal(t, []string{"timeout", "timeout", "completed"}, m.outcomes)

	navigations, reloads := 0, 0
	for _, c := range sess.Calls() {
		switch {
		case c == "reload":
			reloads++
		case len(c) > 8 && c[:8] == "navigate":
			navigations++
		}
	}
	assert.Equal(t, 1, navigations)
	assert.Equal(t, 0, reloads)
}

func TestRun_ReloadsBetweenCycles(t *testing.T) {
	s, j := setup(t, 4)
	p := New(testConfig(), owner, j, s, &notify.Recorder{}, logger.NewNop())

	sess := session(page("1"), page("4"))
	require.NoError(t, p.Run(context.Background(), sess))
	assert.Contains(t, sess.Calls(), "reload")
}

func TestRun_SessionFailureIsReturned(t *testing.T) {
	s, j := setup(t, 1)
	crash := errors.New("tab crashed")
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop())

	err := p.Run(context.Background(), session(browser.FakeResult{Err: crash}))
	assert.ErrorIs(t, err, crash)
	assert.Empty(t, rec.Texts())
	assert.True(t, s.IsActive(j.ID))
}

func TestRun_MissingFieldIsDiagnosable(t *testing.T) {
	s, j := setup(t, 1)
	sess := session(page("1"))
	sess.Missing = map[string]bool{"OnwardDate": true}

	err := New(testConfig(), owner, j, s, &notify.Recorder{}, logger.NewNop()).Run(context.Background(), sess)
	var nf *browser.ElementNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "#OnwardDate", nf.Selector)
}

func TestRun_FillsSearchForm(t *testing.T) {
	s, j := setup(t, 4)
	sess := session(page("4"))
	require.NoError(t, New(testConfig(), owner, j, s, &notify.Recorder{}, logger.NewNop()).Run(context.Background(), sess))

	assert.Equal(t, "WOODLANDS CIQ", sess.Field("FromStationId"))
	assert.Equal(t, "JB SENTRAL", sess.Field("ToStationId"))
	assert.Equal(t, "05 MAR 2026", sess.Field("OnwardDate"))
	assert.Equal(t, "05 MAR 2026", sess.Field("ReturnDate"))
	assert.Equal(t, "4 Pax", sess.Field("PassengerCount"))
	assert.Contains(t, sess.Calls(), "click #btnSubmit")
}

func TestRun_DismissesInterstitial(t *testing.T) {
	s, j := setup(t, 1)
	sess := session(page("1"))
	sess.Present = map[string]bool{"div.modal.fade.show": true}

	require.NoError(t, New(testConfig(), owner, j, s, &notify.Recorder{}, logger.NewNop()).Run(context.Background(), sess))
	assert.Contains(t, sess.Calls(), `click button[data-dismiss="modal"]`)
}

func TestRun_LogsInterstitialNotice(t *testing.T) {
	s, j := setup(t, 1)
	sess := session(page("1"))
	sess.Present = map[string]bool{"div.modal.fade.show": true}
	sess.Texts = map[string]string{"div.modal.fade.show": "  Tickets for\n 05 Mar\tare limited. "}

	logPath := filepath.Join(t.TempDir(), "poller.log")
	log, err := logger.New(logger.Config{Level: "info", Format: "text", Output: logPath})
	require.NoError(t, err)

	require.NoError(t, New(testConfig(), owner, j, s, &notify.Recorder{}, log).Run(context.Background(), sess))

	calls := sess.Calls()
	assert.Contains(t, calls, "text div.modal.fade.show")
	assert.Contains(t, calls, `click button[data-dismiss="modal"]`)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "booking page notice shown")
	assert.Contains(t, string(data), "Tickets for 05 Mar are limited.")
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "seat…", excerpt("seats left", 4))
}

func TestRun_StateSequence(t *testing.T) {
	s, j := setup(t, 1)
	var states []State
	p := New(testConfig(), owner, j, s, &notify.Recorder{}, logger.NewNop(),
		WithObserver(func(_ string, st State) { states = append(states, st) }))

	require.NoError(t, p.Run(context.Background(), session(page("1"))))
	assert.Equal(t, []State{Navigating, FormReady, Submitted, ResultsReady, Decided}, states)
	assert.Equal(t, Decided, p.State())
	assert.Equal(t, "results_ready", ResultsReady.String())
}

type failingState struct {
	*store.Store
}

func (f failingState) MarkCompleted(id string) error {
	return errors.New("disk full")
}

func TestRun_CompletionNotPersistedIsSessionFatal(t *testing.T) {
	s, j := setup(t, 1)
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, failingState{s}, rec, logger.NewNop())

	err := p.Run(context.Background(), session(page("5")))
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, rec.Texts())
}

func TestRunOnce(t *testing.T) {
	s, j := setup(t, 4)
	rec := &notify.Recorder{}
	p := New(testConfig(), owner, j, s, rec, logger.NewNop())

	outcome, err := p.RunOnce(context.Background(), session(page("2")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeShortfall, outcome)
	assert.Len(t, rec.Texts(), 1)
}
