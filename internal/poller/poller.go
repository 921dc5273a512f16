// Package poller runs the search-and-decide cycle for one job against an open
// browser session.
//
// A cycle fills the search form, waits for the results table, reads the seat
// count for the requested departure and decides: enough seats completes the
// job, a changed shortfall is reported, an unchanged one is not. A results
// table that does not load is retried on the same session; any other failure
// is returned so the caller can replace the session.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/notify"
)

// ErrJobInactive is returned once the job is completed or removed elsewhere.
var ErrJobInactive = errors.New("job is no longer active")

// State is a step of the cycle.
type State int

const (
	Navigating State = iota
	FormReady
	Submitted
	ResultsReady
	Decided
)

func (s State) String() string {
	switch s {
	case Navigating:
		return "navigating"
	case FormReady:
		return "form_ready"
	case Submitted:
		return "submitted"
	case ResultsReady:
		return "results_ready"
	case Decided:
		return "decided"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeShortfall  Outcome = "shortfall"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeUnexpected Outcome = "unexpected_format"
	OutcomeTimeout    Outcome = "timeout"
)

// Target holds the booking page identifiers the cycle depends on.
type Target struct {
	SearchURL            string
	OriginField          string
	DestinationField     string
	OnwardDateField      string
	ReturnDateField      string
	PassengerField       string
	SubmitSelector       string
	InterstitialSelector string
	DismissSelector      string
	ResultsSelector      string
	PageSelector         string
	RowSelector          string
	SlotAttribute        string
	SeatCell             int // 1-based column of the seat count
}

// DefaultTarget is the KTMB Shuttle Tebrau search page.
func DefaultTarget() Target {
	return Target{
		SearchURL:            "https://shuttleonline.ktmb.com.my/Home/Shuttle",
		OriginField:          "FromStationId",
		DestinationField:     "ToStationId",
		OnwardDateField:      "OnwardDate",
		ReturnDateField:      "ReturnDate",
		PassengerField:       "PassengerCount",
		SubmitSelector:       "#btnSubmit",
		InterstitialSelector: "div.modal.fade.show",
		DismissSelector:      `button[data-dismiss="modal"]`,
		ResultsSelector:      "tbody.return-trips tr",
		PageSelector:         "body",
		RowSelector:          "tr[data-hourminute]",
		SlotAttribute:        "data-hourminute",
		SeatCell:             5,
	}
}

// Config holds the cycle timings.
type Config struct {
	Target              Target
	ResultsTimeout      time.Duration
	InterstitialTimeout time.Duration
	DismissDelay        time.Duration
	RetryDelay          time.Duration
	CycleInterval       time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Target:              DefaultTarget(),
		ResultsTimeout:      10 * time.Second,
		InterstitialTimeout: 3 * time.Second,
		DismissDelay:        time.Second,
		RetryDelay:          30 * time.Second,
		CycleInterval:       30 * time.Second,
	}
}

// JobState is the authoritative view of the job the poller works on.
type JobState interface {
	IsActive(id string) bool
	MarkCompleted(id string) error
	RecordNotified(id string, seats int) error
}

// Metrics receives per-cycle observations.
type Metrics interface {
	ObserveCycle(outcome string, d time.Duration)
	CountNotification(kind string)
}

// Observer is called on every state change.
type Observer func(jobID string, s State)

type Option func(*Poller)

func WithMetrics(m Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

func WithObserver(o Observer) Option {
	return func(p *Poller) { p.observer = o }
}

// Poller keeps the per-job state that must survive session restarts: the last
// notified seat count and the open timeout notice.
type Poller struct {
	cfg      Config
	owner    string
	job      job.Job
	jobs     JobState
	notifier notify.Notifier
	log      *logger.Logger
	metrics  Metrics
	observer Observer

	state         State
	lastNotified  *int
	timeouts      int
	timeoutNotice notify.Handle
}

func New(cfg Config, owner string, j job.Job, jobs JobState, notifier notify.Notifier, log *logger.Logger, opts ...Option) *Poller {
	p := &Poller{
		cfg:      cfg,
		owner:    owner,
		job:      j.Clone(),
		jobs:     jobs,
		notifier: notifier,
		log:      log,
	}
	if j.LastNotified != nil {
		n := *j.LastNotified
		p.lastNotified = &n
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the last state entered.
func (p *Poller) State() State {
	return p.state
}

// LastNotified returns the last reported shortfall, if any.
func (p *Poller) LastNotified() (int, bool) {
	if p.lastNotified == nil {
		return 0, false
	}
	return *p.lastNotified, true
}

// Run drives cycles on sess until the job completes (nil), becomes inactive
// (ErrJobInactive), ctx ends, or the session fails.
func (p *Poller) Run(ctx context.Context, sess browser.Session) error {
	navigated := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.jobs.IsActive(p.job.ID) {
			return ErrJobInactive
		}

		if !navigated {
			p.setState(Navigating)
			if err := sess.Navigate(ctx, p.cfg.Target.SearchURL); err != nil {
				return fmt.Errorf("failed to open search page: %w", err)
			}
			navigated = true
		}

		start := time.Now()
		outcome, err := p.cycle(ctx, sess)
		if err != nil {
			return err
		}
		p.observeCycle(outcome, time.Since(start))

		switch outcome {
		case OutcomeCompleted:
			return nil
		case OutcomeTimeout:
			if err := sleep(ctx, p.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		}

		if err := sess.Reload(ctx); err != nil {
			return fmt.Errorf("failed to reload search page: %w", err)
		}
		if err := sleep(ctx, p.cfg.CycleInterval); err != nil {
			return err
		}
	}
}

// RunOnce performs a single cycle on a fresh page without sleeping or
// reloading. It is used for dry runs.
func (p *Poller) RunOnce(ctx context.Context, sess browser.Session) (Outcome, error) {
	if !p.jobs.IsActive(p.job.ID) {
		return "", ErrJobInactive
	}
	p.setState(Navigating)
	if err := sess.Navigate(ctx, p.cfg.Target.SearchURL); err != nil {
		return "", fmt.Errorf("failed to open search page: %w", err)
	}
	start := time.Now()
	outcome, err := p.cycle(ctx, sess)
	if err != nil {
		return "", err
	}
	p.observeCycle(outcome, time.Since(start))
	return outcome, nil
}

func (p *Poller) cycle(ctx context.Context, sess browser.Session) (Outcome, error) {
	t := p.cfg.Target

	p.dismissInterstitial(ctx, sess)

	p.setState(FormReady)
	if err := p.fillForm(ctx, sess); err != nil {
		return "", err
	}
	if err := sess.Click(ctx, t.SubmitSelector); err != nil {
		return "", fmt.Errorf("failed to submit search: %w", err)
	}
	p.setState(Submitted)

	if err := sess.WaitForSelector(ctx, t.ResultsSelector, p.cfg.ResultsTimeout); err != nil {
		var timeout *browser.TimeoutError
		if errors.As(err, &timeout) && ctx.Err() == nil {
			return p.onResultsTimeout(ctx)
		}
		return "", fmt.Errorf("failed waiting for results: %w", err)
	}
	p.timeouts = 0
	p.timeoutNotice = ""

	p.setState(ResultsReady)
	html, err := sess.ReadHTML(ctx, t.PageSelector)
	if err != nil {
		return "", fmt.Errorf("failed to read results: %w", err)
	}
	res, err := ParseResults(html, t, p.job.SlotKey())
	if err != nil {
		return "", err
	}

	p.setState(Decided)
	return p.decide(ctx, res)
}

func (p *Poller) dismissInterstitial(ctx context.Context, sess browser.Session) {
	t := p.cfg.Target
	if t.InterstitialSelector == "" {
		return
	}
	if err := sess.WaitForSelector(ctx, t.InterstitialSelector, p.cfg.InterstitialTimeout); err != nil {
		return
	}
	if text, err := sess.ReadText(ctx, t.InterstitialSelector); err == nil {
		p.log.InfoCtx(ctx, "booking page notice shown",
			logger.Field{Key: "notice", Value: excerpt(normalizeText(text), 200)})
	}
	if err := sess.Click(ctx, t.DismissSelector); err != nil {
		p.log.DebugCtx(ctx, "failed to dismiss interstitial",
			logger.Field{Key: "reason", Value: err.Error()})
		return
	}
	_ = sleep(ctx, p.cfg.DismissDelay)
}

func (p *Poller) fillForm(ctx context.Context, sess browser.Session) error {
	t := p.cfg.Target
	fields := []struct{ id, value string }{
		{t.OriginField, p.job.Origin},
		{t.DestinationField, p.job.Destination},
		{t.OnwardDateField, p.job.OnwardDate()},
		{t.ReturnDateField, p.job.ReturnDate()},
	}
	for _, f := range fields {
		if err := sess.SetField(ctx, f.id, f.value); err != nil {
			return fmt.Errorf("failed to fill search form: %w", err)
		}
	}
	if err := sess.SelectOption(ctx, t.PassengerField, p.job.PassengerOption()); err != nil {
		return fmt.Errorf("failed to select passengers: %w", err)
	}
	return nil
}

// onResultsTimeout reports the load failure. Consecutive timeouts rewrite one
// notice instead of stacking messages.
func (p *Poller) onResultsTimeout(ctx context.Context) (Outcome, error) {
	if !p.jobs.IsActive(p.job.ID) {
		return "", ErrJobInactive
	}
	p.timeouts++
	text := timeoutText(p.timeouts)
	if p.timeoutNotice == "" {
		p.timeoutNotice = p.notifier.Send(ctx, p.owner, text)
	} else {
		p.notifier.Replace(ctx, p.owner, p.timeoutNotice, text)
	}
	p.countNotification(KindTimeout)
	p.log.WarnCtx(ctx, "results table did not load",
		logger.Field{Key: "attempt", Value: p.timeouts})
	return OutcomeTimeout, nil
}

func (p *Poller) decide(ctx context.Context, res Results) (Outcome, error) {
	// A stop issued while this cycle ran must not produce another message.
	if !p.jobs.IsActive(p.job.ID) {
		return "", ErrJobInactive
	}

	switch {
	case !res.Found:
		p.send(ctx, KindNotFound, notFoundText(p.job, res.Seen))
		p.log.WarnCtx(ctx, "departure not in results",
			logger.Field{Key: "slot", Value: p.job.SlotKey()},
			logger.Field{Key: "seen", Value: res.Seen})
		return OutcomeNotFound, nil

	case !res.Parsed:
		p.send(ctx, KindUnexpected, unexpectedText(res.Raw))
		p.log.WarnCtx(ctx, "unexpected seat cell format",
			logger.Field{Key: "raw", Value: res.Raw})
		return OutcomeUnexpected, nil

	case res.Seats >= p.job.Passengers:
		if err := p.jobs.MarkCompleted(p.job.ID); err != nil {
			return "", fmt.Errorf("failed to mark job completed: %w", err)
		}
		p.send(ctx, KindSuccess, successText(p.job, res.Seats))
		p.log.InfoCtx(ctx, "seats available, job completed",
			logger.Field{Key: "seats", Value: res.Seats})
		return OutcomeCompleted, nil
	}

	if p.lastNotified != nil && *p.lastNotified == res.Seats {
		p.log.DebugCtx(ctx, "shortfall unchanged",
			logger.Field{Key: "seats", Value: res.Seats})
		return OutcomeUnchanged, nil
	}

	p.send(ctx, KindShortfall, shortfallText(p.job, res.Seats))
	seats := res.Seats
	p.lastNotified = &seats
	if err := p.jobs.RecordNotified(p.job.ID, seats); err != nil {
		p.log.ErrorCtx(ctx, "failed to persist last notified seats", err)
	}
	p.log.InfoCtx(ctx, "shortfall reported",
		logger.Field{Key: "seats", Value: seats},
		logger.Field{Key: "need", Value: p.job.Passengers})
	return OutcomeShortfall, nil
}

func (p *Poller) send(ctx context.Context, kind, text string) {
	p.notifier.Send(ctx, p.owner, text)
	p.countNotification(kind)
}

func (p *Poller) setState(s State) {
	p.state = s
	if p.observer != nil {
		p.observer(p.job.ID, s)
	}
}

func (p *Poller) observeCycle(outcome Outcome, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveCycle(string(outcome), d)
	}
}

func (p *Poller) countNotification(kind string) {
	if p.metrics != nil {
		p.metrics.CountNotification(kind)
	}
}

// excerpt cuts s to at most n runes.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
