package browser

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeResult is what the results table looks like after one search submit.
type FakeResult struct {
	HTML    string
	Timeout bool
	Err     error
}

// FakeSession is a scripted in-memory Session. Each wait on ResultsSelector
// consumes the next entry of Results; the last entry repeats.
type FakeSession struct {
	ResultsSelector string
	Results         []FakeResult

	// Present lists other selectors that exist on the page.
	Present map[string]bool
	// Missing lists element ids or selectors that fail as not found.
	Missing map[string]bool
	// Texts is what ReadText returns per selector; others read the current page.
	Texts map[string]string

	NavigateErr error
	ReloadErr   error

	mu      sync.Mutex
	calls   []string
	fields  map[string]string
	waits   int
	current FakeResult
	closed  int
}

func (f *FakeSession) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *FakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("navigate %s", url)
	return f.NavigateErr
}

func (f *FakeSession) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reload")
	return f.ReloadErr
}

func (f *FakeSession) SetField(ctx context.Context, id, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[id] {
		return &ElementNotFoundError{Selector: "#" + id}
	}
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	f.fields[id] = value
	f.record("set %s=%s", id, value)
	return nil
}

func (f *FakeSession) SelectOption(ctx context.Context, id, visibleText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[id] {
		return &ElementNotFoundError{Selector: "#" + id}
	}
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	f.fields[id] = visibleText
	f.record("select %s=%s", id, visibleText)
	return nil
}

func (f *FakeSession) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[selector] {
		return &ElementNotFoundError{Selector: selector}
	}
	f.record("click %s", selector)
	return nil
}

func (f *FakeSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait %s", selector)

	if selector != f.ResultsSelector {
		if f.Present[selector] {
			return nil
		}
		return &TimeoutError{Selector: selector, After: timeout}
	}

	if len(f.Results) == 0 {
		return &TimeoutError{Selector: selector, After: timeout}
	}
	i := f.waits
	if i >= len(f.Results) {
		i = len(f.Results) - 1
	}
	f.waits++
	f.current = f.Results[i]

	switch {
	case f.current.Err != nil:
		return f.current.Err
	case f.current.Timeout:
		return &TimeoutError{Selector: selector, After: timeout}
	}
	return nil
}

func (f *FakeSession) ReadText(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[selector] {
		return "", &ElementNotFoundError{Selector: selector}
	}
	f.record("text %s", selector)
	if text, ok := f.Texts[selector]; ok {
		return text, nil
	}
	return f.current.HTML, nil
}

func (f *FakeSession) ReadHTML(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[selector] {
		return "", &ElementNotFoundError{Selector: selector}
	}
	return f.current.HTML, nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Calls returns the recorded actions in order.
func (f *FakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Field returns the last value set on id.
func (f *FakeSession) Field(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields[id]
}

// Submits returns how many times the results table was waited for.
func (f *FakeSession) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}

// Closed returns how many times Close was called.
func (f *FakeSession) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeLauncher hands out sessions produced by Next. A nil session with a nil
// error is reported as a start failure.
type FakeLauncher struct {
	Next func(attempt int) (*FakeSession, error)

	mu       sync.Mutex
	attempts int
	opened   []*FakeSession
}

func (l *FakeLauncher) Open(ctx context.Context, label string) (Session, error) {
	l.mu.Lock()
	attempt := l.attempts
	l.attempts++
	l.mu.Unlock()

	s, err := l.Next(attempt)
	if err == nil && s == nil {
		err = fmt.Errorf("no session for attempt %d", attempt)
	}
	if err != nil {
		return nil, &SessionStartError{Engine: "fake", Err: err}
	}

	l.mu.Lock()
	l.opened = append(l.opened, s)
	l.mu.Unlock()
	return s, nil
}

// Attempts returns how many times Open was called.
func (l *FakeLauncher) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// Opened returns the sessions handed out so far.
func (l *FakeLauncher) Opened() []*FakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*FakeSession(nil), l.opened...)
}
