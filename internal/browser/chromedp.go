package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// cdpSession drives one browser tab over the DevTools protocol. The protocol
// client is asynchronous, so a slow page only blocks the calling goroutine.
type cdpSession struct {
	tab            context.Context
	cancel         context.CancelFunc
	elementTimeout time.Duration
	pageTimeout    time.Duration
	release        func() error

	closeOnce sync.Once
	closeErr  error
}

func newCDPSession(tab context.Context, cancel context.CancelFunc, o Options, release func() error) *cdpSession {
	return &cdpSession{
		tab:            tab,
		cancel:         cancel,
		elementTimeout: o.ElementTimeout,
		pageTimeout:    o.PageTimeout,
		release:        release,
	}
}

// run executes actions on the tab, bounded by timeout and by ctx. It reports
// whether the timeout (rather than ctx) ended the call.
func (s *cdpSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) (bool, error) {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return false, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return true, err
	}
	return false, err
}

func (s *cdpSession) Navigate(ctx context.Context, url string) error {
	timedOut, err := s.run(ctx, s.pageTimeout, chromedp.Navigate(url))
	if timedOut {
		return &TimeoutError{Selector: url, After: s.pageTimeout, Err: err}
	}
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *cdpSession) Reload(ctx context.Context) error {
	timedOut, err := s.run(ctx, s.pageTimeout, chromedp.Reload())
	if timedOut {
		return &TimeoutError{Selector: "page reload", After: s.pageTimeout, Err: err}
	}
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (s *cdpSession) SetField(ctx context.Context, id, value string) error {
	timedOut, err := s.run(ctx, s.elementTimeout,
		chromedp.WaitReady(id, chromedp.ByID),
		chromedp.SetValue(id, value, chromedp.ByID),
	)
	if timedOut {
		return &ElementNotFoundError{Selector: "#" + id, Err: err}
	}
	if err != nil {
		return fmt.Errorf("set #%s: %w", id, err)
	}
	return nil
}

// selectByTextJS picks the option whose visible text matches and fires a
// change event the way a user selection would.
const selectByTextJS = `(function(id, text) {
	const el = document.getElementById(id);
	if (!el) { return "missing"; }
	for (const opt of el.options) {
		if (opt.text.trim() === text) {
			el.value = opt.value;
			el.dispatchEvent(new Event("change", { bubbles: true }));
			return "ok";
		}
	}
	return "no-option";
})(%s, %s)`

func (s *cdpSession) SelectOption(ctx context.Context, id, visibleText string) error {
	var result string
	expr, err := jsCall(selectByTextJS, id, visibleText)
	if err != nil {
		return err
	}
	timedOut, err := s.run(ctx, s.elementTimeout,
		chromedp.WaitReady(id, chromedp.ByID),
		chromedp.Evaluate(expr, &result),
	)
	if timedOut {
		return &ElementNotFoundError{Selector: "#" + id, Err: err}
	}
	if err != nil {
		return fmt.Errorf("select #%s: %w", id, err)
	}
	switch result {
	case "ok":
		return nil
	case "missing":
		return &ElementNotFoundError{Selector: "#" + id}
	default:
		return &ElementNotFoundError{Selector: fmt.Sprintf("#%s option %q", id, visibleText)}
	}
}

const clickJS = `(function(sel) {
	const el = document.querySelector(sel);
	if (!el) { return false; }
	el.click();
	return true;
})(%s)`

func (s *cdpSession) Click(ctx context.Context, selector string) error {
	var clicked bool
	expr, err := jsCall(clickJS, selector)
	if err != nil {
		return err
	}
	timedOut, err := s.run(ctx, s.elementTimeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(expr, &clicked),
	)
	if timedOut {
		return &ElementNotFoundError{Selector: selector, Err: err}
	}
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if !clicked {
		return &ElementNotFoundError{Selector: selector}
	}
	return nil
}

func (s *cdpSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	timedOut, err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	if timedOut {
		return &TimeoutError{Selector: selector, After: timeout, Err: err}
	}
	if err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (s *cdpSession) ReadText(ctx context.Context, selector string) (string, error) {
	var text string
	timedOut, err := s.run(ctx, s.elementTimeout, chromedp.Text(selector, &text, chromedp.ByQuery))
	if timedOut {
		return "", &ElementNotFoundError{Selector: selector, Err: err}
	}
	if err != nil {
		return "", fmt.Errorf("read text %s: %w", selector, err)
	}
	return text, nil
}

func (s *cdpSession) ReadHTML(ctx context.Context, selector string) (string, error) {
	var html string
	timedOut, err := s.run(ctx, s.elementTimeout, chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
	if timedOut {
		return "", &ElementNotFoundError{Selector: selector, Err: err}
	}
	if err != nil {
		return "", fmt.Errorf("read html %s: %w", selector, err)
	}
	return html, nil
}

// Close terminates the browser and releases its profile. Safe to call twice.
func (s *cdpSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}

// jsCall formats a JS function call with JSON-encoded string arguments.
func jsCall(format string, args ...string) (string, error) {
	encoded := make([]any, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument: %w", err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf(format, encoded...), nil
}
