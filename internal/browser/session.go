// Package browser wraps a disposable headless-browser context behind a small
// capability interface. Each Session owns one browser process (or container)
// and one profile directory, both released by Close.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ProfilePrefix names every per-session profile directory.
const ProfilePrefix = "profile-"

// Session is one isolated browser context. Implementations are not safe for
// concurrent use; a session belongs to a single job.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	SetField(ctx context.Context, id, value string) error
	SelectOption(ctx context.Context, id, visibleText string) error
	Click(ctx context.Context, selector string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	ReadText(ctx context.Context, selector string) (string, error)
	ReadHTML(ctx context.Context, selector string) (string, error)
	Close() error
}

// Launcher opens fresh sessions. label identifies the owner in logs and
// container labels.
type Launcher interface {
	Open(ctx context.Context, label string) (Session, error)
}

// Options configure every engine.
type Options struct {
	ExecPath       string
	ProfileDir     string
	Headless       bool
	UserAgent      string
	ExtraFlags     []string
	WindowWidth    int
	WindowHeight   int
	ElementTimeout time.Duration
	PageTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.WindowWidth == 0 {
		o.WindowWidth = 1024
	}
	if o.WindowHeight == 0 {
		o.WindowHeight = 768
	}
	if o.ElementTimeout == 0 {
		o.ElementTimeout = 10 * time.Second
	}
	if o.PageTimeout == 0 {
		o.PageTimeout = 60 * time.Second
	}
	if o.ProfileDir == "" {
		o.ProfileDir = filepath.Join(os.TempDir(), "shuttlewatch")
	}
	return o
}

// ProfileRoot is the directory that holds per-session profiles.
func (o Options) ProfileRoot() string {
	return o.withDefaults().ProfileDir
}

// Profiles tracks profile directories owned by live sessions.
type Profiles struct {
	mu   sync.Mutex
	dirs map[string]struct{}
}

func NewProfiles() *Profiles {
	return &Profiles{dirs: make(map[string]struct{})}
}

// Acquire creates a unique profile directory under root.
func (p *Profiles) Acquire(root string) (string, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return "", fmt.Errorf("failed to create profile root %s: %w", root, err)
	}
	dir, err := os.MkdirTemp(root, ProfilePrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}

	p.mu.Lock()
	p.dirs[dir] = struct{}{}
	p.mu.Unlock()
	return dir, nil
}

// Release removes dir and forgets it.
func (p *Profiles) Release(dir string) error {
	p.mu.Lock()
	delete(p.dirs, dir)
	p.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove profile directory %s: %w", dir, err)
	}
	return nil
}

// InUse reports whether dir belongs to a live session.
func (p *Profiles) InUse(dir string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.dirs[dir]
	return ok
}

// Count returns the number of live profile directories.
func (p *Profiles) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dirs)
}
