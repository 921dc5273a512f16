package docker

import (
	"fmt"
	"sync/atomic"
	"time"
)

// LabelOwner marks containers started by this process so leftovers can be
// told apart from unrelated containers on the host.
const LabelOwner = "io.shuttlewatch.owner"

// ContainerConfig describes one headless browser container.
type ContainerConfig struct {
	Image      string
	PullPolicy string // always | if-not-present | never

	// Entrypoint and Args start the browser; the remote debugging port is
	// appended by the launcher.
	Entrypoint []string
	Args       []string

	MemoryLimit string
	CPULimit    float64
	PidsLimit   int64
	ShmSize     string

	SecurityOpt []string
	Labels      map[string]string
}

type DockerError struct {
	Op      string
	Err     error
	Message string
}

func (e *DockerError) Error() string {
	return fmt.Sprintf("docker %s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %v", e.RetryAfter)
}

type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open, retry after %v", e.RetryAfter)
}

// Metrics counts container lifecycle events.
type Metrics struct {
	Started       atomic.Int64
	Removed       atomic.Int64
	StartFailures atomic.Int64
	CircuitTrips  atomic.Int64
	Throttled     atomic.Int64
}
