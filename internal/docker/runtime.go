package docker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/logger"
)

// RuntimeConfig tunes how browser containers are started.
type RuntimeConfig struct {
	Container               ContainerConfig
	StartupTimeout          time.Duration
	MaxStartsPerMinute      int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// BrowserContainer is a running browser whose DevTools endpoint is reachable
// at Endpoint.
type BrowserContainer struct {
	ID       string
	Port     int
	Endpoint string
}

// Runtime starts and removes browser containers. The image is pulled on the
// first successful start.
type Runtime struct {
	cfg            RuntimeConfig
	client         ClientInterface
	log            *logger.Logger
	limiter        *RateLimiter
	circuitBreaker *CircuitBreaker
	metrics        Metrics
	httpClient     *http.Client

	pullMu sync.Mutex
	pulled bool
}

func NewRuntime(cfg RuntimeConfig, client ClientInterface, log *logger.Logger) *Runtime {
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	r := &Runtime{
		cfg:        cfg,
		client:     client,
		log:        log,
		limiter:    NewRateLimiter(cfg.MaxStartsPerMinute),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	r.circuitBreaker = NewCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout, &r.metrics)
	return r
}

// Metrics exposes lifecycle counters.
func (r *Runtime) Metrics() *Metrics {
	return &r.metrics
}

// Start launches a browser container labelled with name and waits until its
// DevTools endpoint answers.
func (r *Runtime) Start(ctx context.Context, name string) (*BrowserContainer, error) {
	if allowed, wait := r.limiter.Allow(); !allowed {
		r.metrics.Throttled.Add(1)
		return nil, &RateLimitError{RetryAfter: wait}
	}

	if err := r.ensureImage(ctx); err != nil {
		return nil, err
	}

	var bc *BrowserContainer
	err := r.circuitBreaker.Do(func() error {
		var err error
		bc, err = r.start(ctx, name)
		return err
	})
	if err != nil {
		r.metrics.StartFailures.Add(1)
		return nil, err
	}

	r.metrics.Started.Add(1)
	r.log.Debug("browser container started",
		logger.Field{Key: "container_id", Value: shortID(bc.ID)},
		logger.Field{Key: "name", Value: name},
		logger.Field{Key: "port", Value: bc.Port})
	return bc, nil
}

func (r *Runtime) ensureImage(ctx context.Context) error {
	r.pullMu.Lock()
	defer r.pullMu.Unlock()
	if r.pulled {
		return nil
	}
	if err := r.client.PullImage(ctx, r.cfg.Container); err != nil {
		return err
	}
	r.pulled = true
	return nil
}

func (r *Runtime) start(ctx context.Context, name string) (*BrowserContainer, error) {
	port, err := FreePort()
	if err != nil {
		return nil, &DockerError{Op: "port", Err: err, Message: "failed to reserve a DevTools port"}
	}

	cfg := r.cfg.Container
	labels := make(map[string]string, len(cfg.Labels)+1)
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	labels[LabelOwner] = name
	cfg.Labels = labels

	id, err := r.client.CreateContainer(ctx, cfg, port)
	if err != nil {
		return nil, err
	}

	if err := r.client.StartContainer(ctx, id); err != nil {
		r.remove(id)
		return nil, err
	}

	endpoint := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := r.waitReady(ctx, id, endpoint); err != nil {
		r.remove(id)
		return nil, err
	}

	return &BrowserContainer{ID: id, Port: port, Endpoint: endpoint}, nil
}

// waitReady polls /json/version until the browser answers or the startup
// timeout passes.
func (r *Runtime) waitReady(ctx context.Context, id, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/json/version", nil)
		if err != nil {
			return &DockerError{Op: "wait", Err: err, Message: "invalid DevTools endpoint"}
		}
		resp, err := r.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			running, inspectErr := r.client.IsRunning(context.Background(), id)
			if inspectErr == nil && !running {
				return &DockerError{Op: "wait", Err: ctx.Err(), Message: "browser container exited during startup"}
			}
			return &DockerError{Op: "wait", Err: ctx.Err(), Message: fmt.Sprintf("DevTools endpoint %s did not come up", endpoint)}
		case <-ticker.C:
		}
	}
}

// Stop removes the container. It is safe to call with nil.
func (r *Runtime) Stop(ctx context.Context, bc *BrowserContainer) error {
	if bc == nil {
		return nil
	}
	if err := r.client.RemoveContainer(ctx, bc.ID); err != nil {
		return err
	}
	r.metrics.Removed.Add(1)
	return nil
}

func (r *Runtime) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.client.RemoveContainer(ctx, id); err != nil {
		r.log.Error("failed to remove browser container", err,
			logger.Field{Key: "container_id", Value: shortID(id)})
		return
	}
	r.metrics.Removed.Add(1)
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

// FreePort asks the kernel for an unused TCP port on the loopback interface.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, errors.New("unexpected listener address")
	}
	return addr.Port, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
