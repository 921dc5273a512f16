package docker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves a DevTools version endpoint on the requested port when the
// container is started.
type fakeClient struct {
	mu        sync.Mutex
	pulls     int
	created   []ContainerConfig
	removed   []string
	servers   map[string]*http.Server
	ports     map[string]int
	createErr error
	pullErr   error
	serve     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{servers: map[string]*http.Server{}, ports: map[string]int{}, serve: true}
}

func (f *fakeClient) PullImage(ctx context.Context, cfg ContainerConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return f.pullErr
}

func (f *fakeClient) CreateContainer(ctx context.Context, cfg ContainerConfig, port int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := fmt.Sprintf("container-%d", len(f.created))
	f.created = append(f.created, cfg)
	f.ports[id] = port
	return id, nil
}

func (f *fakeClient) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.serve {
		return nil
	}
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", f.ports[id]))
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Browser":"HeadlessChrome"}`))
	})
	srv := &http.Server{Handler: mux}
	go func() { _ = srv.Serve(l) }()
	f.servers[id] = srv
	return nil
}

func (f *fakeClient) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if srv, ok := f.servers[id]; ok {
		_ = srv.Close()
		delete(f.servers, id)
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeClient) IsRunning(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (f *fakeClient) Close() error { return nil }

func testRuntime(client ClientInterface, cfg RuntimeConfig) *Runtime {
	cfg.Container.Image = "chromedp/headless-shell:latest"
	return NewRuntime(cfg, client, logger.NewNop())
}

func TestRuntime_StartAndStop(t *testing.T) {
	client := newFakeClient()
	rt := testRuntime(client, RuntimeConfig{StartupTimeout: 5 * time.Second})

	bc, err := rt.Start(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", bc.Port), bc.Endpoint)
	require.Len(t, client.created, 1)
	assert.Equal(t, "job-1", client.created[0].Labels[LabelOwner])

	require.NoError(t, rt.Stop(context.Background(), bc))
	assert.Equal(t, []string{bc.ID}, client.removed)
	assert.Equal(t, int64(1), rt.Metrics().Started.Load())
	assert.Equal(t, int64(1), rt.Metrics().Removed.Load())

	_, err = rt.Start(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, 1, client.pulls, "image is pulled once")

	assert.NoError(t, rt.Stop(context.Background(), nil))
}

func TestRuntime_StartupTimeoutRemovesContainer(t *testing.T) {
	client := newFakeClient()
	client.serve = false
	rt := testRuntime(client, RuntimeConfig{StartupTimeout: 300 * time.Millisecond})

	_, err := rt.Start(context.Background(), "job-1")
	var derr *DockerError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "wait", derr.Op)
	assert.Len(t, client.removed, 1)
	assert.Equal(t, int64(1), rt.Metrics().StartFailures.Load())
}

func TestRuntime_CircuitOpensAfterFailures(t *testing.T) {
	client := newFakeClient()
	client.createErr = errors.New("daemon gone")
	rt := testRuntime(client, RuntimeConfig{CircuitBreakerThreshold: 2, CircuitBreakerTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := rt.Start(context.Background(), "job")
		require.Error(t, err)
	}
	_, err := rt.Start(context.Background(), "job")
	var open *CircuitOpenError
	assert.ErrorAs(t, err, &open)
	assert.Equal(t, int64(1), rt.Metrics().CircuitTrips.Load())
}

func TestRuntime_RateLimited(t *testing.T) {
	client := newFakeClient()
	client.createErr = errors.New("nope")
	rt := testRuntime(client, RuntimeConfig{MaxStartsPerMinute: 1, CircuitBreakerThreshold: 100})

	_, _ = rt.Start(context.Background(), "job")
	_, err := rt.Start(context.Background(), "job")
	var limited *RateLimitError
	assert.ErrorAs(t, err, &limited)
	assert.Equal(t, int64(1), rt.Metrics().Throttled.Load())
}

func TestRuntime_PullFailureIsRetried(t *testing.T) {
	client := newFakeClient()
	client.pullErr = errors.New("registry down")
	rt := testRuntime(client, RuntimeConfig{StartupTimeout: 5 * time.Second})

	_, err := rt.Start(context.Background(), "job")
	require.Error(t, err)

	client.pullErr = nil
	bc, err := rt.Start(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, 2, client.pulls)
	require.NoError(t, rt.Stop(context.Background(), bc))
}

func TestBuildHostConfig_Defaults(t *testing.T) {
	hc := BuildHostConfig(ContainerConfig{})
	assert.Equal(t, "host", string(hc.NetworkMode))
	assert.Equal(t, int64(1024*1024*1024), hc.Memory)
	assert.Equal(t, int64(1e9), hc.NanoCPUs)
	assert.Equal(t, int64(256), *hc.PidsLimit)
	assert.Equal(t, int64(256*1024*1024), hc.ShmSize)
	assert.Equal(t, []string{"no-new-privileges"}, hc.SecurityOpt)

	hc = BuildHostConfig(ContainerConfig{MemoryLimit: "512m", CPULimit: 0.5, ShmSize: "1g"})
	assert.Equal(t, int64(512*1024*1024), hc.Memory)
	assert.Equal(t, int64(5e8), hc.NanoCPUs)
	assert.Equal(t, int64(1024*1024*1024), hc.ShmSize)
}

func TestBrowserArgs(t *testing.T) {
	args := BrowserArgs([]string{"--no-sandbox"}, 9333)
	assert.Equal(t, []string{
		"--no-sandbox",
		"--remote-debugging-address=127.0.0.1",
		"--remote-debugging-port=9333",
	}, args)
}

func TestDockerError(t *testing.T) {
	inner := errors.New("inner")
	err := &DockerError{Op: "start", Err: inner, Message: "failed"}
	assert.Equal(t, "docker start: failed: inner", err.Error())
	assert.ErrorIs(t, err, inner)
}
