package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/moby/moby/api/types/container"
	dockerclient "github.com/moby/moby/client"
)

// ClientInterface is the subset of the Docker API the browser launcher needs.
type ClientInterface interface {
	PullImage(ctx context.Context, cfg ContainerConfig) error
	CreateContainer(ctx context.Context, cfg ContainerConfig, port int) (string, error)
	StartContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	IsRunning(ctx context.Context, id string) (bool, error)
	Close() error
}

type Client struct {
	client *dockerclient.Client
}

func NewClient() (*Client, error) {
	cli, err := dockerclient.New(dockerclient.WithAPIVersionNegotiation(), dockerclient.FromEnv)
	if err != nil {
		return nil, &DockerError{Op: "connect", Err: err, Message: "failed to connect to Docker daemon"}
	}

	ctx := context.Background()
	if _, err := cli.Ping(ctx, dockerclient.PingOptions{NegotiateAPIVersion: true}); err != nil {
		return nil, &DockerError{Op: "ping", Err: err, Message: "Docker daemon not available"}
	}

	return &Client{client: cli}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) PullImage(ctx context.Context, cfg ContainerConfig) error {
	if cfg.PullPolicy == "never" {
		return nil
	}

	resp, err := c.client.ImagePull(ctx, cfg.Image, dockerclient.ImagePullOptions{})
	if err != nil {
		if cfg.PullPolicy == "if-not-present" {
			return nil
		}
		return &DockerError{Op: "pull", Err: err, Message: fmt.Sprintf("failed to pull image %s", cfg.Image)}
	}
	defer resp.Close()

	if err := resp.Wait(ctx); err != nil {
		if cfg.PullPolicy == "if-not-present" {
			return nil
		}
		return &DockerError{Op: "pull", Err: err, Message: fmt.Sprintf("failed to pull image %s", cfg.Image)}
	}

	return nil
}

// CreateContainer creates a browser container on the host network that serves
// the DevTools protocol on port.
func (c *Client) CreateContainer(ctx context.Context, cfg ContainerConfig, port int) (string, error) {
	result, err := c.client.ContainerCreate(ctx, dockerclient.ContainerCreateOptions{
		Image: cfg.Image,
		Config: &container.Config{
			Image:      cfg.Image,
			Entrypoint: cfg.Entrypoint,
			Cmd:        BrowserArgs(cfg.Args, port),
			Labels:     cfg.Labels,
		},
		HostConfig: BuildHostConfig(cfg),
	})
	if err != nil {
		return "", &DockerError{Op: "create", Err: err, Message: "failed to create browser container"}
	}

	return result.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, id string) error {
	_, err := c.client.ContainerStart(ctx, id, dockerclient.ContainerStartOptions{})
	if err != nil {
		return &DockerError{Op: "start", Err: err, Message: fmt.Sprintf("failed to start container %s", id)}
	}
	return nil
}

func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	_, err := c.client.ContainerRemove(ctx, id, dockerclient.ContainerRemoveOptions{Force: true})
	if err != nil {
		return &DockerError{Op: "remove", Err: err, Message: fmt.Sprintf("failed to remove container %s", id)}
	}
	return nil
}

func (c *Client) IsRunning(ctx context.Context, id string) (bool, error) {
	result, err := c.client.ContainerInspect(ctx, id, dockerclient.ContainerInspectOptions{})
	if err != nil {
		return false, &DockerError{Op: "inspect", Err: err, Message: fmt.Sprintf("failed to inspect container %s", id)}
	}
	if result.Container.State == nil {
		return false, nil
	}
	return result.Container.State.Running, nil
}

// BuildHostConfig applies resource limits with the same fallbacks for every
// browser container.
func BuildHostConfig(cfg ContainerConfig) *container.HostConfig {
	memoryLimit := parseMemory(cfg.MemoryLimit)
	if memoryLimit == 0 {
		memoryLimit = 1024 * 1024 * 1024
	}

	cpuLimit := cfg.CPULimit
	if cpuLimit == 0 {
		cpuLimit = 1
	}

	pidsLimit := cfg.PidsLimit
	if pidsLimit == 0 {
		pidsLimit = 256
	}

	shmSize := parseMemory(cfg.ShmSize)
	if shmSize == 0 {
		shmSize = 256 * 1024 * 1024
	}

	securityOpt := cfg.SecurityOpt
	if len(securityOpt) == 0 {
		securityOpt = []string{"no-new-privileges"}
	}

	return &container.HostConfig{
		NetworkMode: container.NetworkMode("host"),
		Resources: container.Resources{
			Memory:    memoryLimit,
			NanoCPUs:  int64(cpuLimit * 1e9),
			PidsLimit: &pidsLimit,
		},
		ShmSize:     shmSize,
		SecurityOpt: securityOpt,
		Tmpfs:       map[string]string{"/tmp": "rw,size=256m"},
	}
}

// BrowserArgs appends the DevTools listener flags to args.
func BrowserArgs(args []string, port int) []string {
	out := make([]string, 0, len(args)+2)
	out = append(out, args...)
	out = append(out,
		"--remote-debugging-address=127.0.0.1",
		"--remote-debugging-port="+strconv.Itoa(port),
	)
	return out
}

func parseMemory(s string) int64 {
	if s == "" {
		return 0
	}

	s = strings.TrimSpace(strings.ToLower(s))

	multiplier := int64(1)
	if strings.HasSuffix(s, "g") {
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "g")
	} else if strings.HasSuffix(s, "m") {
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "m")
	} else if strings.HasSuffix(s, "k") {
		multiplier = 1024
		s = strings.TrimSuffix(s, "k")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return val * multiplier
}
