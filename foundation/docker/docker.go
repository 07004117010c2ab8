// Package docker provides access to a docker daemon for pulling images and managing containers.
package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Image string
	Name  string
	// HostPort is the host side of the binding, 0 lets the daemon pick a free port.
	HostPort      int
	ContainerPort int
	Env           map[string]string
	Health        *HealthCheck
}

// HealthCheck describes the probe the daemon runs inside the container.
type HealthCheck struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	StartPeriod time.Duration
	Retries     int
}

// Container represents a container as listed by the daemon.
type Container struct {
	Id    string
	Names []string
	State string
}

// State represents the runtime state of a container. Health is empty when the
// container has no health probe.
type State struct {
	Status string
	Health string
}

// Client wraps the docker engine API client.
type Client struct {
	api *client.Client
}

// NewClient creates a client for the daemon at host, or for the daemon described by
// the DOCKER_* environment variables when host is empty.
func NewClient(host string) (*Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}

	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	return &Client{api: api}, nil
}

// StatusCheck pings the daemon.
func (c *Client) StatusCheck(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second*5)
		defer cancel()
	}

	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.api.Close()
}

// PullImage pulls the image reference and waits for the pull to finish.
func (c *Client) PullImage(ctx context.Context, ref string) error {
	progress, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer progress.Close()

	//the pull only completes once the progress stream is consumed.
	if _, err := io.Copy(io.Discard, progress); err != nil {
		return fmt.Errorf("pull image %s: reading progress: %w", ref, err)
	}
	return nil
}

// CreateContainer creates a container from spec and returns its id.
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(spec.ContainerPort))
	if err != nil {
		return "", fmt.Errorf("container port %d: %w", spec.ContainerPort, err)
	}

	hostPort := ""
	if spec.HostPort > 0 {
		hostPort = strconv.Itoa(spec.HostPort)
	}

	env := make([]string, 0, len(spec.Env))
	for key, val := range spec.Env {
		env = append(env, key+"="+val)
	}

	conf := container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}

	if spec.Health != nil {
		conf.Healthcheck = &container.HealthConfig{
			Test:        spec.Health.Test,
			Interval:    spec.Health.Interval,
			Timeout:     spec.Health.Timeout,
			StartPeriod: spec.Health.StartPeriod,
			Retries:     spec.Health.Retries,
		}
	}

	hostConf := container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "", HostPort: hostPort}},
		},
	}

	resp, err := c.api.ContainerCreate(ctx, &conf, &hostConf, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}

	return resp.ID, nil
}

// StartContainer starts the container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", id, err)
	}
	return nil
}

// StopContainer stops the container using the daemon's default grace period.
func (c *Client) StopContainer(ctx context.Context, id string) error {
	if err := c.api.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

// RemoveContainer force removes the container together with its anonymous volumes.
func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	if err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// ListContainers returns every container, running or not, whose name matches name.
// Matching follows the daemon's name filter, which is not anchored.
func (c *Client) ListContainers(ctx context.Context, name string) ([]Container, error) {
	list, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers %q: %w", name, err)
	}

	containers := make([]Container, len(list))
	for i, item := range list {
		names := make([]string, len(item.Names))
		for j, n := range item.Names {
			names[j] = strings.TrimPrefix(n, "/")
		}

		containers[i] = Container{
			Id:    item.ID,
			Names: names,
			State: item.State,
		}
	}
	return containers, nil
}

// InspectContainer returns the runtime state of the container.
func (c *Client) InspectContainer(ctx context.Context, id string) (State, error) {
	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return State{}, fmt.Errorf("inspect container %s: %w", id, err)
	}

	if info.State == nil {
		return State{}, fmt.Errorf("inspect container %s: no state reported", id)
	}

	state := State{Status: info.State.Status}
	if info.State.Health != nil {
		state.Health = info.State.Health.Status
	}
	return state, nil
}

// HostPort returns the host:port the daemon bound for the container's tcp port.
func (c *Client) HostPort(ctx context.Context, id string, containerPort int) (string, error) {
	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspect container %s: %w", id, err)
	}

	if info.NetworkSettings == nil {
		return "", fmt.Errorf("container %s: no network settings", id)
	}

	port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
	if err != nil {
		return "", fmt.Errorf("container port %d: %w", containerPort, err)
	}

	for _, binding := range info.NetworkSettings.Ports[port] {
		if binding.HostIP == "::" {
			continue
		}

		host := binding.HostIP
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		return net.JoinHostPort(host, binding.HostPort), nil
	}

	return "", fmt.Errorf("could not locate ip/port for container %s", id)
}
