// Package flowtest provides an in-memory container runtime for exercising flows.
package flowtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hamidoujand/postgres-agent/foundation/docker"
)

// Runtime mimics a docker daemon in memory. The zero value is not usable, use New.
type Runtime struct {
	mu         sync.Mutex
	containers map[string]*container
	order      []string
	pulled     []string
	calls      []string

	// Errs forces the named operation ("pull", "create", "start", "stop", "list",
	// "inspect") to fail with the given error.
	Errs map[string]error

	// Hook, when set, runs at the start of every operation, outside the lock.
	Hook func(ctx context.Context, op string) error
}

type container struct {
	id     string
	name   string
	spec   docker.ContainerSpec
	status string
	health string
}

// New creates an empty runtime.
func New() *Runtime {
	return &Runtime{
		containers: make(map[string]*container),
		Errs:       make(map[string]error),
	}
}

// AddContainer registers an existing container and returns its id.
func (r *Runtime) AddContainer(name string, status string, health string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	r.containers[id] = &container{
		id:     id,
		name:   name,
		status: status,
		health: health,
	}
	r.order = append(r.order, id)
	return id
}

// SetState overrides the state of a container.
func (r *Runtime) SetState(id string, status string, health string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.containers[id]; ok {
		c.status = status
		c.health = health
	}
}

// Status returns the status of a container, empty when unknown.
func (r *Runtime) Status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.containers[id]; ok {
		return c.status
	}
	return ""
}

// Spec returns the spec the container was created with.
func (r *Runtime) Spec(id string) (docker.ContainerSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[id]
	if !ok {
		return docker.ContainerSpec{}, false
	}
	return c.spec, true
}

// Pulled returns the image references pulled so far.
func (r *Runtime) Pulled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pulled...)
}

// Calls returns the operations invoked so far, in order.
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Runtime) enter(ctx context.Context, op string) error {
	if r.Hook != nil {
		if err := r.Hook(ctx, op); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, op)
	if err := r.Errs[op]; err != nil {
		return err
	}
	return nil
}

// PullImage implements flow.Runtime.
func (r *Runtime) PullImage(ctx context.Context, ref string) error {
	if err := r.enter(ctx, "pull"); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulled = append(r.pulled, ref)
	return nil
}

// CreateContainer implements flow.Runtime. Names are unique, as with docker.
func (r *Runtime) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	if err := r.enter(ctx, "create"); err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.containers {
		if c.name == spec.Name {
			return "", fmt.Errorf("create container %s: conflict: the container name %q is already in use by container %q", spec.Name, "/"+spec.Name, c.id)
		}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	r.containers[id] = &container{
		id:     id,
		name:   spec.Name,
		spec:   spec,
		status: "created",
	}
	r.order = append(r.order, id)
	return id, nil
}

// StartContainer implements flow.Runtime.
func (r *Runtime) StartContainer(ctx context.Context, id string) error {
	if err := r.enter(ctx, "start"); err != nil {
		return fmt.Errorf("start container %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[id]
	if !ok {
		return fmt.Errorf("start container %s: no such container", id)
	}

	c.status = "running"
	if c.spec.Health != nil {
		c.health = "starting"
	}
	return nil
}

// StopContainer implements flow.Runtime.
func (r *Runtime) StopContainer(ctx context.Context, id string) error {
	if err := r.enter(ctx, "stop"); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[id]
	if !ok {
		return fmt.Errorf("stop container %s: no such container", id)
	}

	c.status = "exited"
	c.health = ""
	return nil
}

// ListContainers implements flow.Runtime with the daemon's unanchored name matching.
func (r *Runtime) ListContainers(ctx context.Context, name string) ([]docker.Container, error) {
	if err := r.enter(ctx, "list"); err != nil {
		return nil, fmt.Errorf("list containers %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var results []docker.Container
	for _, id := range r.order {
		c := r.containers[id]
		if strings.Contains(c.name, name) {
			results = append(results, docker.Container{
				Id:    c.id,
				Names: []string{c.name},
				State: c.status,
			})
		}
	}
	return results, nil
}

// InspectContainer implements flow.Runtime.
func (r *Runtime) InspectContainer(ctx context.Context, id string) (docker.State, error) {
	if err := r.enter(ctx, "inspect"); err != nil {
		return docker.State{}, fmt.Errorf("inspect container %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.containers[id]
	if !ok {
		return docker.State{}, fmt.Errorf("inspect container %s: no such container", id)
	}
	return docker.State{Status: c.status, Health: c.health}, nil
}
