// Package postgres provides the flows that install, start and stop the postgres
// container and the synchronous status check.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/business/flow"
	"github.com/hamidoujand/postgres-agent/foundation/docker"
)

// ErrContainerNotFound is returned when no container matches the reserved name.
var ErrContainerNotFound = errors.New("container not found")

// MultipleContainersError is returned when more than one container matches the
// reserved name.
type MultipleContainersError struct {
	Name string
	Ids  []string
}

func (e *MultipleContainersError) Error() string {
	return fmt.Sprintf("multiple %s containers found: %s", e.Name, strings.Join(e.Ids, ", "))
}

// Config holds the settings shared by every postgres flow.
type Config struct {
	ContainerName string
	Image         string
	Password      string
	InternalPort  int
}

// Provisioner runs the postgres flows against a container runtime.
type Provisioner struct {
	conf Config
}

// NewProvisioner creates a provisioner, filling in defaults for empty fields.
func NewProvisioner(conf Config) *Provisioner {
	if conf.ContainerName == "" {
		conf.ContainerName = "postgres"
	}
	if conf.Image == "" {
		conf.Image = "postgres"
	}
	if conf.InternalPort == 0 {
		conf.InternalPort = 5432
	}

	return &Provisioner{conf: conf}
}

// ContainerName returns the reserved container name.
func (p *Provisioner) ContainerName() string {
	return p.conf.ContainerName
}

// Flows returns the flow for every postgres task type. All of them act on the
// reserved container.
func (p *Provisioner) Flows() map[task.Type]flow.Flow {
	return map[task.Type]flow.Flow{
		task.TypeInstallPostgres: flow.Func[task.InstallPostgres, task.InstallPostgresResult]{
			Target: p.conf.ContainerName,
			Fn:     p.Install,
		},
		task.TypeStartPostgres: flow.Func[task.StartPostgres, task.StartPostgresResult]{
			Target: p.conf.ContainerName,
			Fn:     p.Start,
		},
		task.TypeStopPostgres: flow.Func[task.StopPostgres, task.StopPostgresResult]{
			Target: p.conf.ContainerName,
			Fn:     p.Stop,
		},
	}
}

// Install pulls the requested version, creates the reserved container bound to the
// requested host port and starts it.
func (p *Provisioner) Install(ctx context.Context, rt flow.Runtime, in task.InstallPostgres) (task.InstallPostgresResult, error) {
	ref := p.conf.Image + ":" + in.Version

	if err := rt.PullImage(ctx, ref); err != nil {
		return task.InstallPostgresResult{}, fmt.Errorf("install: %w", err)
	}

	spec := docker.ContainerSpec{
		Image:         ref,
		Name:          p.conf.ContainerName,
		HostPort:      in.Port,
		ContainerPort: p.conf.InternalPort,
		Env: map[string]string{
			"POSTGRES_PASSWORD": p.conf.Password,
		},
		Health: &docker.HealthCheck{
			Test:     []string{"CMD-SHELL", "pg_isready -U postgres"},
			Interval: 5 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  5,
		},
	}

	id, err := rt.CreateContainer(ctx, spec)
	if err != nil {
		return task.InstallPostgresResult{}, fmt.Errorf("install: %w", err)
	}

	if err := rt.StartContainer(ctx, id); err != nil {
		return task.InstallPostgresResult{}, fmt.Errorf("install: %w", err)
	}

	return task.InstallPostgresResult{
		ContainerId: id,
		Image:       ref,
	}, nil
}

// Start starts the reserved container.
func (p *Provisioner) Start(ctx context.Context, rt flow.Runtime, _ task.StartPostgres) (task.StartPostgresResult, error) {
	c, err := Resolve(ctx, rt, p.conf.ContainerName)
	if err != nil {
		return task.StartPostgresResult{}, fmt.Errorf("start: %w", err)
	}

	if err := rt.StartContainer(ctx, c.Id); err != nil {
		return task.StartPostgresResult{}, fmt.Errorf("start: %w", err)
	}

	return task.StartPostgresResult{ContainerId: c.Id}, nil
}

// Stop stops the reserved container.
func (p *Provisioner) Stop(ctx context.Context, rt flow.Runtime, _ task.StopPostgres) (task.StopPostgresResult, error) {
	c, err := Resolve(ctx, rt, p.conf.ContainerName)
	if err != nil {
		return task.StopPostgresResult{}, fmt.Errorf("stop: %w", err)
	}

	if err := rt.StopContainer(ctx, c.Id); err != nil {
		return task.StopPostgresResult{}, fmt.Errorf("stop: %w", err)
	}

	return task.StopPostgresResult{ContainerId: c.Id}, nil
}

// CheckStatus resolves the reserved container and classifies its state. A missing
// container is reported as StatusNotCreated, not as an error.
func (p *Provisioner) CheckStatus(ctx context.Context, rt flow.Runtime) (Status, error) {
	c, err := Resolve(ctx, rt, p.conf.ContainerName)
	if err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return StatusNotCreated, nil
		}
		return StatusFailed, fmt.Errorf("check status: %w", err)
	}

	state, err := rt.InspectContainer(ctx, c.Id)
	if err != nil {
		return StatusFailed, fmt.Errorf("check status: %w", err)
	}

	return Classify(state.Status, state.Health), nil
}

// Resolve returns the single container matching name. Matching is the runtime's
// name filter, so containers whose names merely contain name are matched as well.
func Resolve(ctx context.Context, rt flow.Runtime, name string) (docker.Container, error) {
	containers, err := rt.ListContainers(ctx, name)
	if err != nil {
		return docker.Container{}, fmt.Errorf("resolve: %w", err)
	}

	switch len(containers) {
	case 0:
		return docker.Container{}, fmt.Errorf("%w: %s", ErrContainerNotFound, name)
	case 1:
		return containers[0], nil
	}

	ids := make([]string, len(containers))
	for i, c := range containers {
		ids[i] = c.Id
	}
	return docker.Container{}, &MultipleContainersError{Name: name, Ids: ids}
}
