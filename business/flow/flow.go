// Package flow maps task types to the operations that execute them.
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/foundation/docker"
)

// ErrNoFlow is returned when no flow is registered for a task type.
var ErrNoFlow = errors.New("no flow defined")

// Runtime is the container runtime a flow operates against.
type Runtime interface {
	PullImage(ctx context.Context, ref string) error
	CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	ListContainers(ctx context.Context, name string) ([]docker.Container, error)
	InspectContainer(ctx context.Context, id string) (docker.State, error)
}

// Context is what a flow gets to work with: the task it runs for and the runtime handle.
type Context struct {
	Task    task.Task
	Runtime Runtime
}

// Flow is the operation executed for one task type.
type Flow interface {
	// Resource names the external resource the flow acts on. Flows naming the same
	// resource are never run at the same time.
	Resource() string
	Run(ctx context.Context, fc Context) (task.Result, error)
}

// Func adapts a function over one concrete input and result pair into a Flow.
type Func[I task.Input, R task.Result] struct {
	Target string
	Fn     func(ctx context.Context, rt Runtime, in I) (R, error)
}

// Resource implements Flow.
func (f Func[I, R]) Resource() string {
	return f.Target
}

// Run implements Flow.
func (f Func[I, R]) Run(ctx context.Context, fc Context) (task.Result, error) {
	in, ok := fc.Task.Input.(I)
	if !ok {
		var want I
		return nil, fmt.Errorf("task %s: input %T does not match flow input %T", fc.Task.Id, fc.Task.Input, want)
	}

	result, err := f.Fn(ctx, fc.Runtime, in)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Registry is a read-only mapping from task type to flow.
type Registry struct {
	flows map[task.Type]Flow
}

// NewRegistry creates a registry holding a copy of flows.
func NewRegistry(flows map[task.Type]Flow) *Registry {
	m := make(map[task.Type]Flow, len(flows))
	for typ, f := range flows {
		m[typ] = f
	}
	return &Registry{flows: m}
}

// Lookup returns the flow for the task type or ErrNoFlow.
func (r *Registry) Lookup(typ task.Type) (Flow, error) {
	f, ok := r.flows[typ]
	if !ok {
		return nil, fmt.Errorf("%w for task type %s", ErrNoFlow, typ)
	}
	return f, nil
}

// Len returns the number of registered task types.
func (r *Registry) Len() int {
	return len(r.flows)
}
