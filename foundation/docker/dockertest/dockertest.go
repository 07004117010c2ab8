// Package dockertest starts throwaway containers for tests.
package dockertest

import (
	"context"
	"testing"
	"time"

	"github.com/hamidoujand/postgres-agent/foundation/docker"
)

// Container represents the info about the running test container.
type Container struct {
	Id       string
	HostPort string
	Name     string
}

// NewClient connects to the local daemon, skipping the test when none is reachable.
func NewClient(t *testing.T) *docker.Client {
	t.Helper()

	client, err := docker.NewClient("")
	if err != nil {
		t.Skipf("docker client unavailable: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := client.StatusCheck(ctx); err != nil {
		_ = client.Close()
		t.Skipf("docker daemon unreachable: %s", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// StartContainer runs image under name with port published on a random host port.
// The container is removed when the test ends.
func StartContainer(t *testing.T, image string, name string, port int, env map[string]string) Container {
	t.Helper()

	client := NewClient(t)

	//slow machine
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()

	if err := client.PullImage(ctx, image); err != nil {
		t.Fatalf("expected to pull image %q: %s", image, err)
	}

	id, err := client.CreateContainer(ctx, docker.ContainerSpec{
		Image:         image,
		Name:          name,
		ContainerPort: port,
		Env:           env,
	})
	if err != nil {
		t.Fatalf("expected to create container %q: %s", name, err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := client.RemoveContainer(ctx, id); err != nil {
			t.Errorf("expected to remove container %s: %s", id, err)
		}
	})

	if err := client.StartContainer(ctx, id); err != nil {
		t.Fatalf("expected to start container %q: %s", name, err)
	}

	hostPort, err := client.HostPort(ctx, id, port)
	if err != nil {
		t.Fatalf("expected to resolve host port of %q: %s", name, err)
	}

	t.Logf("Name/ID:  %s/%s", name, id)
	t.Logf("Host:Port  %s", hostPort)

	return Container{
		Id:       id,
		HostPort: hostPort,
		Name:     name,
	}
}
