// Package dbtest installs a real postgres through the install flow for testing.
package dbtest

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/hamidoujand/postgres-agent/business/domain/postgres"
	"github.com/hamidoujand/postgres-agent/business/domain/task"
	"github.com/hamidoujand/postgres-agent/foundation/docker"
	"github.com/hamidoujand/postgres-agent/foundation/docker/dockertest"
	"github.com/jackc/pgx/v5"
)

const password = "password"

// Database is a postgres installed by the install flow.
type Database struct {
	Provisioner *postgres.Provisioner
	Runtime     *docker.Client
	Result      task.InstallPostgresResult
	Conn        *pgx.Conn
}

// InstallPostgres runs the install flow for version under containerName against the
// local daemon and connects to the result. The test is skipped without a daemon.
func InstallPostgres(t *testing.T, containerName string, version string) Database {
	t.Helper()

	client := dockertest.NewClient(t)

	p := postgres.NewProvisioner(postgres.Config{
		ContainerName: containerName,
		Password:      password,
	})

	port := freePort(t)

	//slow machine
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*5)
	defer cancel()

	result, err := p.Install(ctx, client, task.InstallPostgres{Version: version, Port: port})
	if err != nil {
		t.Fatalf("expected to install postgres %s: %s", version, err)
	}

	t.Logf("Name/ID:  %s/%s", containerName, result.ContainerId)
	t.Logf("Host:Port  127.0.0.1:%d", port)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := client.RemoveContainer(ctx, result.ContainerId); err != nil {
			t.Errorf("expected to remove container %s: %s", result.ContainerId, err)
		}
	})

	dsn := fmt.Sprintf("postgres://postgres:%s@127.0.0.1:%d/postgres?sslmode=disable", password, port)

	var conn *pgx.Conn
	for attempt := 1; ; attempt++ {
		conn, err = pgx.Connect(ctx, dsn)
		if err == nil {
			err = conn.Ping(ctx)
			if err == nil {
				break
			}
			_ = conn.Close(ctx)
		}

		select {
		case <-ctx.Done():
			t.Fatalf("expected postgres to accept connections: %s", err)
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}

	t.Cleanup(func() {
		_ = conn.Close(context.Background())
	})

	return Database{
		Provisioner: p,
		Runtime:     client,
		Result:      result,
		Conn:        conn,
	}
}

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("expected a free port: %s", err)
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}
