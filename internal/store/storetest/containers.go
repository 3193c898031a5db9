// Package storetest starts throwaway PostgreSQL and Redis containers for
// integration tests.
package storetest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/devrev/dispatchboard/internal/config"
	"github.com/jackc/pgx/v5"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"
)

// RequireDocker skips the test unless DOCKER_AVAILABLE is set and the test
// run is not -short
func RequireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if v := os.Getenv("DOCKER_AVAILABLE"); v != "true" && v != "1" {
		t.Skip("docker not available")
	}
}

// StartPostgres runs a PostgreSQL container for the lifetime of t and returns
// a database config pointing at it
func StartPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	RequireDocker(t)

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "dispatchboard",
			"POSTGRES_USER":     "dispatcher",
			"POSTGRES_PASSWORD": "dispatcher",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("unable to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	cfg := config.DefaultConfig().Database
	cfg.Host = host
	cfg.Port = port.Int()
	cfg.Database = "dispatchboard"
	cfg.User = "dispatcher"
	cfg.Password = "dispatcher"
	cfg.SSLMode = "disable"
	return cfg
}

// StartRedis runs a Redis container for the lifetime of t and returns a
// Redis config pointing at it
func StartRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	RequireDocker(t)

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("unable to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	cfg := config.DefaultConfig().Redis
	cfg.Host = host
	cfg.Port = port.Int()
	cfg.KeyPrefix = "dispatchboard-test"
	return cfg
}

// Truncate empties the board tables behind cfg
func Truncate(t *testing.T, cfg config.DatabaseConfig) {
	t.Helper()

	ctx := context.Background()
	connString := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect for truncate: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `TRUNCATE requests, masters`); err != nil {
		t.Fatalf("failed to truncate board tables: %v", err)
	}
}
