// Package testutil starts the backing services used by integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/finknow/internal/database"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	qdrantImage   = "qdrant/qdrant:v1.13.4"
	rustfsImage   = "rustfs/rustfs:latest"

	postgresCredential = "finknow"
	RustFSAccessKey    = "rustfsadmin"
	RustFSSecretKey    = "rustfsadmin"
)

// service is a started container and the host address of its single exposed port.
type service struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// Terminate stops and removes the container.
func (s *service) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(s.Container)
}

func (s *service) httpURL() string {
	return fmt.Sprintf("http://%s:%s", s.Host, s.Port)
}

func startService(ctx context.Context, t *testing.T, name string, req testcontainers.ContainerRequest) service {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s container: %v", name, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", name, err)
	}
	port, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", name, err)
	}

	return service{Container: container, Host: host, Port: port.Port()}
}

// PostgresContainer is a pgvector-enabled PostgreSQL.
type PostgresContainer struct{ service }

// NewPostgresContainer starts PostgreSQL with the pgvector extension available.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	svc := startService(ctx, t, "postgres", testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresCredential,
			"POSTGRES_PASSWORD": postgresCredential,
			"POSTGRES_DB":       postgresCredential,
		},
		// The server restarts once after initdb, so the ready line shows up twice.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	})
	return &PostgresContainer{svc}
}

// ConnectionString returns a DSN for the container's database.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%[1]s:%[1]s@%s:%s/%[1]s?sslmode=disable", postgresCredential, pc.Host, pc.Port)
}

// QdrantContainer is a single-node Qdrant.
type QdrantContainer struct{ service }

// NewQdrantContainer starts Qdrant and waits for its readiness probe.
func NewQdrantContainer(ctx context.Context, t *testing.T) *QdrantContainer {
	svc := startService(ctx, t, "qdrant", testcontainers.ContainerRequest{
		Image:        qdrantImage,
		ExposedPorts: []string{"6333/tcp"},
		WaitingFor:   wait.ForHTTP("/readyz").WithPort("6333/tcp").WithStartupTimeout(60 * time.Second),
	})
	return &QdrantContainer{svc}
}

// URL returns the Qdrant REST endpoint.
func (qc *QdrantContainer) URL() string {
	return qc.httpURL()
}

// RustFSContainer is an S3-compatible object store.
type RustFSContainer struct{ service }

// NewRustFSContainer starts RustFS with RustFSAccessKey and RustFSSecretKey.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	svc := startService(ctx, t, "rustfs", testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})
	return &RustFSContainer{svc}
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return rc.httpURL()
}

// NewTestPool connects to pc and applies the migrations in migrationsDir with the same migrator the
// server uses.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		t.Fatalf("failed to resolve migrations dir: %v", err)
	}

	dsn := pc.ConnectionString()
	var pool *pgxpool.Pool
	connect := func() error {
		p, err := database.NewPool(ctx, database.Config{URL: dsn, MaxConns: 4})
		if err != nil {
			return err
		}
		pool = p
		return nil
	}
	retry := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(500*time.Millisecond), 10), ctx)
	if err := backoff.Retry(connect, retry); err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := database.Migrate(dsn, "file://"+dir); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pool
}

// DropCollections drops every registered collection table so each test starts from an empty registry.
func DropCollections(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `SELECT name FROM vector_collections`)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range names {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("failed to drop %s: %w", name, err)
		}
	}

	_, err = pool.Exec(ctx, `TRUNCATE TABLE vector_collections`)
	return err
}
