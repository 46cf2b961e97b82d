package checkpoint

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"cepcore/pkg/cep"
)

// setupTestDatabase spins up a disposable Postgres container, mirroring
// go-crablet's testcontainers-based test setup.
func setupTestDatabase(ctx context.Context) (*pgxpool.Pool, testcontainers.Container, error) {
	password, err := generateRandomPassword(16)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate password: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17.5-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env:          map[string]string{"POSTGRES_PASSWORD": password},
		WaitingFor:   wait.ForListeningPort("5432/tcp"),
	}

	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, err
	}

	host, err := postgresC.Host(ctx)
	if err != nil {
		return nil, nil, err
	}
	port, err := postgresC.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, err
	}

	dsn := fmt.Sprintf("postgres://postgres:%s@%s:%s/postgres?sslmode=disable", password, host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pool, postgresC, nil
}

func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

// TestStoreArchivesExpiredStateEvents requires Docker and is skipped under
// -short, matching the cost profile of go-crablet's own testcontainers
// suite.
func TestStoreArchivesExpiredStateEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a Postgres testcontainer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, container, err := setupTestDatabase(ctx)
	require.NoError(t, err)
	defer pool.Close()
	defer container.Terminate(ctx)

	store, err := NewStore(ctx, pool)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))

	se := cep.NewStateEvent(42)
	se.SetEvent(0, cep.NewStreamEvent(1000, []cep.AttributeValue{"a"}))
	se.EventType = cep.EventTypeExpired

	require.NoError(t, store.Archive(ctx, se, 2000))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM cep_expired_checkpoints WHERE id = $1", se.ID).Scan(&count))
	require.Equal(t, 1, count)
}
