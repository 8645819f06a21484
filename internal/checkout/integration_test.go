//go:build integration

package checkout_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"ms-checkout/internal/apperrors"
	"ms-checkout/internal/checkout"
	"ms-checkout/internal/database/migrations"
	"ms-checkout/internal/ledger"
	"ms-checkout/internal/ledger/ledgertest"
	"ms-checkout/internal/logger"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkout",
				"POSTGRES_PASSWORD": "checkout",
				"POSTGRES_DB":       "checkout",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://checkout:checkout@%s:%s/checkout?sslmode=disable", host, port.Port())
}

func openMigrated(t *testing.T) *ledger.DB {
	t.Helper()
	dsn := startPostgres(t)
	log := logger.NewWithWriter(io.Discard)

	migrationDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	runner := migrations.NewRunner(migrationDB, migrations.MigrateOptions{MigrationsDir: "../../migrations"}, log)
	require.NoError(t, runner.RunMigrations())
	require.NoError(t, runner.Close())

	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return ledger.New(bunDB)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	db := openMigrated(t)
	event := ledgertest.SeedEvent(t, db, "org-1", 3, 1000)

	svc := checkout.NewService(db, nil, nil, nil, logger.NewWithWriter(io.Discard))

	const buyers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, soldOut := 0, 0

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), checkout.CheckoutRequest{
				UserID:         fmt.Sprintf("user-%d", i),
				EventID:        event.ID,
				TicketQuantity: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperrors.ErrInsufficientSeats):
				soldOut++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, buyers-3, soldOut)

	got, err := db.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingSeats)
}

func TestConcurrentPointSpendIsSerialised(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	db := openMigrated(t)
	event := ledgertest.SeedEvent(t, db, "org-1", 10, 1000)
	ledgertest.SeedPoint(t, db, "user-1", 1000, time.Now().Add(24*time.Hour))

	svc := checkout.NewService(db, nil, nil, nil, logger.NewWithWriter(io.Discard))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var spent int64
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := svc.Checkout(context.Background(), checkout.CheckoutRequest{
				UserID:         "user-1",
				EventID:        event.ID,
				TicketQuantity: 1,
				Points:         600,
			})
			if err != nil {
				return
			}
			mu.Lock()
			spent += tx.UsedPoint
			mu.Unlock()
		}()
	}
	wg.Wait()

	balance, err := checkout.Balance(context.Background(), db, "user-1", time.Now())
	require.NoError(t, err)
	assert.LessOrEqual(t, spent, int64(1000))
	assert.Equal(t, int64(1000)-spent, balance.Total)
}
