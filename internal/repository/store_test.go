package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/persistence"
)

// Every store test runs against the in-memory implementation and, when
// TEST_POSTGRES_DSN points at a scratch database, against Postgres too.

var baseTime = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type stores struct {
	tickets TicketRepository
	mutes   MuteRepository
	history TicketHistoryRepository
}

type storeFactory func(t *testing.T, clk clock.Clock) stores

func storeFactories(t *testing.T) map[string]storeFactory {
	t.Helper()
	factories := map[string]storeFactory{
		"memory": func(_ *testing.T, clk clock.Clock) stores {
			return stores{
				tickets: NewMemoryTicketRepository(clk),
				mutes:   NewMemoryMuteRepository(clk),
				history: NewMemoryTicketHistoryRepository(clk),
			}
		},
	}
	if pool := testPool(t); pool != nil {
		factories["postgres"] = func(t *testing.T, clk clock.Clock) stores {
			resetTables(t, pool)
			return stores{
				tickets: NewTicketRepository(pool, clk),
				mutes:   NewMuteRepository(pool, clk),
				history: NewTicketHistoryRepository(pool, clk),
			}
		}
	}
	return factories
}

// forEachStore runs fn once per available backend with a fresh fake clock.
func forEachStore(t *testing.T, fn func(t *testing.T, s stores, clk *clock.FakeClock)) {
	t.Helper()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clk := clock.Fake(baseTime)
			fn(t, factory(t, clk), clk)
		})
	}
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		return nil
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, persistence.RunMigrationsFrom(ctx, pool, zap.NewNop(), "../../migrations"))
	return pool
}

func resetTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `TRUNCATE ticket_history, deleted_threads, guild_ticket_counters, mutes, tickets RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE ticket_sequence SET last_value = 0 WHERE id = 1`)
	require.NoError(t, err)
}
