// Package persistence selects the ledger implementation named by configuration.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/config"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/persistence/memory"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/persistence/postgres"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/persistence/sqlite"
)

// Store is an opened ledger plus the resources behind it.
type Store struct {
	Ledger domain.Ledger
	// Pool is set only for the postgres driver; the outbox runs off it.
	Pool  *pgxpool.Pool
	close func()
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the configured ledger. When migrate is set the schema is
// applied first.
func Open(ctx context.Context, cfg config.Config, migrate bool) (*Store, error) {
	switch cfg.LedgerDriver {
	case config.DriverMemory:
		return &Store{Ledger: memory.NewLedger()}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		return &Store{Ledger: sqlite.NewLedger(db), close: func() { db.Close() }}, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return &Store{Ledger: postgres.NewLedger(pool), Pool: pool, close: pool.Close}, nil

	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.LedgerDriver)
	}
}
