// Package store holds the customer registry (Postgres) and the cross-
// process update fan-out (Redis). Neither persists the ranked index
// itself — that stays memory-resident. Postgres is the durable source of
// truth for which customers exist and what they last scored; Redis lets
// other processes observe committed deltas.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// NewPostgres connects a pooled Postgres client and ensures the customers
// table exists. Connection failure is returned, not logged and not
// fatal — the caller decides whether to run without durability.
func NewPostgres(ctx context.Context, connString string, log *logrus.Entry) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = 50

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS customers (
			customer_id BIGINT PRIMARY KEY,
			score       BIGINT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_customers_score ON customers (score DESC);
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create customers table: %w", err)
	}

	log.Info("connected to postgres")
	return pool, nil
}

// CustomerCount returns the number of rows in the registry.
func CustomerCount(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var count int64
	err := pool.QueryRow(ctx, "SELECT count(*) FROM customers").Scan(&count)
	return count, err
}

// LoadAllScores reads every customer's last-known score, for warm-up
// replay into the ranked index on boot.
func LoadAllScores(ctx context.Context, pool *pgxpool.Pool) (map[int64]int64, error) {
	rows, err := pool.Query(ctx, "SELECT customer_id, score FROM customers")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[int64]int64)
	for rows.Next() {
		var id, score int64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		scores[id] = score
	}
	return scores, rows.Err()
}

// UpsertScore records a customer's current total, creating the customer
// row on first write.
func UpsertScore(ctx context.Context, pool *pgxpool.Pool, customerID, score int64) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO customers (customer_id, score) VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET score = EXCLUDED.score
	`, customerID, score)
	return err
}

// SeedCustomers populates the registry with n synthetic customers spread
// across a representative score range, batch-inserted to avoid one
// round trip per row.
func SeedCustomers(ctx context.Context, pool *pgxpool.Pool, n int) error {
	const batchSize = 1000

	ids := make([]int64, 0, batchSize)
	scores := make([]int64, 0, batchSize)

	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		valStr := ""
		args := make([]interface{}, 0, len(ids)*2)
		argID := 1
		for i := range ids {
			if i > 0 {
				valStr += ","
			}
			valStr += fmt.Sprintf("($%d, $%d)", argID, argID+1)
			args = append(args, ids[i], scores[i])
			argID += 2
		}
		query := "INSERT INTO customers (customer_id, score) VALUES " + valStr + " ON CONFLICT DO NOTHING"
		_, err := pool.Exec(ctx, query, args...)
		ids = ids[:0]
		scores = scores[:0]
		return err
	}

	for i := 1; i <= n; i++ {
		ids = append(ids, int64(i))
		scores = append(scores, int64(100+(i%490_000)))
		if len(ids) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
