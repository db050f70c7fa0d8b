// Command server boots the leaderboard HTTP API: it loads configuration,
// connects to Postgres and Redis (best-effort), constructs the
// configured ranked-index implementation, warms it from the customer
// registry, and serves gin routes.
package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"leaderboard/internal/config"
	"leaderboard/internal/httpapi"
	"leaderboard/internal/leaderboard"
	"leaderboard/internal/store"
)

const seedCustomerCount = 10_000

func main() {
	cfg := config.Load()

	log := logrus.New()
	if cfg.Env == "dev" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	entry := logrus.NewEntry(log)

	ctx := context.Background()

	rdb, err := store.NewRedis(ctx, cfg.RedisURL, cfg.RedisHost, entry)
	if err != nil {
		entry.WithError(err).Warn("continuing without redis")
		rdb = nil
	}

	pg, err := store.NewPostgres(ctx, cfg.PostgresConnString(), entry)
	if err != nil {
		entry.WithError(err).Warn("continuing without postgres (warming up empty)")
		pg = nil
	}

	idx := newIndex(cfg, entry)
	defer idx.Close()

	if pg != nil {
		// Must complete before the server starts accepting traffic:
		// BulkLoad does not support running concurrently with Update.
		warmUp(ctx, pg, idx, entry)
	}

	srv, err := httpapi.NewServer(idx, pg, rdb, entry)
	if err != nil {
		log.Fatalf("failed to construct server: %v", err)
	}

	r := srv.Engine()
	entry.Infof("server running on port %s", cfg.Port)
	if err := r.Run(fmt.Sprintf(":%s", cfg.Port)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func newIndex(cfg config.Config, log *logrus.Entry) leaderboard.Index {
	switch cfg.IndexImpl {
	case config.IndexSnapshot:
		log.Info("running SnapshotIndex")
		return leaderboard.NewSnapshotIndex(cfg.SnapshotTimeSliceMS, log)
	default:
		log.Info("running BucketedIndex")
		return leaderboard.NewBucketedIndex()
	}
}

// warmUp seeds the customer registry if empty, then replays every
// stored score into the ranked index via BulkLoad — not Update, since
// stored scores are arbitrary totals rather than bounded deltas, and
// Update's cross-bucket move logic assumes every call crosses at most
// one bucket boundary.
func warmUp(ctx context.Context, pg *pgxpool.Pool, idx leaderboard.Index, log *logrus.Entry) {
	count, err := store.CustomerCount(ctx, pg)
	if err != nil {
		log.WithError(err).Warn("failed to count customers")
		return
	}

	if count == 0 {
		log.Infof("seeding %d synthetic customers", seedCustomerCount)
		if err := store.SeedCustomers(ctx, pg, seedCustomerCount); err != nil {
			log.WithError(err).Warn("failed to seed customers")
			return
		}
	}

	scores, err := store.LoadAllScores(ctx, pg)
	if err != nil {
		log.WithError(err).Warn("failed to load customer scores")
		return
	}
	idx.BulkLoad(scores)
	log.Infof("warmed up ranked index from %d customers", len(scores))
}
