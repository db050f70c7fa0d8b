package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// UpdatesChannel is the Redis pub/sub channel score updates are published
// on, as "customerId:newScore" messages carrying the new total, for other
// processes watching the leaderboard to observe without reconstructing
// the ranked index itself.
const UpdatesChannel = "leaderboard:updates"

// NewRedis builds a client from REDIS_URL if set, else REDIS_HOST, and
// pings it once to surface connection problems early (non-fatally).
func NewRedis(ctx context.Context, redisURL, redisHost string, log *logrus.Entry) (*redis.Client, error) {
	var opts *redis.Options
	var err error

	if redisURL != "" {
		opts, err = redis.ParseURL(redisURL)
		if err != nil {
			log.WithError(err).Warn("failed to parse REDIS_URL")
		}
	}
	if opts == nil {
		opts = &redis.Options{Addr: fmt.Sprintf("%s:6379", redisHost)}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("connected to redis")
	return client, nil
}

// PublishScoreUpdate notifies subscribers of a committed score change.
func PublishScoreUpdate(ctx context.Context, client *redis.Client, customerID, newScore int64) error {
	if client == nil {
		return nil
	}
	return client.Publish(ctx, UpdatesChannel, fmt.Sprintf("%d:%d", customerID, newScore)).Err()
}
