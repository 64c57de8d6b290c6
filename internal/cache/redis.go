// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Rdb is the shared Redis client. Nil when no cache is configured; callers
// must check before publishing.
var Rdb *redis.Client

// actionQueueKey is the list every room action is pushed onto for external
// consumers (spectator feeds, replay tooling).
const actionQueueKey = "uno_actions"

// RoomActionRecord is one gameplay action as it appears on the feed.
type RoomActionRecord struct {
	RoomCode    string                 `json:"roomCode"`
	ActionIndex int                    `json:"actionIndex"`
	PlayerID    uuid.UUID              `json:"playerId"`
	ActionType  string                 `json:"actionType"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// ConnectRedis initializes Rdb from REDIS_ADDR and REDIS_DB and verifies the
// connection with a ping.
func ConnectRedis(ctx context.Context) error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	db := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", addr, err)
	}

	Rdb = client
	logrus.WithFields(logrus.Fields{"addr": addr, "db": db}).Info("connected to redis")
	return nil
}

// PublishRoomAction appends rec to the action feed.
func PublishRoomAction(ctx context.Context, rec RoomActionRecord) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal room action: %w", err)
	}
	if err := Rdb.RPush(ctx, actionQueueKey, data).Err(); err != nil {
		return fmt.Errorf("rpush room action: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
