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
)

// Rdb is the global Redis client. Connect it once at application startup.
// It may stay nil (tests, local runs without Redis); every helper here is
// a no-op in that case.
var Rdb *redis.Client

// DefaultQueueName is the Redis list (queue) name for match action logs.
var DefaultQueueName = "virucide_actions"

// revokedKeyPrefix namespaces the token denylist.
const revokedKeyPrefix = "virucide:revoked:"

// ActionRecord holds the minimal info needed by the out-of-process
// historian consuming the action queue.
type ActionRecord struct {
	MatchCode string                 `json:"match_code"`
	Index     int                    `json:"action_index"`
	ActorID   uuid.UUID              `json:"actor_user_id"`
	Type      string                 `json:"action_type"`
	Payload   map[string]interface{} `json:"action_payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishAction serializes the record to JSON and pushes it to the action
// queue. Quick network send only; callers fire it from a goroutine.
func PublishAction(ctx context.Context, record ActionRecord) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}

	queueName := getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

// RevokeToken puts a token on the denylist until it would have expired
// anyway.
func RevokeToken(ctx context.Context, token string, ttl time.Duration) error {
	if Rdb == nil || ttl <= 0 {
		return nil
	}
	if err := Rdb.Set(ctx, revokedKeyPrefix+token, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked checks the denylist. Without a Redis connection nothing
// is ever revoked.
func IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	if Rdb == nil {
		return false, nil
	}
	n, err := Rdb.Exists(ctx, revokedKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
