// internal/journal/journal.go
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the coordinator pushes action records
// onto when no queue name is configured.
const DefaultQueueName = "daifugo_actions"

// ActionRecord is one room mutation as seen by an external consumer
// (replay tooling, analytics). Payload carries action-specific fields.
type ActionRecord struct {
	RoomCode  string                 `json:"room_code"`
	ActorID   string                 `json:"actor_id,omitempty"`
	Action    string                 `json:"action"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Journal is a fire-and-forget action log backed by a Redis list. A nil
// *Journal is valid and drops every record, so gameplay never depends on
// Redis being configured or reachable.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect dials Redis at addr and verifies the connection with a ping.
// queue may be empty to use DefaultQueueName.
func Connect(addr string, db int, queue string) (*Journal, error) {
	if queue == "" {
		queue = DefaultQueueName
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Journal{rdb: rdb, queue: queue}, nil
}

// Record serializes the record and pushes it onto the queue. Errors are
// returned for callers that care; rooms invoke this asynchronously and
// only log failures.
func (j *Journal) Record(ctx context.Context, rec ActionRecord) error {
	if j == nil {
		return nil
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.rdb.Close()
}
