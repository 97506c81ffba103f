package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// StreamClient is the subset of the redis client used by RedisLog.
type StreamClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	XRange(ctx context.Context, stream, start, stop string) *redis.XMessageSliceCmd
}

// RedisLog appends session messages to a single capped redis stream. Every
// entry carries the session id so readers can filter a session's messages.
type RedisLog struct {
	client StreamClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewRedisLog(client StreamClient, stream string, maxLen int64) *RedisLog {
	return &RedisLog{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: slog.Default().With("component", "redis_log"),
	}
}

func (l *RedisLog) Append(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			"session_id": m.SessionID,
			"type":       string(m.Type),
			"data":       string(data),
		},
	}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}

	if _, err := l.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (l *RedisLog) List(ctx context.Context, sessionID string) ([]Message, error) {
	entries, err := l.client.XRange(ctx, l.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	var out []Message
	for _, entry := range entries {
		if id, _ := entry.Values["session_id"].(string); id != sessionID {
			continue
		}
		raw, ok := entry.Values["data"].(string)
		if !ok {
			l.logger.Warn("stream entry without data", "id", entry.ID)
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			l.logger.Warn("undecodable stream entry", "id", entry.ID, "error", err)
			continue
		}
		out = append(out, m)
	}

	if len(out) == 0 {
		return nil, ErrNoMessages
	}
	return out, nil
}
