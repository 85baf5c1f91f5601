package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/emojirank/internal/domain"
)

const reactorKeyPrefix = "emojirank:reactors:"

// ReactorCache keeps reaction user lists as JSON under a per-reaction key.
// It never stores counts: a report always recounts from these lists.
type ReactorCache struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewReactorCache(rdb goredis.Cmdable, ttl time.Duration) *ReactorCache {
	return &ReactorCache{rdb: rdb, ttl: ttl}
}

func reactorKey(channelID, messageID, emojiID string) string {
	return reactorKeyPrefix + channelID + ":" + messageID + ":" + emojiID
}

// Get reports a miss for absent keys and for entries that no longer decode;
// undecodable entries are removed.
func (c *ReactorCache) Get(ctx context.Context, channelID, messageID, emojiID string) ([]domain.Reactor, bool, error) {
	key := reactorKey(channelID, messageID, emojiID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read reactor cache: %w", err)
	}

	var reactors []domain.Reactor
	if err := json.Unmarshal(data, &reactors); err != nil {
		slog.WarnContext(ctx, "Dropping undecodable reactor cache entry", "key", key, "error", err)
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false, nil
	}
	if reactors == nil {
		reactors = []domain.Reactor{}
	}
	return reactors, true, nil
}

func (c *ReactorCache) Set(ctx context.Context, channelID, messageID, emojiID string, reactors []domain.Reactor) error {
	if reactors == nil {
		reactors = []domain.Reactor{}
	}
	data, err := json.Marshal(reactors)
	if err != nil {
		return fmt.Errorf("failed to encode reactors: %w", err)
	}

	if err := c.rdb.Set(ctx, reactorKey(channelID, messageID, emojiID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write reactor cache: %w", err)
	}
	return nil
}
