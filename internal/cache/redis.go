package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/scout/internal/coordinator"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session snapshots
const DefaultKeyPrefix = "scout:session:"

// ErrNotFound is returned when a session has no snapshot
var ErrNotFound = errors.New("snapshot not found")

// SnapshotCache keeps serialized coordinator state per session
type SnapshotCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Connect opens a Redis client from a URL and pings it
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewSnapshotCache wraps an existing client. Snapshots expire after ttl;
// zero keeps them forever.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		client: client,
		prefix: DefaultKeyPrefix,
		ttl:    ttl,
	}
}

// HealthCheck pings Redis to verify connection
func (sc *SnapshotCache) HealthCheck(ctx context.Context) error {
	return sc.client.Ping(ctx).Err()
}

// Save stores a session's state, refreshing its TTL
func (sc *SnapshotCache) Save(ctx context.Context, sessionID string, state coordinator.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := sc.client.Set(ctx, sc.key(sessionID), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", sessionID, err)
	}
	return nil
}

// Load returns a session's last saved state
func (sc *SnapshotCache) Load(ctx context.Context, sessionID string) (coordinator.State, error) {
	data, err := sc.client.Get(ctx, sc.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return coordinator.State{}, ErrNotFound
	}
	if err != nil {
		return coordinator.State{}, fmt.Errorf("failed to load snapshot %s: %w", sessionID, err)
	}

	var state coordinator.State
	if err := json.Unmarshal(data, &state); err != nil {
		return coordinator.State{}, fmt.Errorf("failed to decode snapshot %s: %w", sessionID, err)
	}
	return state, nil
}

// Exists reports whether a session has a snapshot
func (sc *SnapshotCache) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := sc.client.Exists(ctx, sc.key(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes a session's snapshot
func (sc *SnapshotCache) Delete(ctx context.Context, sessionID string) error {
	return sc.client.Del(ctx, sc.key(sessionID)).Err()
}

func (sc *SnapshotCache) key(sessionID string) string {
	return sc.prefix + sessionID
}
