package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fortuna/scout/internal/coordinator"
	"github.com/redis/go-redis/v9"
)

const (
	// ChatStream carries every answered chat turn
	ChatStream = "scout.chat.turns"

	// ActivityStream carries search, stats and listing completions
	ActivityStream = "scout.activity"

	// DefaultMaxLen caps each stream, approximately
	DefaultMaxLen = 10000
)

// Activity is one completed search, stats or listing request
type Activity struct {
	SessionID string               `json:"session_id"`
	Category  coordinator.Category `json:"category"`
	Phase     coordinator.Phase    `json:"phase"`
	Query     string               `json:"query,omitempty"`
	Results   int                  `json:"results"`
	Page      int                  `json:"page,omitempty"`
}

// RedisStreamPublisher publishes session events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	maxLen int64
	now    func() time.Time
}

// NewRedisStreamPublisher creates a publisher from an existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		maxLen: DefaultMaxLen,
		now:    time.Now,
	}
}

// PublishChatTurn publishes an answered chat turn
func (rsp *RedisStreamPublisher) PublishChatTurn(ctx context.Context, sessionID string, turn coordinator.ChatTurn) error {
	return rsp.publish(ctx, ChatStream, sessionID, turn)
}

// PublishActivity publishes a search, stats or listing completion
func (rsp *RedisStreamPublisher) PublishActivity(ctx context.Context, a Activity) error {
	return rsp.publish(ctx, ActivityStream, a.SessionID, a)
}

func (rsp *RedisStreamPublisher) publish(ctx context.Context, stream, sessionID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: rsp.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"session_id": sessionID,
			"data":       string(data),
			"timestamp":  rsp.now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

// ActivityFor summarizes the category a transition just completed.
// It returns false while the category is still loading or idle.
func ActivityFor(sessionID string, cat coordinator.Category, s coordinator.State) (Activity, bool) {
	phase := s.Phases.Get(cat)
	if phase != coordinator.PhaseSuccess && phase != coordinator.PhaseError {
		return Activity{}, false
	}

	a := Activity{SessionID: sessionID, Category: cat, Phase: phase}
	switch cat {
	case coordinator.CategorySearch:
		a.Query = s.Query.Name
		a.Results = len(s.Results)
	case coordinator.CategoryStats:
		if s.Stats != nil {
			a.Query = s.Stats.PlayerName
			a.Results = 1
		}
	case coordinator.CategoryListing:
		a.Query = s.Listing.Filters.Position
		a.Results = s.Listing.Pagination.Total
		a.Page = s.Listing.Pagination.Page
	default:
		return Activity{}, false
	}
	return a, true
}
