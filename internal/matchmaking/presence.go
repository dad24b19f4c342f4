package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// presence.go maintains a Redis set of "who is searching in which
// time-control bucket" purely as an optimization: a searcher whose request
// is about to be persisted to the Store is also recorded here so
// SearchingCount can answer "how many players are searching at 600s?"
// without a Store query (no Gateway event calls it). The Store's GameRequest
// collection remains the single source of truth the Matchmaker itself
// reasons over; Redis is never consulted for pairing correctness.

func presenceKey(timeControlSeconds int) string {
	return fmt.Sprintf("matchmaking:searching:%d", timeControlSeconds)
}

func (m *Matchmaker) setPresence(ctx context.Context, timeControlSeconds int, userID int64) {
	if m.redis == nil {
		return
	}
	m.redis.SAdd(ctx, presenceKey(timeControlSeconds), userID)
	m.redis.Expire(ctx, presenceKey(timeControlSeconds), time.Hour)
}

func (m *Matchmaker) clearPresence(ctx context.Context, timeControlSeconds int, userID int64) {
	if m.redis == nil {
		return
	}
	m.redis.SRem(ctx, presenceKey(timeControlSeconds), userID)
}

// SearchingCount returns how many users are currently searching at the
// given time control, served from the Redis cache (falls back to -1 when
// no cache is configured).
func (m *Matchmaker) SearchingCount(ctx context.Context, timeControlSeconds int) int64 {
	if m.redis == nil {
		return -1
	}
	n, err := m.redis.SCard(ctx, presenceKey(timeControlSeconds)).Result()
	if err != nil {
		return -1
	}
	return n
}
