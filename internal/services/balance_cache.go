package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/honeynil/skillswap-timebank/internal/infrastructure/redis"
	"github.com/honeynil/skillswap-timebank/internal/models"
)

// balanceCache is a read-through cache in front of member balances. A nil client
// turns every method into a no-op. Cache failures are logged and never returned.
type balanceCache struct {
	client redis.RedisClient
	ttl    time.Duration
}

func balanceKey(memberID int64) string {
	return fmt.Sprintf("member:%d:balance", memberID)
}

func (c *balanceCache) get(ctx context.Context, memberID int64) (models.Balance, bool) {
	if c == nil || c.client == nil {
		return models.Balance{}, false
	}
	raw, err := c.client.Get(ctx, balanceKey(memberID))
	if err != nil {
		if !stderrors.Is(err, redis.ErrKeyNotFound) {
			slog.Warn("failed to read cached balance", "member_id", memberID, "error", err)
		}
		return models.Balance{}, false
	}
	var b models.Balance
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		slog.Error("failed to unmarshal balance", "member_id", memberID, "error", err)
		return models.Balance{}, false
	}
	return b, true
}

func (c *balanceCache) set(ctx context.Context, b models.Balance) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, balanceKey(b.MemberID), string(raw), c.ttl); err != nil {
		slog.Warn("failed to cache balance", "member_id", b.MemberID, "error", err)
	}
}

// invalidate runs after a commit that changed the members' balances.
func (c *balanceCache) invalidate(ctx context.Context, memberIDs ...int64) {
	if c == nil || c.client == nil || len(memberIDs) == 0 {
		return
	}
	keys := make([]string, len(memberIDs))
	for i, id := range memberIDs {
		keys[i] = balanceKey(id)
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		slog.Warn("failed to invalidate cached balances", "member_ids", memberIDs, "error", err)
	}
}
