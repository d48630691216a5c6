package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// tryMarkScript drops expired markers, then claims every id that is free.
// Members are scored with their expiry in unix milliseconds so each marker
// carries its own TTL.
var tryMarkScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local marked = {}
for i = 3, #ARGV do
	if not redis.call('ZSCORE', KEYS[1], ARGV[i]) then
		redis.call('ZADD', KEYS[1], ARGV[2], ARGV[i])
		table.insert(marked, ARGV[i])
	end
end
return marked
`)

type redisProcessingGuard struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisProcessingGuard(client *redis.Client) ProcessingGuard {
	return &redisProcessingGuard{client: client, key: ProcessingKey, now: time.Now}
}

func (g *redisProcessingGuard) TryMarkBatch(ctx context.Context, monitorIDs []int64, ttl time.Duration) ([]int64, error) {
	if len(monitorIDs) == 0 {
		return nil, nil
	}

	now := g.now()
	args := make([]interface{}, 0, len(monitorIDs)+2)
	args = append(args, now.UnixMilli(), now.Add(ttl).UnixMilli())
	for _, id := range monitorIDs {
		args = append(args, member(id))
	}

	res, err := tryMarkScript.Run(ctx, g.client, []string{g.key}, args...).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to mark monitors as processing: %w", err)
	}

	marked := make([]int64, 0, len(res))
	for _, raw := range res {
		id, err := parseMember(raw)
		if err != nil {
			return nil, err
		}
		marked = append(marked, id)
	}

	return marked, nil
}

func (g *redisProcessingGuard) Unmark(ctx context.Context, monitorIDs ...int64) error {
	if len(monitorIDs) == 0 {
		return nil
	}

	members := make([]interface{}, len(monitorIDs))
	for i, id := range monitorIDs {
		members[i] = member(id)
	}

	if err := g.client.ZRem(ctx, g.key, members...).Err(); err != nil {
		return fmt.Errorf("failed to unmark monitors: %w", err)
	}
	return nil
}

func (g *redisProcessingGuard) Count(ctx context.Context) (int64, error) {
	from := "(" + strconv.FormatInt(g.now().UnixMilli(), 10)
	n, err := g.client.ZCount(ctx, g.key, from, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count processing monitors: %w", err)
	}
	return n, nil
}
