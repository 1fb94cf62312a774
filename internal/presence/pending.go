package presence

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingTTL = 7 * 24 * time.Hour
	pendingCap = 50
)

// PendingQueue keeps one-shot events for offline players in a Redis list.
type PendingQueue struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPendingQueue(rdb *redis.Client) *PendingQueue {
	return &PendingQueue{rdb: rdb, ttl: pendingTTL}
}

func pendingKey(player string) string { return "mill:pending:" + strings.TrimSpace(player) }

// Push appends an encoded event, keeping only the newest entries.
func (q *PendingQueue) Push(ctx context.Context, player string, raw []byte) error {
	key := pendingKey(player)
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, raw)
		p.LTrim(ctx, key, -pendingCap, -1)
		p.Expire(ctx, key, q.ttl)
		return nil
	})
	return err
}

// Drain returns and removes everything queued for player, oldest first.
func (q *PendingQueue) Drain(ctx context.Context, player string) ([][]byte, error) {
	key := pendingKey(player)
	var lr *redis.StringSliceCmd
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		lr = p.LRange(ctx, key, 0, -1)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	vals := lr.Val()
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (q *PendingQueue) Len(ctx context.Context, player string) (int64, error) {
	return q.rdb.LLen(ctx, pendingKey(player)).Result()
}
