package match

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/mill-arena/pkg/milldto"
)

const snapshotTTL = 24 * time.Hour

// SnapshotStore mirrors live match state into Redis so reconnecting clients
// and other processes can read it.
type SnapshotStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshotStore(rdb *redis.Client) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, ttl: snapshotTTL}
}

func matchKey(id string) string       { return "mill:match:" + strings.TrimSpace(id) }
func idxUserKey(player string) string { return "mill:index:user:" + strings.TrimSpace(player) }

// Save writes the state and indexes it under both players.
func (s *SnapshotStore) Save(ctx context.Context, st milldto.MatchState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, matchKey(st.ID), raw, s.ttl)
		for _, player := range []string{st.White, st.Black} {
			if strings.TrimSpace(player) == "" {
				continue
			}
			p.SAdd(ctx, idxUserKey(player), st.ID)
			p.Expire(ctx, idxUserKey(player), s.ttl)
		}
		return nil
	})
	return err
}

// Load returns ErrNotFound when the snapshot expired or never existed.
func (s *SnapshotStore) Load(ctx context.Context, id string) (*milldto.MatchState, error) {
	raw, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st milldto.MatchState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ActiveFor returns the player's open match snapshot, pruning stale index entries.
func (s *SnapshotStore) ActiveFor(ctx context.Context, player string) (*milldto.MatchState, error) {
	ids, err := s.rdb.SMembers(ctx, idxUserKey(player)).Result()
	if err != nil {
		return nil, err
	}
	var stale []any
	for _, id := range ids {
		st, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !Status(st.Status).Closed() {
			return st, nil
		}
	}
	if len(stale) > 0 {
		_ = s.rdb.SRem(ctx, idxUserKey(player), stale...).Err()
	}
	return nil, ErrNotFound
}
