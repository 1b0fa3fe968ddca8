// Package archive persists game state: live snapshots in Redis,
// finished games in Postgres. Both stores are optional; the engine
// runs fine without either.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

const ttlSnapshot = 24 * time.Hour

// SnapshotStore keeps the latest state of each game in Redis.
type SnapshotStore struct{ rdb *redis.Client }

func NewSnapshotStore(redisURL string) (*SnapshotStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for snapshot store")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &SnapshotStore{rdb: rdb}, nil
}

// NewSnapshotStoreWithClient wraps an existing client; tests use this.
func NewSnapshotStoreWithClient(rdb *redis.Client) *SnapshotStore {
	return &SnapshotStore{rdb: rdb}
}

func (s *SnapshotStore) keyGame(id string) string { return "vote:game:" + strings.TrimSpace(id) }
func (s *SnapshotStore) keyLatest() string        { return "vote:game:latest" }

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, st gamedto.GameState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyGame(st.GameID), raw, ttlSnapshot).Err(); err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyLatest(), st.GameID, ttlSnapshot).Err()
}

// LoadSnapshot returns the stored state for one game, or nil when
// unknown.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, id string) (*gamedto.GameState, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st gamedto.GameState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// LoadLatest returns the most recently saved game state, or nil when
// nothing was saved yet.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (*gamedto.GameState, error) {
	id, err := s.rdb.Get(ctx, s.keyLatest()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.LoadSnapshot(ctx, id)
}

func (s *SnapshotStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
