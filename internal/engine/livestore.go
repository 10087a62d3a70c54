package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlLive = 1 * time.Hour

// LiveStore keeps a JSON snapshot of every active session in redis so
// operators (and a future resume flow) can see in-flight games. Snapshots
// are written on state transitions, not on every tick.
type LiveStore struct {
	rdb *redis.Client
}

func NewLiveStore(rdb *redis.Client) *LiveStore {
	return &LiveStore{rdb: rdb}
}

func (s *LiveStore) key(sessionID string) string {
	return "game:live:" + strings.TrimSpace(sessionID)
}

func (s *LiveStore) Save(ctx context.Context, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(snap.SessionID), raw, ttlLive).Err()
}

func (s *LiveStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *LiveStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.key(sessionID)).Err()
}
