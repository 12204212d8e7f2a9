package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/coinduel/src/session"
	"github.com/pkg/errors"
)

// sessions idle longer than this are forgotten
const sessionTTL = 24 * time.Hour

func sessionKey(playerID string) string {
	return "session:" + playerID
}

// SessionStore keeps the latest session snapshot per player
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(rd *redis.Client) *SessionStore {
	return &SessionStore{client: rd}
}

func (s *SessionStore) SaveSession(ctx context.Context, playerID string, snap session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed encoding session snapshot")
	}
	return errors.Wrap(s.client.Set(ctx, sessionKey(playerID), raw, sessionTTL).Err(), "failed saving session")
}

func (s *SessionStore) LoadSession(ctx context.Context, playerID string) (session.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, sessionKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, errors.Wrap(err, "failed loading session")
	}
	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return session.Snapshot{}, false, errors.Wrap(err, "failed decoding session snapshot")
	}
	return snap, true, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, playerID string) error {
	return errors.Wrap(s.client.Del(ctx, sessionKey(playerID)).Err(), "failed deleting session")
}
