package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is the in-process counterpart of Locker, used when no
// redis address is configured. TTL expiry guards against a crashed
// run leaving a key locked forever.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localLockState
}

type localLockState struct {
	token    string
	deadline time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]localLockState)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if state, ok := l.locks[key]; ok && now.Before(state.deadline) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.locks[key] = localLockState{token: token, deadline: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state, ok := l.locks[key]; ok && state.token == token {
		delete(l.locks, key)
	}
	return nil
}
