package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/app"

	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves stay in a local map; timers and locks cannot leave the process.
//   - Redis holds a liveness marker per running session so operators (and other tools)
//     can see which invite codes are live.
//   - Reservation uses SETNX on the marker as well, so a stale marker left by a crashed
//     process blocks a start only until its TTL lapses.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, log *slog.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		log:      log,
		sessions: make(map[string]*app.Session),
	}
}

// Reserve claims inviteCode for session. The Redis round-trip happens before the map lock
// is taken, so a slow Redis never blocks lookups for other rooms.
func (s *SessionStore) Reserve(inviteCode string, session *app.Session) bool {
	if _, ok := s.Get(inviteCode); ok {
		return false
	}

	ok, err := s.client.SetNX(context.Background(), s.key(inviteCode), "1", s.ttl).Result()
	if err != nil {
		// best-effort marker; the local map stays authoritative
		s.log.Warn("mark session live failed", "inviteCode", inviteCode, "err", err)
	} else if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[inviteCode]; taken {
		// Another local start won between the check and the marker. The marker is left in
		// place because it now describes that winner.
		return false
	}
	s.sessions[inviteCode] = session
	return true
}

func (s *SessionStore) Get(inviteCode string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[inviteCode]
	return session, ok
}

// Delete drops the entry if it still points at session, then clears the marker outside the lock.
func (s *SessionStore) Delete(inviteCode string, session *app.Session) bool {
	s.mu.Lock()
	current, ok := s.sessions[inviteCode]
	if !ok || current != session {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, inviteCode)
	s.mu.Unlock()

	if err := s.client.Del(context.Background(), s.key(inviteCode)).Err(); err != nil {
		s.log.Warn("clear session marker failed", "inviteCode", inviteCode, "err", err)
	}
	return true
}

func (s *SessionStore) key(inviteCode string) string {
	return "quiz:session:" + inviteCode
}
