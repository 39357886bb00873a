package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"live-quiz-service/internal/domain"
)

// SessionRepository abstracts where live sessions are indexed (in-memory, Redis-marked, etc).
type SessionRepository interface {
	// Reserve stores session under inviteCode unless one is already present.
	Reserve(inviteCode string, session *Session) bool
	Get(inviteCode string) (*Session, bool)
	// Delete removes the entry only if it still points at session.
	Delete(inviteCode string, session *Session) bool
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, inviteCode string) (domain.Quiz, error)
}

// Roster snapshots which students are present in a lobby.
type Roster interface {
	Students(inviteCode string) []string
}

// SessionRegistry owns the lifecycle of at most one session per invite code.
type SessionRegistry struct {
	store   SessionRepository
	quizzes QuizRepository
	roster  Roster
	out     Broadcaster
	opts    SessionOptions
	log     *slog.Logger
}

func NewSessionRegistry(store SessionRepository, quizzes QuizRepository, roster Roster, out Broadcaster, opts SessionOptions, log *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		store:   store,
		quizzes: quizzes,
		roster:  roster,
		out:     out,
		opts:    opts.withDefaults(),
		log:     log,
	}
}

// StartSession creates and starts the session for inviteCode on behalf of requester.
// The slot is reserved before the quiz is fetched, so concurrent starts conflict
// instead of both loading content; no lock is held across the fetch.
func (r *SessionRegistry) StartSession(ctx context.Context, inviteCode string, requester domain.Identity) (*Session, error) {
	if requester.Role != domain.RoleTeacher {
		return nil, fmt.Errorf("start quiz: %w", domain.ErrAuthorization)
	}

	session := newSession(inviteCode, r.opts, r.out, r.log)
	if !r.store.Reserve(inviteCode, session) {
		return nil, domain.ErrSessionActive
	}

	quiz, err := r.quizzes.GetQuiz(ctx, inviteCode)
	if err != nil {
		r.store.Delete(inviteCode, session)
		if errors.Is(err, domain.ErrQuizNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load quiz %s: %w", inviteCode, err)
	}
	if len(quiz.Questions) == 0 {
		r.store.Delete(inviteCode, session)
		return nil, domain.ErrNoQuestions
	}

	session.seed(quiz, r.roster.Students(inviteCode), r.release)
	session.begin()
	return session, nil
}

// Active returns the running session for inviteCode.
func (r *SessionRegistry) Active(inviteCode string) (*Session, bool) {
	return r.store.Get(inviteCode)
}

// EndSession stops and discards the session for inviteCode. Repeated calls leave the
// registry unchanged and report ErrSessionNotFound.
func (r *SessionRegistry) EndSession(inviteCode string) error {
	session, ok := r.store.Get(inviteCode)
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Stop()
	if r.store.Delete(inviteCode, session) {
		r.log.Info("session ended", "inviteCode", inviteCode)
	}
	return nil
}

func (r *SessionRegistry) release(session *Session) {
	if r.store.Delete(session.InviteCode(), session) {
		r.log.Info("session removed", "inviteCode", session.InviteCode())
	}
}
