package app

import (
	"context"
	"log/slog"

	"live-quiz-service/internal/domain"
)

// Options configures a QuizService.
type Options struct {
	Session SessionOptions
	// EndOnEmptyLobby stops a running session once its lobby is destroyed.
	EndOnEmptyLobby bool
}

// QuizService contains the live quiz use cases. Transports call it; it owns the
// gateway, the lobby registry and the session registry.
type QuizService struct {
	gateway  *Gateway
	lobbies  *LobbyRegistry
	sessions *SessionRegistry
	opts     Options
	log      *slog.Logger
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, opts Options, log *slog.Logger) *QuizService {
	gateway := NewGateway()
	lobbies := NewLobbyRegistry(gateway, log)
	return &QuizService{
		gateway:  gateway,
		lobbies:  lobbies,
		sessions: NewSessionRegistry(store, quizzes, lobbies, gateway, opts.Session, log),
		opts:     opts,
		log:      log,
	}
}

// Connect registers a freshly authenticated connection with the gateway.
func (s *QuizService) Connect(conn Conn) {
	s.gateway.Register(conn)
}

// JoinLobby joins the connection's identity to the lobby for inviteCode.
func (s *QuizService) JoinLobby(_ context.Context, connID string, identity domain.Identity, inviteCode string) {
	s.lobbies.Join(inviteCode, domain.Participant{Identity: identity, ConnID: connID})
}

// StartQuiz starts a session for inviteCode. Errors are meant for the requester only.
func (s *QuizService) StartQuiz(ctx context.Context, identity domain.Identity, inviteCode string) error {
	if _, err := s.sessions.StartSession(ctx, inviteCode, identity); err != nil {
		s.log.Warn("start quiz rejected", "inviteCode", inviteCode, "user", identity.DisplayName, "err", err)
		return err
	}
	return nil
}

// SubmitAnswer routes an answer to the session of every lobby the connection sits in.
// Answers without an active session or from non-students are dropped silently.
func (s *QuizService) SubmitAnswer(_ context.Context, connID string, sub domain.AnswerSubmission) {
	for _, m := range s.lobbies.Memberships(connID) {
		if m.Participant.Role != domain.RoleStudent {
			continue
		}
		session, ok := s.sessions.Active(m.InviteCode)
		if !ok {
			continue
		}
		session.Submit(m.Participant.DisplayName, sub)
	}
}

// Disconnect handles a closed connection exactly like an explicit leave.
func (s *QuizService) Disconnect(connID string) {
	departures := s.lobbies.Leave(connID)
	s.gateway.Unregister(connID)

	for _, d := range departures {
		if session, ok := s.sessions.Active(d.InviteCode); ok && d.Participant.Role == domain.RoleStudent {
			session.Depart(d.Participant.DisplayName)
		}
		if d.LobbyClosed && s.opts.EndOnEmptyLobby {
			if err := s.sessions.EndSession(d.InviteCode); err == nil {
				s.log.Info("session ended with its lobby", "inviteCode", d.InviteCode)
			}
		}
	}
}

// EndSession discards the running session for inviteCode, or reports ErrSessionNotFound.
func (s *QuizService) EndSession(inviteCode string) error {
	return s.sessions.EndSession(inviteCode)
}

// Session exposes the running session for inviteCode.
func (s *QuizService) Session(inviteCode string) (*Session, bool) {
	return s.sessions.Active(inviteCode)
}

// Players lists the members of a lobby.
func (s *QuizService) Players(inviteCode string) []domain.Player {
	return s.lobbies.Players(inviteCode)
}

// Send addresses a single connection, used for actor-only errors.
func (s *QuizService) Send(connID string, ev domain.Event) bool {
	return s.gateway.Send(connID, ev)
}
