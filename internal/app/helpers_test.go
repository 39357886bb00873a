package app

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// manualClock queues scheduled callbacks until the test fires them.
type manualClock struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	delay     time.Duration
	fn        func()
	cancelled atomic.Bool
}

func (t *manualTask) Cancel() { t.cancelled.Store(true) }

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTask{delay: d, fn: fn}
	c.tasks = append(c.tasks, t)
	return t
}

// pending returns the live tasks in scheduling order.
func (c *manualClock) pending() []*manualTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(c.tasks), func(t *manualTask) bool { return t.cancelled.Load() })
}

// step fires the oldest live task. It reports false when nothing is pending.
func (c *manualClock) step() bool {
	c.mu.Lock()
	var next *manualTask
	for i, t := range c.tasks {
		if !t.cancelled.Load() {
			next = t
			c.tasks = c.tasks[i+1:]
			break
		}
	}
	if next == nil {
		c.tasks = nil
	}
	c.mu.Unlock()
	if next == nil {
		return false
	}
	next.fn()
	return true
}

func (g *Gateway) roomsOf(connID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Keys(g.subs[connID])
}

func (g *Gateway) subscriberCount(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[room])
}

func (r *LobbyRegistry) exists(inviteCode string) bool {
	_, ok := r.get(inviteCode)
	return ok
}

// recorder is a Conn that keeps everything it is sent.
type recorder struct {
	id     string
	mu     sync.Mutex
	events []domain.Event
}

func newRecorder(id string) *recorder { return &recorder{id: id} }

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) types() []string {
	var out []string
	for _, ev := range r.all() {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) ofType(typ string) []domain.Event {
	var out []domain.Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) last(typ string) (domain.Event, bool) {
	evs := r.ofType(typ)
	if len(evs) == 0 {
		return domain.Event{}, false
	}
	return evs[len(evs)-1], true
}

// mapStore is an in-process SessionRepository.
type mapStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMapStore() *mapStore { return &mapStore{sessions: make(map[string]*Session)} }

func (s *mapStore) Reserve(code string, session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[code]; ok {
		return false
	}
	s.sessions[code] = session
	return true
}

func (s *mapStore) Get(code string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *mapStore) Delete(code string, session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[code] != session {
		return false
	}
	delete(s.sessions, code)
	return true
}

// stubQuizzes serves fixed content. When gate is set, GetQuiz blocks until it is closed.
type stubQuizzes struct {
	quizzes map[string]domain.Quiz
	err     error
	gate    chan struct{}
	calls   atomic.Int32
}

func (s *stubQuizzes) GetQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return domain.Quiz{}, ctx.Err()
		}
	}
	if s.err != nil {
		return domain.Quiz{}, s.err
	}
	q, ok := s.quizzes[code]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return q, nil
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

const code = "ABC123"

func oneQuestionQuiz(limit int) domain.Quiz {
	return domain.Quiz{
		ID:         "quiz-1",
		InviteCode: code,
		Questions: []domain.Question{
			{ID: "q1", Text: "Pick", Options: []string{"a", "b", "c"}, CorrectIndex: 1, TimeLimit: limit},
		},
	}
}

func twoQuestionQuiz() domain.Quiz {
	q := oneQuestionQuiz(10)
	q.Questions = append(q.Questions, domain.Question{ID: "q2", Text: "Again", Options: []string{"x", "y"}, CorrectIndex: 0, TimeLimit: 5})
	return q
}

// fixture wires a QuizService to a manual clock and recorder connections.
type fixture struct {
	t       *testing.T
	clock   *manualClock
	store   *mapStore
	quizzes *stubQuizzes
	svc     *QuizService
	conns   map[string]*recorder
}

func newFixture(t *testing.T, quiz domain.Quiz, opts Options) *fixture {
	t.Helper()
	clock := &manualClock{}
	opts.Session.Scheduler = clock
	quizzes := &stubQuizzes{quizzes: map[string]domain.Quiz{quiz.InviteCode: quiz}}
	store := newMapStore()
	return &fixture{
		t:       t,
		clock:   clock,
		store:   store,
		quizzes: quizzes,
		svc:     NewQuizService(store, quizzes, opts, testLogger()),
		conns:   make(map[string]*recorder),
	}
}

func identity(name string, role domain.Role) domain.Identity {
	return domain.Identity{ID: "id-" + name, DisplayName: name, Role: role}
}

// join connects a fresh recorder for name and joins it to the lobby.
func (f *fixture) join(name string, role domain.Role) *recorder {
	f.t.Helper()
	conn := newRecorder("conn-" + name)
	f.conns[name] = conn
	f.svc.Connect(conn)
	f.svc.JoinLobby(context.Background(), conn.ID(), identity(name, role), code)
	return conn
}

func (f *fixture) answer(name, questionID string, index, timeRemaining int) {
	f.svc.SubmitAnswer(context.Background(), f.conns[name].ID(), domain.AnswerSubmission{
		QuestionID:    questionID,
		AnswerIndex:   index,
		TimeRemaining: timeRemaining,
	})
}
