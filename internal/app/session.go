package app

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/samber/lo"
)

// State is a step of the live quiz state machine.
type State int

const (
	StateAwaitingStart State = iota
	StateQuestionActive
	StateQuestionResolved
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting-start"
	case StateQuestionActive:
		return "question-active"
	case StateQuestionResolved:
		return "question-resolved"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SessionOptions tunes scoring and pacing.
type SessionOptions struct {
	BasePoints       int
	TickInterval     time.Duration
	GracePeriod      time.Duration
	DefaultTimeLimit int // seconds
	Scheduler        Scheduler
}

// DefaultSessionOptions returns the production pacing: one tick per second, two seconds between questions.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		BasePoints:       10,
		TickInterval:     time.Second,
		GracePeriod:      2 * time.Second,
		DefaultTimeLimit: 20,
		Scheduler:        WallClock,
	}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.BasePoints == 0 {
		o.BasePoints = d.BasePoints
	}
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = d.GracePeriod
	}
	if o.DefaultTimeLimit <= 0 {
		o.DefaultTimeLimit = d.DefaultTimeLimit
	}
	if o.Scheduler == nil {
		o.Scheduler = d.Scheduler
	}
	return o
}

// Events consumed by the state machine. Scheduled events carry the sequence number of the
// task that produced them; anything older than the session's current sequence is stale.
type event interface{ isEvent() }

type (
	beginEvent   struct{}
	tickEvent    struct{ seq uint64 }
	advanceEvent struct{ seq uint64 }
	answerEvent  struct {
		name string
		sub  domain.AnswerSubmission
	}
	departEvent struct{ name string }
	stopEvent   struct{}
)

func (beginEvent) isEvent()   {}
func (tickEvent) isEvent()    {}
func (advanceEvent) isEvent() {}
func (answerEvent) isEvent()  {}
func (departEvent) isEvent()  {}
func (stopEvent) isEvent()    {}

// Session runs one quiz against the students of a lobby. All mutations happen in
// transitionLocked under mu, so joins, answers and timer ticks never interleave.
type Session struct {
	code string
	opts SessionOptions
	out  Broadcaster
	log  *slog.Logger

	// done is called once, outside mu, when the session completes or aborts.
	done     func(*Session)
	doneOnce sync.Once

	mu            sync.Mutex
	state         State
	quiz          domain.Quiz
	index         int
	scores        domain.Scores
	timeRemaining int
	answered      set
	// expected holds the students present at the start minus those who left; its size is the
	// answer count that resolves a question early.
	expected      set
	pending       Task
	seq           uint64
}

func newSession(code string, opts SessionOptions, out Broadcaster, log *slog.Logger) *Session {
	return &Session{
		code:     code,
		opts:     opts.withDefaults(),
		out:      out,
		log:      log.With("inviteCode", code),
		scores:   make(domain.Scores),
		answered: make(set),
		expected: make(set),
	}
}

// seed loads content and the expected answerers. Only valid before begin.
func (s *Session) seed(quiz domain.Quiz, students []string, done func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quiz = quiz
	s.done = done
	for _, name := range students {
		s.expected[name] = struct{}{}
		s.scores[name] = 0
	}
}

func (s *Session) InviteCode() string { return s.code }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scores returns a copy of the score table.
func (s *Session) Scores() domain.Scores {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.scores)
}

// CurrentQuestion returns the active question id and its index.
func (s *Session) CurrentQuestion() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingStart || s.index >= len(s.quiz.Questions) {
		return "", s.index
	}
	return s.quiz.Questions[s.index].ID, s.index
}

// TimeRemaining is the countdown value of the active question.
func (s *Session) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeRemaining
}

func (s *Session) begin() { s.fire(beginEvent{}) }

// Submit records a student's answer. Late, stale and duplicate answers are dropped silently.
func (s *Session) Submit(name string, sub domain.AnswerSubmission) {
	s.fire(answerEvent{name: name, sub: sub})
}

// Depart removes a student from the expected answerers.
func (s *Session) Depart(name string) { s.fire(departEvent{name: name}) }

// Stop cancels pending timers; later events become no-ops. Idempotent.
func (s *Session) Stop() { s.fire(stopEvent{}) }

// fire applies ev and isolates panics to this session.
func (s *Session) fire(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session aborted", "panic", r, "event", fmt.Sprintf("%T", ev))
			s.apply(stopEvent{})
			s.finish()
		}
	}()
	if s.apply(ev) {
		s.finish()
	}
}

func (s *Session) apply(ev event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(ev)
}

func (s *Session) finish() {
	s.doneOnce.Do(func() {
		if s.done != nil {
			s.done(s)
		}
	})
}

// transitionLocked is the state machine. It reports true when the session has just completed.
func (s *Session) transitionLocked(ev event) bool {
	switch ev := ev.(type) {
	case beginEvent:
		if s.state != StateAwaitingStart {
			return false
		}
		s.out.Broadcast(s.code, domain.Event{Type: domain.EventQuizStarted, Payload: domain.QuizStarted{
			TotalQuestions:  len(s.quiz.Questions),
			BackgroundMusic: s.quiz.BackgroundMusic,
		}})
		s.log.Info("session started", "questions", len(s.quiz.Questions), "expected", len(s.expected))
		s.activateLocked(0)

	case tickEvent:
		if s.state != StateQuestionActive || ev.seq != s.seq {
			return false
		}
		s.timeRemaining--
		s.out.Broadcast(s.code, domain.Event{Type: domain.EventTimeUpdate, Payload: domain.TimeUpdate{TimeLeft: s.timeRemaining}})
		if s.timeRemaining <= 0 {
			s.resolveLocked()
			return false
		}
		s.scheduleLocked(s.opts.TickInterval, func(seq uint64) event { return tickEvent{seq: seq} })

	case answerEvent:
		if s.state != StateQuestionActive {
			return false
		}
		q := s.quiz.Questions[s.index]
		if ev.sub.QuestionID != q.ID {
			return false
		}
		if _, dup := s.answered[ev.name]; dup {
			return false
		}
		s.answered[ev.name] = struct{}{}
		if _, ok := s.scores[ev.name]; !ok {
			s.scores[ev.name] = 0
		}
		if ev.sub.AnswerIndex == q.CorrectIndex {
			// timeRemaining is client-reported and trusted within [0, limit]; the clamp only
			// bounds the bonus. Server-side timing would be needed to close that integrity gap.
			s.scores[ev.name] += s.opts.BasePoints + lo.Clamp(ev.sub.TimeRemaining, 0, s.timeLimit(q))
		}
		if s.allAnsweredLocked() {
			s.resolveLocked()
		}

	case departEvent:
		if _, ok := s.expected[ev.name]; !ok {
			return false
		}
		delete(s.expected, ev.name)
		if s.state == StateQuestionActive && s.allAnsweredLocked() {
			s.resolveLocked()
		}

	case advanceEvent:
		if s.state != StateQuestionResolved || ev.seq != s.seq {
			return false
		}
		if s.index+1 < len(s.quiz.Questions) {
			s.activateLocked(s.index + 1)
			return false
		}
		s.state = StateCompleted
		s.cancelLocked()
		s.out.Broadcast(s.code, domain.Event{Type: domain.EventQuizEnded, Payload: domain.QuizEnded{FinalScores: maps.Clone(s.scores)}})
		s.log.Info("session completed", "scores", s.scores)
		return true

	case stopEvent:
		if s.state == StateCompleted {
			return false
		}
		s.state = StateCompleted
		s.cancelLocked()
	}
	return false
}

func (s *Session) activateLocked(i int) {
	q := s.quiz.Questions[i]
	limit := s.timeLimit(q)

	s.state = StateQuestionActive
	s.index = i
	s.answered = make(set)
	s.timeRemaining = limit

	s.out.Broadcast(s.code, domain.Event{Type: domain.EventNewQuestion, Payload: domain.NewQuestion{
		Question: domain.QuestionView{
			ID:        q.ID,
			Text:      q.Text,
			Options:   q.Options,
			TimeLimit: limit,
			Image:     q.Image,
		},
		QuestionIndex: i,
		TimeLimit:     limit,
	}})
	s.out.Broadcast(s.code, domain.Event{Type: domain.EventTimeUpdate, Payload: domain.TimeUpdate{TimeLeft: limit}})
	s.scheduleLocked(s.opts.TickInterval, func(seq uint64) event { return tickEvent{seq: seq} })
}

func (s *Session) resolveLocked() {
	q := s.quiz.Questions[s.index]
	s.state = StateQuestionResolved
	s.out.Broadcast(s.code, domain.Event{Type: domain.EventQuestionEnded, Payload: domain.QuestionEnded{
		CorrectAnswer: q.CorrectIndex,
		Scores:        maps.Clone(s.scores),
	}})
	s.log.Debug("question resolved", "index", s.index, "answered", len(s.answered), "timeLeft", s.timeRemaining)
	s.scheduleLocked(s.opts.GracePeriod, func(seq uint64) event { return advanceEvent{seq: seq} })
}

// allAnsweredLocked reports whether the distinct answer count has reached the expected count.
// Students who joined after the start are scored and count toward it too.
func (s *Session) allAnsweredLocked() bool {
	return len(s.expected) > 0 && len(s.answered) >= len(s.expected)
}

// scheduleLocked replaces the pending task. The new task's events carry a fresh
// sequence number so a callback from a cancelled timer that already fired is ignored.
func (s *Session) scheduleLocked(d time.Duration, mk func(seq uint64) event) {
	s.cancelLocked()
	seq := s.seq
	s.pending = s.opts.Scheduler.AfterFunc(d, func() { s.fire(mk(seq)) })
}

func (s *Session) cancelLocked() {
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
	s.seq++
}

func (s *Session) timeLimit(q domain.Question) int {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	return s.opts.DefaultTimeLimit
}
