package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content by invite code from a backing store (document DB, Postgres, ...).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, inviteCode string) (domain.Quiz, error)
}

// QuizRepository caches quizzes with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, inviteCode string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(inviteCode); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(inviteCode, func() (interface{}, error) {
		if quiz, ok := r.lookup(inviteCode); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, inviteCode)
		if err != nil {
			return domain.Quiz{}, err
		}

		if r.ttl > 0 {
			r.mu.Lock()
			r.cache[inviteCode] = cachedQuiz{
				quiz:      quiz,
				expiresAt: r.clock().Add(r.ttlWithJitter()),
			}
			r.mu.Unlock()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops a cached quiz so the next start reloads it.
func (r *QuizRepository) Invalidate(inviteCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, inviteCode)
}

func (r *QuizRepository) lookup(inviteCode string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[inviteCode]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

// NewStaticQuizLoader indexes quizzes by their invite code.
func NewStaticQuizLoader(quizzes ...domain.Quiz) *StaticQuizLoader {
	byCode := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		byCode[q.InviteCode] = q
	}
	return &StaticQuizLoader{quizzes: byCode}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, inviteCode string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[inviteCode]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
