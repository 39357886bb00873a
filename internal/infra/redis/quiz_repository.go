package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from a backing store (e.g., document DB).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, inviteCode string) (domain.Quiz, error)
}

// QuizRepository caches whole quizzes in Redis and falls back to a loader on cache miss.
// Content is stored as: SET quiz:{inviteCode}:content <json> EX ttl(+jitter)
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    *slog.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log *slog.Logger) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, inviteCode string) (domain.Quiz, error) {
	if quiz, ok := r.fromCache(ctx, inviteCode); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(inviteCode, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.fromCache(ctx, inviteCode); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, inviteCode)
		if err != nil {
			return domain.Quiz{}, err
		}

		data, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := r.client.Set(ctx, contentKey(inviteCode), data, r.ttlWithJitter()).Err(); err != nil {
			// The cache is best-effort; the loaded quiz is still good.
			r.log.Warn("cache quiz failed", "inviteCode", inviteCode, "err", err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached content for inviteCode.
func (r *QuizRepository) Invalidate(ctx context.Context, inviteCode string) error {
	return r.client.Del(ctx, contentKey(inviteCode)).Err()
}

func (r *QuizRepository) fromCache(ctx context.Context, inviteCode string) (domain.Quiz, bool) {
	data, err := r.client.Get(ctx, contentKey(inviteCode)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("read cached quiz failed", "inviteCode", inviteCode, "err", err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		r.log.Warn("corrupt cached quiz", "inviteCode", inviteCode, "err", err)
		return domain.Quiz{}, false
	}
	return quiz, true
}

func contentKey(inviteCode string) string {
	return "quiz:" + inviteCode + ":content"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
