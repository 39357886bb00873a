package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"

	"golang.org/x/sync/errgroup"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}

	repo.Invalidate("ABC123")
	if _, err := repo.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), "ABC123")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "ABC123")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryCollapsesConcurrentLoads(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(sampleQuiz()), delay: 50 * time.Millisecond}
	repo := NewQuizRepository(loader, time.Minute)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := repo.GetQuiz(context.Background(), "ABC123")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}
}

func TestStaticQuizLoaderUnknownCode(t *testing.T) {
	_, err := NewStaticQuizLoader(sampleQuiz()).LoadQuiz(context.Background(), "nope")
	if err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	delay time.Duration
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, inviteCode string) (domain.Quiz, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	return l.QuizLoader.LoadQuiz(ctx, inviteCode)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:         "quiz-1",
		InviteCode: "ABC123",
		Questions: []domain.Question{
			{
				ID:           "q1",
				Text:         "What is 2 + 2?",
				Options:      []string{"3", "4"},
				CorrectIndex: 1,
				TimeLimit:    10,
			},
		},
	}
}
