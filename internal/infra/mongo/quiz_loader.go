package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"live-quiz-service/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	quizCollection     = "quizzes"
	questionCollection = "questions"
)

type quizDocument struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty"`
	Title           string               `bson:"title"`
	InviteCode      string               `bson:"inviteCode"`
	BackgroundMusic string               `bson:"backgroundMusic,omitempty"`
	Questions       []primitive.ObjectID `bson:"questions"`
	CreatedAt       time.Time            `bson:"createdAt"`
}

type optionDocument struct {
	Text      string `bson:"text"`
	IsCorrect bool   `bson:"isCorrect"`
}

type questionDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	QuizID    primitive.ObjectID `bson:"quizId"`
	Text      string             `bson:"text"`
	Image     string             `bson:"image,omitempty"`
	Options   []optionDocument   `bson:"options"`
	TimeLimit int                `bson:"timeLimit,omitempty"`
}

// QuizLoader reads quizzes and their referenced questions from a document database.
type QuizLoader struct {
	db  *mongo.Database
	log *slog.Logger
}

func NewQuizLoader(db *mongo.Database, log *slog.Logger) *QuizLoader {
	return &QuizLoader{db: db, log: log}
}

// Connect opens a client for uri and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, inviteCode string) (domain.Quiz, error) {
	var quiz quizDocument
	err := l.db.Collection(quizCollection).FindOne(ctx, bson.M{"inviteCode": inviteCode}).Decode(&quiz)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	out := domain.Quiz{
		ID:              quiz.ID.Hex(),
		InviteCode:      quiz.InviteCode,
		Title:           quiz.Title,
		BackgroundMusic: quiz.BackgroundMusic,
	}
	if len(quiz.Questions) == 0 {
		return out, nil
	}

	cur, err := l.db.Collection(questionCollection).Find(ctx, bson.M{"_id": bson.M{"$in": quiz.Questions}})
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	var docs []questionDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domain.Quiz{}, fmt.Errorf("decode questions: %w", err)
	}

	byID := make(map[primitive.ObjectID]questionDocument, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	// Keep the quiz's own ordering; dangling references and questions without an answer key are skipped.
	for _, id := range quiz.Questions {
		d, ok := byID[id]
		if !ok {
			l.log.Warn("quiz references a missing question", "inviteCode", inviteCode, "question", id.Hex())
			continue
		}
		q, ok := toQuestion(d)
		if !ok {
			l.log.Warn("question has no correct option, skipping", "inviteCode", inviteCode, "question", id.Hex())
			continue
		}
		out.Questions = append(out.Questions, q)
	}
	return out, nil
}

// toQuestion converts a stored question. It reports false when no option is flagged correct.
func toQuestion(d questionDocument) (domain.Question, bool) {
	q := domain.Question{
		ID:           d.ID.Hex(),
		Text:         d.Text,
		Image:        d.Image,
		TimeLimit:    d.TimeLimit,
		CorrectIndex: -1,
		Options:      make([]string, 0, len(d.Options)),
	}
	for i, opt := range d.Options {
		q.Options = append(q.Options, opt.Text)
		if opt.IsCorrect && q.CorrectIndex < 0 {
			q.CorrectIndex = i
		}
	}
	return q, q.CorrectIndex >= 0
}

// SaveQuiz writes quiz and its questions in the collection layout LoadQuiz reads; used by seeding and tests.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	quizID := primitive.NewObjectID()
	ids := make([]primitive.ObjectID, 0, len(quiz.Questions))
	docs := make([]any, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		doc := questionDocument{ID: primitive.NewObjectID(), QuizID: quizID, Text: q.Text, Image: q.Image, TimeLimit: q.TimeLimit}
		for i, text := range q.Options {
			doc.Options = append(doc.Options, optionDocument{Text: text, IsCorrect: i == q.CorrectIndex})
		}
		ids = append(ids, doc.ID)
		docs = append(docs, doc)
	}
	if len(docs) > 0 {
		if _, err := l.db.Collection(questionCollection).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("save questions: %w", err)
		}
	}
	_, err := l.db.Collection(quizCollection).InsertOne(ctx, quizDocument{
		ID:              quizID,
		Title:           quiz.Title,
		InviteCode:      quiz.InviteCode,
		BackgroundMusic: quiz.BackgroundMusic,
		Questions:       ids,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}
