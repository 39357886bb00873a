package domain

// Inbound event names.
const (
	EventJoinLobby    = "join-lobby"
	EventStartQuiz    = "start-quiz"
	EventSubmitAnswer = "submit-answer"
)

// Outbound event names.
const (
	EventLobbyUpdate   = "lobby-update"
	EventQuizStarted   = "quiz-started"
	EventNewQuestion   = "new-question"
	EventTimeUpdate    = "time-update"
	EventQuestionEnded = "question-ended"
	EventQuizEnded     = "quiz-ended"
	EventError         = "error"
)

// Event is a named payload travelling to or from a connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type LobbyUpdate struct {
	Players []Player `json:"players"`
	Message string   `json:"message"`
}

type QuizStarted struct {
	TotalQuestions  int    `json:"totalQuestions"`
	BackgroundMusic string `json:"backgroundMusic"`
}

// QuestionView is a question stripped of its answer key.
type QuestionView struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Image     string   `json:"image,omitempty"`
}

type NewQuestion struct {
	Question      QuestionView `json:"question"`
	QuestionIndex int          `json:"questionIndex"`
	TimeLimit     int          `json:"timeLimit"`
}

type TimeUpdate struct {
	TimeLeft int `json:"timeLeft"`
}

type QuestionEnded struct {
	CorrectAnswer int    `json:"correctAnswer"`
	Scores        Scores `json:"scores"`
}

type QuizEnded struct {
	FinalScores Scores `json:"finalScores"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// NewError builds an error event addressed to a single actor.
func NewError(message string) Event {
	return Event{Type: EventError, Payload: ErrorMessage{Message: message}}
}
