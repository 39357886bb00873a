package domain

// Role is the privilege level carried by a verified identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Identity is what a verified credential resolves to.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Role        Role   `json:"role"`
}

// Participant is one connection's membership record inside a lobby.
type Participant struct {
	Identity
	ConnID string
}

// Player is the public view of a lobby member.
type Player struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Question models a multiple choice question. CorrectIndex never leaves the server
// before the question is resolved.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	TimeLimit    int      `json:"timeLimit"` // seconds; 0 means use the configured default
	Image        string   `json:"image,omitempty"`
}

// Quiz is the read-only content a session is seeded with.
type Quiz struct {
	ID              string     `json:"id"`
	InviteCode      string     `json:"inviteCode"`
	Title           string     `json:"title"`
	BackgroundMusic string     `json:"backgroundMusic,omitempty"`
	Questions       []Question `json:"questions"`
}

// AnswerSubmission is a student's answer as reported by the client.
type AnswerSubmission struct {
	QuestionID    string
	AnswerIndex   int
	TimeRemaining int
}

// Scores maps display names to accumulated points.
type Scores map[string]int
