package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Authenticator resolves a raw credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (domain.Identity, error)
}

type WSHandler struct {
	service  *app.QuizService
	auth     Authenticator
	upgrader websocket.Upgrader
	validate *validator.Validate
	log      *slog.Logger
}

func NewWSHandler(service *app.QuizService, authenticator Authenticator, log *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		auth:    authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		validate: validator.New(),
		log:      log,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	InviteCode string `json:"inviteCode" validate:"required"`
}

type startPayload struct {
	InviteCode string `json:"inviteCode" validate:"required"`
}

type answerPayload struct {
	QuestionID    string `json:"questionId" validate:"required"`
	Answer        *int   `json:"answer" validate:"required,min=0"`
	TimeRemaining int    `json:"timeRemaining"`
}

// ServeWS authenticates the request, upgrades it and runs the connection until either side closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		h.log.Info("connection refused", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}

	client := newWSClient(conn, h.log.With("user", identity.DisplayName))
	h.service.Connect(client)
	client.log.Debug("connected", "conn", client.id, "role", identity.Role)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writeLoop()
	}()

	// The request context ends with the handler; connection work outlives individual frames.
	ctx := context.WithoutCancel(r.Context())
	client.readLoop(func(msg inboundMessage) {
		h.dispatch(ctx, client, identity, msg)
	})

	client.close()
	<-writerDone
	h.service.Disconnect(client.id)
	client.log.Debug("disconnected", "conn", client.id)
}

func (h *WSHandler) dispatch(ctx context.Context, client *wsClient, identity domain.Identity, msg inboundMessage) {
	switch msg.Type {
	case domain.EventJoinLobby:
		var p joinPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		h.service.JoinLobby(ctx, client.id, identity, p.InviteCode)

	case domain.EventStartQuiz:
		var p startPayload
		if !h.decode(client, msg.Payload, &p) {
			return
		}
		if err := h.service.StartQuiz(ctx, identity, p.InviteCode); err != nil {
			client.Send(domain.NewError(errorMessage(err)))
		}

	case domain.EventSubmitAnswer:
		// Malformed answers are dropped like stale ones: no reply, no broadcast.
		var p answerPayload
		if err := h.parse(msg.Payload, &p); err != nil {
			client.log.Debug("answer dropped", "conn", client.id, "err", err)
			return
		}
		h.service.SubmitAnswer(ctx, client.id, domain.AnswerSubmission{
			QuestionID:    p.QuestionID,
			AnswerIndex:   *p.Answer,
			TimeRemaining: p.TimeRemaining,
		})

	default:
		client.Send(domain.NewError("unsupported message type"))
	}
}

// decode parses a payload and reports failures to the sender.
func (h *WSHandler) decode(client *wsClient, raw json.RawMessage, dst any) bool {
	if err := h.parse(raw, dst); err != nil {
		client.Send(domain.NewError(err.Error()))
		return false
	}
	return true
}

func (h *WSHandler) parse(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.New("invalid payload")
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// errorMessage maps service errors to the text shown to the requester.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthorization):
		return "Only teachers can start the quiz."
	case errors.Is(err, domain.ErrNoQuestions):
		return "This quiz has no questions."
	case errors.Is(err, domain.ErrQuizNotFound):
		return "Quiz not found."
	case errors.Is(err, domain.ErrSessionActive):
		return "Quiz already in progress."
	}
	return "Failed to start quiz."
}

// wsClient adapts a websocket connection to app.Conn. Writes happen on one goroutine only.
type wsClient struct {
	id        string
	conn      *websocket.Conn
	send      chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func newWSClient(conn *websocket.Conn, log *slog.Logger) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan domain.Event, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

func (c *wsClient) ID() string { return c.id }

// Send queues ev without blocking. A full buffer means the peer cannot keep up; the connection is dropped.
func (c *wsClient) Send(ev domain.Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- ev:
	default:
		c.log.Warn("send buffer full, closing connection", "conn", c.id)
		c.close()
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsClient) readLoop(handle func(inboundMessage)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Info("ws read error", "conn", c.id, "err", err)
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(domain.NewError("invalid message format"))
			continue
		}
		handle(msg)
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug("ws write error", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
