package app

import (
	"fmt"
	"log/slog"
	"sync"

	"live-quiz-service/internal/domain"

	"github.com/samber/lo"
)

// Membership ties a participant record to the lobby it sits in.
type Membership struct {
	InviteCode  string
	Participant domain.Participant
}

// Departure describes one lobby entry removed by Leave.
type Departure struct {
	Membership
	// LobbyClosed is set when the departure emptied and destroyed the lobby.
	LobbyClosed bool
}

type lobby struct {
	code    string
	mu      sync.Mutex
	members map[string]domain.Participant // by display name
	order   []string
	closed  bool
}

func (l *lobby) playersLocked() []domain.Player {
	return lo.Map(l.order, func(name string, _ int) domain.Player {
		p := l.members[name]
		return domain.Player{Name: p.DisplayName, Role: p.Role}
	})
}

// LobbyRegistry owns the lobbies keyed by invite code. Each lobby has its own lock; the
// registry lock only guards the index maps and is never held while taking a lobby lock.
type LobbyRegistry struct {
	out Broadcaster
	log *slog.Logger

	mu      sync.Mutex
	lobbies map[string]*lobby
	byConn  map[string]set // conn id -> invite codes
}

func NewLobbyRegistry(out Broadcaster, log *slog.Logger) *LobbyRegistry {
	return &LobbyRegistry{
		out:     out,
		log:     log,
		lobbies: make(map[string]*lobby),
		byConn:  make(map[string]set),
	}
}

// Join puts p into the lobby for inviteCode, replacing any member with the same display name.
func (r *LobbyRegistry) Join(inviteCode string, p domain.Participant) {
	for {
		l := r.getOrCreate(inviteCode)
		l.mu.Lock()
		if l.closed {
			// Lost a race with the last member leaving; the next getOrCreate builds a fresh lobby.
			l.mu.Unlock()
			continue
		}

		if prev, ok := l.members[p.DisplayName]; ok && prev.ConnID != p.ConnID {
			r.log.Debug("replacing lobby member", "inviteCode", inviteCode, "name", p.DisplayName)
		}
		l.members[p.DisplayName] = p
		l.order = append(lo.Without(l.order, p.DisplayName), p.DisplayName)
		r.track(p.ConnID, inviteCode)
		r.out.Subscribe(p.ConnID, inviteCode)

		r.out.Broadcast(inviteCode, domain.Event{Type: domain.EventLobbyUpdate, Payload: domain.LobbyUpdate{
			Players: l.playersLocked(),
			Message: fmt.Sprintf("%s joined the lobby.", p.DisplayName),
		}})
		r.log.Info("joined lobby", "inviteCode", inviteCode, "name", p.DisplayName, "role", p.Role, "members", len(l.members))
		l.mu.Unlock()
		return
	}
}

// Leave removes the participants owned by connID from every lobby the connection joined.
// Safe on connections that never joined.
func (r *LobbyRegistry) Leave(connID string) []Departure {
	var departures []Departure
	for _, code := range r.untrack(connID) {
		r.mu.Lock()
		l, ok := r.lobbies[code]
		r.mu.Unlock()
		if !ok {
			r.out.Unsubscribe(connID, code)
			continue
		}
		if d, ok := r.leaveLobby(l, connID); ok {
			departures = append(departures, d)
		}
	}
	return departures
}

func (r *LobbyRegistry) leaveLobby(l *lobby, connID string) (Departure, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r.out.Unsubscribe(connID, l.code)
	if l.closed {
		return Departure{}, false
	}
	p, ok := lo.FindKeyBy(l.members, func(_ string, m domain.Participant) bool { return m.ConnID == connID })
	if !ok {
		// The name was taken over by a newer connection.
		return Departure{}, false
	}
	member := l.members[p]
	delete(l.members, p)
	l.order = lo.Without(l.order, p)

	r.out.Broadcast(l.code, domain.Event{Type: domain.EventLobbyUpdate, Payload: domain.LobbyUpdate{
		Players: l.playersLocked(),
		Message: fmt.Sprintf("%s left the lobby.", member.DisplayName),
	}})
	r.log.Info("left lobby", "inviteCode", l.code, "name", member.DisplayName, "members", len(l.members))

	d := Departure{Membership: Membership{InviteCode: l.code, Participant: member}}
	if len(l.members) == 0 {
		l.closed = true
		r.mu.Lock()
		if r.lobbies[l.code] == l {
			delete(r.lobbies, l.code)
		}
		r.mu.Unlock()
		d.LobbyClosed = true
		r.log.Info("lobby destroyed", "inviteCode", l.code)
	}
	return d, true
}

// Players returns the ordered member list of a lobby.
func (r *LobbyRegistry) Players(inviteCode string) []domain.Player {
	l, ok := r.get(inviteCode)
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playersLocked()
}

// Students snapshots the display names of the student members of a lobby.
func (r *LobbyRegistry) Students(inviteCode string) []string {
	l, ok := r.get(inviteCode)
	if !ok {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Filter(l.order, func(name string, _ int) bool {
		return l.members[name].Role == domain.RoleStudent
	})
}

// Memberships lists the lobby entries currently owned by connID.
func (r *LobbyRegistry) Memberships(connID string) []Membership {
	r.mu.Lock()
	codes := lo.Keys(r.byConn[connID])
	r.mu.Unlock()

	var out []Membership
	for _, code := range codes {
		l, ok := r.get(code)
		if !ok {
			continue
		}
		l.mu.Lock()
		for _, m := range l.members {
			if m.ConnID == connID {
				out = append(out, Membership{InviteCode: code, Participant: m})
			}
		}
		l.mu.Unlock()
	}
	return out
}

func (r *LobbyRegistry) get(code string) (*lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[code]
	return l, ok
}

func (r *LobbyRegistry) getOrCreate(code string) *lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.lobbies[code]; ok {
		return l
	}
	l := &lobby{code: code, members: make(map[string]domain.Participant)}
	r.lobbies[code] = l
	r.log.Info("lobby created", "inviteCode", code)
	return l
}

func (r *LobbyRegistry) track(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byConn[connID] == nil {
		r.byConn[connID] = make(set)
	}
	r.byConn[connID][code] = struct{}{}
}

func (r *LobbyRegistry) untrack(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := lo.Keys(r.byConn[connID])
	delete(r.byConn, connID)
	return codes
}
