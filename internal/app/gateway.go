package app

import (
	"sync"

	"live-quiz-service/internal/domain"

	"github.com/samber/lo"
)

// Conn is one live bidirectional connection. Send must not block.
type Conn interface {
	ID() string
	Send(ev domain.Event)
}

// Broadcaster fans events out to room subscribers.
type Broadcaster interface {
	Subscribe(connID, room string) bool
	Unsubscribe(connID, room string)
	Broadcast(room string, ev domain.Event) int
	Send(connID string, ev domain.Event) bool
}

type set = map[string]struct{}

// Gateway maps connections to the rooms they are subscribed to.
// Broadcast delivers to exactly the subscribers present when it takes the lock.
type Gateway struct {
	mu    sync.RWMutex
	conns map[string]Conn
	rooms map[string]set // room -> conn ids
	subs  map[string]set // conn id -> rooms
}

func NewGateway() *Gateway {
	return &Gateway{
		conns: make(map[string]Conn),
		rooms: make(map[string]set),
		subs:  make(map[string]set),
	}
}

func (g *Gateway) Register(conn Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[conn.ID()] = conn
	if _, ok := g.subs[conn.ID()]; !ok {
		g.subs[conn.ID()] = make(set)
	}
}

// Unregister drops the connection and all of its subscriptions, returning the rooms it was in.
func (g *Gateway) Unregister(connID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	rooms := lo.Keys(g.subs[connID])
	for _, room := range rooms {
		g.unsubscribeLocked(connID, room)
	}
	delete(g.subs, connID)
	delete(g.conns, connID)
	return rooms
}

// Subscribe adds a registered connection to room. Unknown connections are ignored.
func (g *Gateway) Subscribe(connID, room string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.conns[connID]; !ok {
		return false
	}
	if g.rooms[room] == nil {
		g.rooms[room] = make(set)
	}
	g.rooms[room][connID] = struct{}{}
	g.subs[connID][room] = struct{}{}
	return true
}

func (g *Gateway) Unsubscribe(connID, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unsubscribeLocked(connID, room)
}

func (g *Gateway) unsubscribeLocked(connID, room string) {
	if members, ok := g.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(g.rooms, room)
		}
	}
	if rooms, ok := g.subs[connID]; ok {
		delete(rooms, room)
	}
}

// Broadcast sends ev to every connection in room and reports how many were addressed.
func (g *Gateway) Broadcast(room string, ev domain.Event) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members := g.rooms[room]
	for connID := range members {
		g.conns[connID].Send(ev)
	}
	return len(members)
}

// Send addresses a single connection.
func (g *Gateway) Send(connID string, ev domain.Event) bool {
	g.mu.RLock()
	conn, ok := g.conns[connID]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	conn.Send(ev)
	return true
}
