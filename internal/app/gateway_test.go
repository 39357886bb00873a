package app

import (
	"testing"

	"live-quiz-service/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesOnlyRoomSubscribers(t *testing.T) {
	req := require.New(t)
	g := NewGateway()
	a, b, c := newRecorder("a"), newRecorder("b"), newRecorder("c")
	for _, conn := range []*recorder{a, b, c} {
		g.Register(conn)
	}
	req.True(g.Subscribe("a", "room-1"))
	req.True(g.Subscribe("b", "room-1"))
	req.True(g.Subscribe("c", "room-2"))

	// When
	n := g.Broadcast("room-1", domain.Event{Type: domain.EventTimeUpdate})

	// Then
	req.Equal(2, n)
	req.Len(a.all(), 1)
	req.Len(b.all(), 1)
	req.Empty(c.all())
}

func TestSubscribeUnknownConnection(t *testing.T) {
	g := NewGateway()
	require.False(t, g.Subscribe("ghost", "room-1"))
	require.Zero(t, g.subscriberCount("room-1"))
}

func TestUnregisterDropsSubscriptions(t *testing.T) {
	req := require.New(t)
	g := NewGateway()
	a := newRecorder("a")
	g.Register(a)
	g.Subscribe("a", "room-1")
	g.Subscribe("a", "room-2")

	rooms := g.Unregister("a")

	req.ElementsMatch([]string{"room-1", "room-2"}, rooms)
	req.Zero(g.subscriberCount("room-1"))
	req.Empty(g.roomsOf("a"))
	req.Zero(g.Broadcast("room-2", domain.Event{Type: domain.EventTimeUpdate}))
	req.False(g.Send("a", domain.NewError("gone")))
}

func TestUnsubscribeKeepsOtherRooms(t *testing.T) {
	req := require.New(t)
	g := NewGateway()
	a := newRecorder("a")
	g.Register(a)
	g.Subscribe("a", "room-1")
	g.Subscribe("a", "room-2")

	g.Unsubscribe("a", "room-1")

	req.Equal([]string{"room-2"}, g.roomsOf("a"))
	req.True(g.Send("a", domain.NewError("still here")))
}
