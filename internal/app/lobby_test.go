package app

import (
	"fmt"
	"slices"
	"testing"

	"live-quiz-service/internal/domain"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type lobbyFixture struct {
	gateway *Gateway
	lobbies *LobbyRegistry
}

func newLobbyFixture() *lobbyFixture {
	g := NewGateway()
	return &lobbyFixture{gateway: g, lobbies: NewLobbyRegistry(g, testLogger())}
}

func (f *lobbyFixture) connect(connID, name string, role domain.Role) (*recorder, domain.Participant) {
	conn := newRecorder(connID)
	f.gateway.Register(conn)
	return conn, domain.Participant{Identity: identity(name, role), ConnID: connID}
}

func (f *lobbyFixture) names(code string) []string {
	return lo.Map(f.lobbies.Players(code), func(p domain.Player, _ int) string { return p.Name })
}

func TestJoinBroadcastsPlayersInJoinOrder(t *testing.T) {
	req := require.New(t)
	f := newLobbyFixture()
	teacher, tp := f.connect("c1", "T", domain.RoleTeacher)
	_, ap := f.connect("c2", "A", domain.RoleStudent)

	// When
	f.lobbies.Join(code, tp)
	f.lobbies.Join(code, ap)

	// Then
	update, ok := teacher.last(domain.EventLobbyUpdate)
	req.True(ok)
	req.Equal(domain.LobbyUpdate{
		Players: []domain.Player{{Name: "T", Role: domain.RoleTeacher}, {Name: "A", Role: domain.RoleStudent}},
		Message: "A joined the lobby.",
	}, update.Payload)
	req.Equal([]string{"A"}, f.lobbies.Students(code))
	req.True(f.lobbies.exists(code))
}

func TestRejoinReplacesEntryAndOldConnectionCannotRemoveIt(t *testing.T) {
	req := require.New(t)
	f := newLobbyFixture()
	_, ap := f.connect("c1", "A", domain.RoleStudent)
	_, bp := f.connect("c2", "B", domain.RoleStudent)
	_, ap2 := f.connect("c3", "A", domain.RoleStudent)
	f.lobbies.Join(code, ap)
	f.lobbies.Join(code, bp)

	// When A comes back on a new connection and the old one closes afterwards
	f.lobbies.Join(code, ap2)
	departures := f.lobbies.Leave("c1")

	// Then
	req.Empty(departures)
	req.Equal([]string{"B", "A"}, f.names(code))
	memberships := f.lobbies.Memberships("c3")
	req.Len(memberships, 1)
	req.Equal("c3", memberships[0].Participant.ConnID)
	req.Empty(f.lobbies.Memberships("c1"))
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	req := require.New(t)
	f := newLobbyFixture()
	teacher, tp := f.connect("c1", "T", domain.RoleTeacher)
	alice, ap := f.connect("c2", "A", domain.RoleStudent)
	f.lobbies.Join(code, tp)
	f.lobbies.Join(code, ap)
	before := len(alice.all())

	// When
	departures := f.lobbies.Leave("c2")

	// Then
	req.Equal([]Departure{{Membership: Membership{InviteCode: code, Participant: ap}}}, departures)
	update, _ := teacher.last(domain.EventLobbyUpdate)
	req.Equal("A left the lobby.", update.Payload.(domain.LobbyUpdate).Message)
	req.Len(alice.all(), before)
}

func TestLastLeaveDestroysLobby(t *testing.T) {
	req := require.New(t)
	f := newLobbyFixture()
	_, ap := f.connect("c1", "A", domain.RoleStudent)
	f.lobbies.Join(code, ap)

	departures := f.lobbies.Leave("c1")

	req.Len(departures, 1)
	req.True(departures[0].LobbyClosed)
	req.False(f.lobbies.exists(code))
	req.Nil(f.lobbies.Players(code))
	req.Zero(f.gateway.subscriberCount(code))

	// Leaving twice, or never having joined, is harmless.
	req.Empty(f.lobbies.Leave("c1"))
	req.Empty(f.lobbies.Leave("never"))
}

func TestMembersMatchJoinsMinusLeavesUnderConcurrency(t *testing.T) {
	req := require.New(t)
	f := newLobbyFixture()
	const n = 40

	participants := make([]domain.Participant, n)
	for i := range n {
		_, participants[i] = f.connect(fmt.Sprintf("c%d", i), fmt.Sprintf("P%02d", i), domain.RoleStudent)
	}

	// When every participant joins and the odd ones leave again
	var g errgroup.Group
	for i, p := range participants {
		g.Go(func() error {
			f.lobbies.Join(code, p)
			if i%2 == 1 {
				f.lobbies.Leave(p.ConnID)
			}
			return nil
		})
	}
	req.NoError(g.Wait())

	// Then
	var want []string
	for i, p := range participants {
		if i%2 == 0 {
			want = append(want, p.DisplayName)
		}
	}
	got := f.names(code)
	slices.Sort(got)
	req.Equal(want, got)
	req.Equal(n/2, f.gateway.subscriberCount(code))
}
