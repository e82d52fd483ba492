package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/canvasync/hub"
	"github.com/zlnvch/canvasync/models"
)

func TestJoinRoom_ReplayThenPresence(t *testing.T) {
	svc, _, _ := setupService(t)
	alice, _ := joinAs(t, svc, "room1", "alice")
	op, err := svc.SubmitOperation(t.Context(), alice, stroke(diagonal...))
	require.NoError(t, err)

	_, bobSink := joinAs(t, svc, "room1", "bob")

	events := bobSink.All()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, hub.EventReplay, events[0].Type)
	assert.Equal(t, []models.Operation{op}, events[0].Operations)
	assert.Equal(t, hub.EventPresence, events[1].Type)

	users := events[1].Presence
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].UserId)
	assert.Equal(t, "bob", users[1].UserId)
	assert.Equal(t, "#336699", users[1].UserColor)
}

func TestJoinRoom_InvalidRoom(t *testing.T) {
	svc, _, _ := setupService(t)
	session, err := hub.NewSession("no spaces", models.User{Id: "alice"}, &testSink{})
	require.NoError(t, err)

	assert.Error(t, svc.JoinRoom(t.Context(), session))
	assert.Equal(t, 0, svc.Hub.SessionCount("no spaces"))
}

func TestUpdateCursor_BroadcastsToEveryoneIncludingMover(t *testing.T) {
	svc, _, _ := setupService(t)
	_, aliceSink := joinAs(t, svc, "room1", "alice")
	_, bobSink := joinAs(t, svc, "room1", "bob")

	err := svc.UpdateCursor(t.Context(), models.CursorUpdate{RoomId: "room1", UserId: "alice", X: 12, Y: 34, IsDrawing: true})
	require.NoError(t, err)

	for _, sink := range []*testSink{aliceSink, bobSink} {
		snapshots := sink.OfType(hub.EventPresence)
		latest := snapshots[len(snapshots)-1].Presence
		require.Len(t, latest, 2)
		assert.Equal(t, float64(12), latest[0].CursorX)
		assert.Equal(t, float64(34), latest[0].CursorY)
		assert.True(t, latest[0].IsDrawing)
	}
}

func TestLeaveRoom_RemovesPresenceAndStopsDelivery(t *testing.T) {
	svc, _, _ := setupService(t)
	alice, _ := joinAs(t, svc, "room1", "alice")
	bob, bobSink := joinAs(t, svc, "room1", "bob")

	require.NoError(t, svc.LeaveRoom(t.Context(), bob))
	before := len(bobSink.All())

	_, err := svc.SubmitOperation(t.Context(), alice, stroke(diagonal...))
	require.NoError(t, err)
	assert.Len(t, bobSink.All(), before)

	users, err := svc.LivePresence(t.Context(), "room1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].UserId)
}

func TestDropSession_KeepsPresenceUntilStale(t *testing.T) {
	svc, _, _ := setupService(t)
	_, _ = joinAs(t, svc, "room1", "alice")
	bob, _ := joinAs(t, svc, "room1", "bob")

	svc.DropSession(bob)

	assert.Equal(t, 1, svc.Hub.SessionCount("room1"))
	users, err := svc.LivePresence(t.Context(), "room1")
	require.NoError(t, err)
	assert.Len(t, users, 2, "abrupt disconnects are left to the staleness window")
}
