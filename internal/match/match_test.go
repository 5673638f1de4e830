// internal/match/match_test.go
package match

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virucide/internal/game"
	"virucide/internal/models"
)

// capture records every payload each seat would have received.
type capture struct {
	mu   sync.Mutex
	msgs map[string][]interface{}
}

func newCapture() *capture {
	return &capture{msgs: make(map[string][]interface{})}
}

func (c *capture) sendFn(p *game.Player, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs[p.Name] = append(c.msgs[p.Name], payload)
}

func payloadType(v interface{}) string {
	switch msg := v.(type) {
	case map[string]interface{}:
		t, _ := msg["type"].(string)
		return t
	case gameUpdateMsg:
		return msg.Type
	}
	return ""
}

func (c *capture) received(name, msgType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.msgs[name] {
		if payloadType(v) == msgType {
			return true
		}
	}
	return false
}

func (c *capture) chats(name string) []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]interface{}
	for _, v := range c.msgs[name] {
		if m, ok := v.(map[string]interface{}); ok && m["type"] == "chat" {
			out = append(out, m)
		}
	}
	return out
}

func testUser(name string) *models.User {
	return &models.User{ID: uuid.New(), Username: name}
}

// newTestMatch builds a registry whose matches get a capture transport.
func newTestRegistry() (*Registry, *capture) {
	r := NewRegistry()
	cap := newCapture()
	r.OnCreate = func(m *Match) { m.SendFn = cap.sendFn }
	return r, cap
}

func TestPrivateMatchStartOnlyByLeader(t *testing.T) {
	r, cap := newTestRegistry()
	leader, guest := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPrivate, leader.ID, 0)

	require.NoError(t, m.Join(leader, nil))
	require.NoError(t, m.Join(guest, nil))
	assert.True(t, cap.received("ana", "users_waiting"))

	err := m.Start(guest.ID)
	require.Error(t, err)
	assert.True(t, game.IsValidation(err))

	require.NoError(t, m.Start(leader.ID))
	assert.Equal(t, StateInProgress, m.CurrentState())
	assert.True(t, cap.received("ana", "start_game"))
	assert.True(t, cap.received("bob", "start_game"))
	assert.True(t, cap.received("ana", "game_update"))

	err = m.Start(leader.ID)
	require.Error(t, err, "starting twice is a validation error")
}

func TestStartNeedsQuorum(t *testing.T) {
	r, _ := newTestRegistry()
	leader := testUser("ana")
	m := r.Create(VisibilityPrivate, leader.ID, 0)
	require.NoError(t, m.Join(leader, nil))

	err := m.Start(leader.ID)
	require.Error(t, err)
	assert.True(t, game.IsValidation(err))
}

func TestLeaderLeaveTransfersLeadership(t *testing.T) {
	r, cap := newTestRegistry()
	ana, bob, eva := testUser("ana"), testUser("bob"), testUser("eva")
	m := r.Create(VisibilityPrivate, ana.ID, 0)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))
	require.NoError(t, m.Join(eva, nil))

	require.NoError(t, m.Leave(ana.ID))

	assert.Equal(t, bob.ID, m.LeaderID, "earliest remaining joiner becomes leader")
	assert.True(t, cap.received("bob", "game_owner"))
	assert.False(t, cap.received("eva", "game_owner"), "ownership change goes to the new leader only")

	found := false
	for _, chat := range cap.chats("eva") {
		if chat["owner"] == SystemOwner && chat["msg"] == "ana has left the match" {
			found = true
		}
	}
	assert.True(t, found, "everyone gets a system chat naming the departed leader")
}

func TestLeaveIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPrivate, ana.ID, 0)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))

	require.NoError(t, m.Leave(bob.ID))
	require.NoError(t, m.Leave(bob.ID))
	require.NoError(t, m.Leave(uuid.New()), "leaving a match you are not in is a no-op")
}

func TestPrivateDisconnectHoldsSeatForRejoin(t *testing.T) {
	r, cap := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPrivate, ana.ID, 0)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))
	require.NoError(t, m.Start(ana.ID))

	m.Disconnect(bob.ID)
	seat := m.playerByID(bob.ID)
	require.NotNil(t, seat)
	assert.Equal(t, game.StatusDisconnected, seat.Status)
	assert.Equal(t, StateInProgress, m.CurrentState(), "private matches survive a disconnect")

	require.NoError(t, m.Join(bob, nil))
	assert.Equal(t, game.StatusConnected, seat.Status)

	// the rejoin delivers a started marker and a full snapshot
	assert.True(t, cap.received("bob", "start_game"))
	var snapshot *game.Update
	cap.mu.Lock()
	for _, v := range cap.msgs["bob"] {
		if msg, ok := v.(gameUpdateMsg); ok && msg.Update != nil && msg.Update.Finished != nil {
			snapshot = msg.Update
		}
	}
	cap.mu.Unlock()
	require.NotNil(t, snapshot, "snapshot update carries the finished flag explicitly")
	assert.False(t, *snapshot.Finished)
	assert.NotEmpty(t, snapshot.Hand, "snapshot restores the private hand")
}

func TestPublicDisconnectFallsToAI(t *testing.T) {
	r, cap := newTestRegistry()
	ana, bob, eva := testUser("ana"), testUser("bob"), testUser("eva")
	m := r.Create(VisibilityPublic, uuid.Nil, 3)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))
	require.NoError(t, m.Join(eva, nil))
	require.Equal(t, StateInProgress, m.CurrentState(), "reaching the expected roster starts the game")

	// first joiner holds the first turn; drop them mid-turn
	m.Disconnect(ana.ID)

	seat := m.playerByID(ana.ID)
	require.NotNil(t, seat)
	assert.Equal(t, game.StatusAI, seat.Status)
	assert.Equal(t, StateInProgress, m.CurrentState())

	m.Mu.Lock()
	cur := m.Game.Players[m.Game.CurrentPlayerIndex]
	m.Mu.Unlock()
	assert.NotEqual(t, ana.ID, cur.ID, "the engine played the AI turn and moved on")
	assert.True(t, cap.received("bob", "game_update"))
}

func TestRejoinRejectedForPublicMatch(t *testing.T) {
	r, _ := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPublic, uuid.Nil, 2)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))

	m.Disconnect(ana.ID)
	err := m.Join(ana, nil)
	require.Error(t, err, "an AI-controlled seat never returns to connected")
	assert.True(t, game.IsValidation(err))
}

func TestCancelBelowQuorumInProgress(t *testing.T) {
	r, cap := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPrivate, ana.ID, 0)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))
	require.NoError(t, m.Start(ana.ID))

	require.NoError(t, m.Leave(ana.ID))

	assert.Equal(t, StateCancelled, m.CurrentState())
	assert.True(t, cap.received("bob", "game_cancelled"))

	// the registry holds the code until the last player acknowledges
	_, ok := r.Get(m.Code)
	assert.True(t, ok)
	require.NoError(t, m.Leave(bob.ID))
	_, ok = r.Get(m.Code)
	assert.False(t, ok, "all seats gone, code evicted")
}

func TestPublicMatchCancelsWhenLastHumanLeaves(t *testing.T) {
	r, _ := newTestRegistry()
	ana, bob, eva := testUser("ana"), testUser("bob"), testUser("eva")
	m := r.Create(VisibilityPublic, uuid.Nil, 3)
	var persisted bool
	m.OnResults = func(string, []game.Result) { persisted = true }

	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))
	require.NoError(t, m.Join(eva, nil))
	require.Equal(t, StateInProgress, m.CurrentState())

	m.Disconnect(ana.ID)
	m.Disconnect(bob.ID)
	require.NoError(t, m.Leave(eva.ID))

	assert.Equal(t, StateCancelled, m.CurrentState(), "AI seats must not play the match out alone")
	assert.False(t, persisted, "no results for a match nobody watched end")
	_, ok := r.Get(m.Code)
	assert.False(t, ok, "headless match evicted")
}

func TestPublicMatchEvictedWhenAllDisconnect(t *testing.T) {
	r, _ := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPublic, uuid.Nil, 2)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))
	require.Equal(t, StateInProgress, m.CurrentState())

	m.Disconnect(ana.ID)
	m.Disconnect(bob.ID)

	assert.Equal(t, StateCancelled, m.CurrentState())
	_, ok := r.Get(m.Code)
	assert.False(t, ok, "AI seats cannot acknowledge departure; the code must not leak")
}

func TestCancelledMatchEvictedAfterLastDisconnect(t *testing.T) {
	r, _ := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPrivate, ana.ID, 0)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))
	require.NoError(t, m.Start(ana.ID))

	require.NoError(t, m.Leave(ana.ID))
	require.Equal(t, StateCancelled, m.CurrentState())

	m.Disconnect(bob.ID)
	_, ok := r.Get(m.Code)
	assert.False(t, ok, "a disconnected seat holds no claim on a cancelled match")
}

func TestJoinValidation(t *testing.T) {
	r, _ := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPrivate, ana.ID, 0)
	require.NoError(t, m.Join(ana, nil))

	err := m.Join(ana, nil)
	require.Error(t, err, "double join rejected")

	require.NoError(t, m.Join(bob, nil))
	require.NoError(t, m.Start(ana.ID))

	err = m.Join(testUser("eva"), nil)
	require.Error(t, err, "no joining a started match cold")
	assert.True(t, game.IsValidation(err))
}

func TestChat(t *testing.T) {
	r, cap := newTestRegistry()
	ana, bob := testUser("ana"), testUser("bob")
	m := r.Create(VisibilityPrivate, ana.ID, 0)
	require.NoError(t, m.Join(ana, nil))
	require.NoError(t, m.Join(bob, nil))

	require.NoError(t, m.Chat(ana.ID, "hola"))
	chats := cap.chats("bob")
	require.NotEmpty(t, chats)
	last := chats[len(chats)-1]
	assert.Equal(t, "hola", last["msg"])
	assert.Equal(t, "ana", last["owner"])

	err := m.Chat(uuid.New(), "nope")
	require.Error(t, err)
}
