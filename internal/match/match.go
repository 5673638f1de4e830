// internal/match/match.go
package match

import (
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"virucide/internal/game"
	"virucide/internal/models"
)

const (
	// MinPlayers is the quorum: matches start with at least this many
	// seats and cancel when live seats drop below it mid-game.
	MinPlayers = 2
	// MaxPlayers caps the roster.
	MaxPlayers = 6
	// StartWindow is the join-confirmation window for matchmade matches.
	StartWindow = 5 * time.Second
)

// SystemOwner is the reserved chat identity for server-generated notices.
const SystemOwner = "[VIRUCIDE]"

// Visibility distinguishes invite-by-code matches from matchmade ones.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// State is the match lifecycle.
type State string

const (
	StateWaiting    State = "waiting"
	StateInProgress State = "in_progress"
	StateEnded      State = "ended"
	StateCancelled  State = "cancelled"
)

// gameUpdateMsg wraps a projection for the wire; the update's fields sit
// at the top level next to the message type.
type gameUpdateMsg struct {
	Type string `json:"type"`
	*game.Update
}

// Match is one session: the roster, lifecycle state and, once started, the
// game. Mu serializes everything touching this match, including the game's
// own timers; one writer at a time, distinct matches fully parallel.
type Match struct {
	Code       string
	Visibility Visibility
	State      State
	CreatedAt  time.Time

	// LeaderID is set for private matches; the leader starts the game and
	// leadership transfers when they leave.
	LeaderID uuid.UUID

	// ExpectedPlayers is how many seekers were grouped into this match;
	// zero for private matches. Reaching it starts the game early.
	ExpectedPlayers int

	Players []*game.Player
	Game    *game.Game

	Mu           sync.Mutex
	confirmTimer *time.Timer

	// SendFn delivers one payload to one seat. Installed by the transport
	// layer; called with Mu held, so implementations must not block.
	SendFn func(p *game.Player, payload interface{})

	// OnEmpty fires when the last player has acknowledged departure from a
	// finished or cancelled match; the registry evicts the code.
	OnEmpty func(code string)

	// OnResults receives the final leaderboard for persistence.
	OnResults func(code string, results []game.Result)
}

func newMatch(code string, visibility Visibility, leaderID uuid.UUID, expectedPlayers int) *Match {
	return &Match{
		Code:            code,
		Visibility:      visibility,
		State:           StateWaiting,
		LeaderID:        leaderID,
		ExpectedPlayers: expectedPlayers,
		CreatedAt:       time.Now(),
	}
}

// Join seats a user, or reconnects them to a private match they dropped
// from. The rejoining connection gets a start marker plus a full snapshot.
func (m *Match) Join(user *models.User, conn *websocket.Conn) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if p := m.playerByID(user.ID); p != nil {
		if p.Status == game.StatusDisconnected {
			return m.rejoinUnsafe(p, conn)
		}
		return game.Invalidf("you are already in this match")
	}

	switch m.State {
	case StateWaiting:
	case StateInProgress:
		return game.Invalidf("the match has already started")
	default:
		return game.Invalidf("the match is no longer open")
	}
	if len(m.Players) >= MaxPlayers {
		return game.Invalidf("the match is full")
	}

	p := game.NewPlayer(user.ID, user.Username, conn)
	m.Players = append(m.Players, p)
	m.systemChat(user.Username + " has joined the match")
	m.broadcastUsersWaiting()

	if m.ExpectedPlayers >= MinPlayers && len(m.Players) >= m.ExpectedPlayers {
		m.startUnsafe()
	}
	return nil
}

// rejoinUnsafe flips a held private seat back to connected and resyncs the
// client. Assumes lock is held.
func (m *Match) rejoinUnsafe(p *game.Player, conn *websocket.Conn) error {
	p.Status = game.StatusConnected
	p.Conn = conn
	m.systemChat(p.Name + " has reconnected")
	if m.Game != nil {
		m.sendPayload(p, map[string]interface{}{"type": "start_game"})
		m.sendPayload(p, gameUpdateMsg{Type: "game_update", Update: m.Game.Snapshot(p)})
		m.Game.ResumeTurn()
	}
	return nil
}

// Start begins the game. Private matches start on the leader's order;
// matchmade matches start automatically, so any caller is accepted there.
func (m *Match) Start(callerID uuid.UUID) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.State != StateWaiting {
		return game.Invalidf("the match has already started")
	}
	if m.Visibility == VisibilityPrivate && callerID != m.LeaderID {
		return game.Invalidf("only the match leader can start the game")
	}
	if len(m.Players) < MinPlayers {
		return game.Invalidf("at least %d players are needed to start", MinPlayers)
	}
	m.startUnsafe()
	return nil
}

// startUnsafe transitions to IN_PROGRESS and kicks off the game. Assumes
// lock is held; no-op outside WAITING, so a late confirm timer cannot
// double-start.
func (m *Match) startUnsafe() {
	if m.State != StateWaiting {
		return
	}
	m.stopConfirmTimer()
	m.State = StateInProgress

	g := game.NewGame(m.Code, m.Players, &m.Mu)
	g.SendUpdateFn = func(p *game.Player, upd *game.Update) {
		m.sendPayload(p, gameUpdateMsg{Type: "game_update", Update: upd})
	}
	g.OnFinished = func(results []game.Result) {
		m.State = StateEnded
		if m.OnResults != nil {
			m.OnResults(m.Code, results)
		}
	}
	m.Game = g

	log.Printf("match %s: starting with %d players", m.Code, len(m.Players))
	m.broadcast(map[string]interface{}{"type": "start_game"})
	g.Begin()
}

// Leave is the explicit departure. Idempotent: leaving a seat that is
// already gone reports no error. In private games the hand goes back into
// the deck and leadership moves on; in public games the hand is discarded
// and no AI takes over. A public match left without any connected player
// is cancelled rather than played out by its AI seats.
func (m *Match) Leave(playerID uuid.UUID) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p := m.playerByID(playerID)
	if p == nil || p.Status == game.StatusRemoved {
		m.maybeEvictUnsafe()
		return nil
	}

	name := p.Name
	wasLeader := m.LeaderID == playerID
	p.Conn = nil

	if m.State == StateWaiting {
		m.dropFromRosterUnsafe(playerID)
	} else {
		p.Status = game.StatusRemoved
		if m.Game != nil && !m.Game.Finished {
			m.Game.DisposeHand(p, m.Visibility == VisibilityPrivate)
		}
	}

	m.systemChat(name + " has left the match")
	if m.State == StateWaiting {
		m.broadcastUsersWaiting()
	}
	if wasLeader && m.Visibility == VisibilityPrivate {
		m.transferLeadershipUnsafe()
	}

	switch {
	case m.belowQuorumUnsafe(), m.headlessUnsafe():
		m.cancelUnsafe()
	case m.Game != nil:
		m.Game.ResumeTurn()
	}
	m.maybeEvictUnsafe()
	return nil
}

// Disconnect is the implicit departure: the transport dropped without a
// leave. Public in-progress seats fall to AI control for good; private
// seats are held for a rejoin. Idempotent.
func (m *Match) Disconnect(playerID uuid.UUID) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p := m.playerByID(playerID)
	if p == nil || p.Status != game.StatusConnected {
		return
	}
	name := p.Name
	wasLeader := m.LeaderID == playerID
	p.Conn = nil

	switch {
	case m.State == StateWaiting:
		// nothing to hold onto before the game starts
		m.dropFromRosterUnsafe(playerID)
		m.systemChat(name + " has disconnected")
		m.broadcastUsersWaiting()
		if wasLeader && m.Visibility == VisibilityPrivate {
			m.transferLeadershipUnsafe()
		}
		if m.belowQuorumUnsafe() {
			m.cancelUnsafe()
		}

	case m.Visibility == VisibilityPublic:
		p.Status = game.StatusAI
		m.systemChat(name + " has disconnected")
		if m.headlessUnsafe() {
			m.cancelUnsafe()
		} else if m.Game != nil {
			m.Game.ResumeTurn()
		}

	default:
		p.Status = game.StatusDisconnected
		m.systemChat(name + " has disconnected")
		if m.Game != nil {
			m.Game.ResumeTurn()
		}
	}
	m.maybeEvictUnsafe()
}

// Chat relays a player's message to the whole match.
func (m *Match) Chat(playerID uuid.UUID, msg string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	p := m.playerByID(playerID)
	if p == nil || p.Status == game.StatusRemoved {
		return game.Invalidf("you are not in this match")
	}
	if msg == "" {
		return game.Invalidf("empty chat message")
	}
	m.broadcast(map[string]interface{}{"type": "chat", "msg": msg, "owner": p.Name})
	return nil
}

// PlayCard routes a play_card action to the game under the match lock.
func (m *Match) PlayCard(playerID uuid.UUID, req game.PlayCardRequest) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.State != StateInProgress {
		return game.Invalidf("the match is not in progress")
	}
	return m.Game.PlayCard(playerID, req)
}

func (m *Match) PlayDiscard(playerID uuid.UUID, slot int) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.State != StateInProgress {
		return game.Invalidf("the match is not in progress")
	}
	return m.Game.PlayDiscard(playerID, slot)
}

func (m *Match) PlayPass(playerID uuid.UUID) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.State != StateInProgress {
		return game.Invalidf("the match is not in progress")
	}
	return m.Game.PlayPass(playerID)
}

func (m *Match) PlayDraw(playerID uuid.UUID) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.State != StateInProgress {
		return game.Invalidf("the match is not in progress")
	}
	return m.Game.PlayDraw(playerID)
}

// OpenConfirmWindow arms the join-confirmation timer for a matchmade
// match: when it elapses the game starts if a quorum confirmed, otherwise
// the match is cancelled. A fire after the match already started or
// cancelled is a no-op.
func (m *Match) OpenConfirmWindow(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.stopConfirmTimer()
	m.confirmTimer = time.AfterFunc(d, func() {
		m.Mu.Lock()
		defer m.Mu.Unlock()
		if m.State != StateWaiting {
			return
		}
		if len(m.Players) >= MinPlayers {
			m.startUnsafe()
		} else {
			log.Printf("match %s: confirmation window elapsed without quorum", m.Code)
			m.cancelUnsafe()
		}
	})
}

// CurrentState reports the lifecycle state under the lock.
func (m *Match) CurrentState() State {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.State
}

// HasSeat reports whether the user still occupies a live seat here,
// whatever its connection status.
func (m *Match) HasSeat(userID uuid.UUID) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	p := m.playerByID(userID)
	return p != nil && p.Status != game.StatusRemoved
}

// cancelUnsafe aborts the match and tells everyone. Assumes lock is held.
// Idempotent.
func (m *Match) cancelUnsafe() {
	if m.State == StateEnded || m.State == StateCancelled {
		return
	}
	m.stopConfirmTimer()
	if m.Game != nil {
		m.Game.Cancel()
	}
	m.State = StateCancelled
	log.Printf("match %s: cancelled", m.Code)
	m.broadcast(map[string]interface{}{"type": "game_cancelled"})
	m.maybeEvictUnsafe()
}

// transferLeadershipUnsafe hands leadership to the earliest-joined seat
// still connected and notifies the new leader only. Assumes lock is held.
func (m *Match) transferLeadershipUnsafe() {
	for _, p := range m.Players {
		if p.Status == game.StatusConnected {
			m.LeaderID = p.ID
			m.sendPayload(p, map[string]interface{}{"type": "game_owner", "owner": p.Name})
			m.systemChat(p.Name + " is the new match leader")
			return
		}
	}
	m.LeaderID = uuid.Nil
}

// dropFromRosterUnsafe removes a seat entirely; only legal while WAITING,
// where no board state exists. Assumes lock is held.
func (m *Match) dropFromRosterUnsafe(playerID uuid.UUID) {
	for i, p := range m.Players {
		if p.ID == playerID {
			m.Players = append(m.Players[:i], m.Players[i+1:]...)
			return
		}
	}
}

// belowQuorumUnsafe reports whether departures have made the match
// unviable: below 1 seat while waiting, below quorum while in progress.
// Assumes lock is held.
func (m *Match) belowQuorumUnsafe() bool {
	n := 0
	for _, p := range m.Players {
		if p.Status != game.StatusRemoved {
			n++
		}
	}
	switch m.State {
	case StateWaiting:
		return n < 1
	case StateInProgress:
		return n < MinPlayers
	default:
		return false
	}
}

// headlessUnsafe reports a public match in progress with no connected
// player left; its AI seats must not play each other to completion.
// Assumes lock is held.
func (m *Match) headlessUnsafe() bool {
	return m.Visibility == VisibilityPublic &&
		m.State == StateInProgress &&
		m.connectedCountUnsafe() == 0
}

// maybeEvictUnsafe fires OnEmpty once a finished or cancelled match has no
// connected seats left. AI and disconnected seats have no client to send
// the final leave, so they count as departed here. Assumes lock is held.
func (m *Match) maybeEvictUnsafe() {
	if m.State != StateEnded && m.State != StateCancelled {
		return
	}
	if m.connectedCountUnsafe() > 0 {
		return
	}
	if m.OnEmpty != nil {
		m.OnEmpty(m.Code)
	}
}

func (m *Match) connectedCountUnsafe() int {
	n := 0
	for _, p := range m.Players {
		if p.Status == game.StatusConnected {
			n++
		}
	}
	return n
}

func (m *Match) playerByID(id uuid.UUID) *game.Player {
	for _, p := range m.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *Match) stopConfirmTimer() {
	if m.confirmTimer != nil {
		m.confirmTimer.Stop()
		m.confirmTimer = nil
	}
}

func (m *Match) systemChat(msg string) {
	m.broadcast(map[string]interface{}{"type": "chat", "msg": msg, "owner": SystemOwner})
}

func (m *Match) broadcastUsersWaiting() {
	m.broadcast(map[string]interface{}{"type": "users_waiting", "count": len(m.Players)})
}

// broadcast sends a payload to every connected seat. Assumes lock is held.
func (m *Match) broadcast(payload interface{}) {
	for _, p := range m.Players {
		m.sendPayload(p, payload)
	}
}

func (m *Match) sendPayload(p *game.Player, payload interface{}) {
	if m.SendFn == nil || p.Status != game.StatusConnected {
		return
	}
	m.SendFn(p, payload)
}
