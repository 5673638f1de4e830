// internal/handlers/game_server.go
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"virucide/internal/database"
	"virucide/internal/game"
	"virucide/internal/match"
)

// GameServer wires the registry, the matchmaking queue and the transport
// together. Every match created through the registry gets its send
// function and persistence callback attached here.
type GameServer struct {
	Registry   *match.Registry
	Matchmaker *match.Matchmaker
	Logger     *logrus.Logger
}

func NewGameServer(logger *logrus.Logger) *GameServer {
	if logger == nil {
		logger = logrus.New()
	}
	gs := &GameServer{
		Registry: match.NewRegistry(),
		Logger:   logger,
	}
	gs.Matchmaker = match.NewMatchmaker(gs.Registry, logger)
	gs.Registry.OnCreate = gs.attachMatch
	return gs
}

// outboundMsg is one pending socket write.
type outboundMsg struct {
	conn *websocket.Conn
	data []byte
}

// outboundQueue drains a match's socket writes on a single goroutine so
// each recipient sees payloads in the order the engine produced them.
// enqueue never blocks; a full queue drops the payload.
type outboundQueue struct {
	msgs chan outboundMsg
}

func newOutboundQueue(write func(conn *websocket.Conn, data []byte)) *outboundQueue {
	q := &outboundQueue{msgs: make(chan outboundMsg, 256)}
	go func() {
		for msg := range q.msgs {
			write(msg.conn, msg.data)
		}
	}()
	return q
}

func (q *outboundQueue) enqueue(conn *websocket.Conn, data []byte) bool {
	select {
	case q.msgs <- outboundMsg{conn: conn, data: data}:
		return true
	default:
		return false
	}
}

func (q *outboundQueue) close() {
	close(q.msgs)
}

// attachMatch installs the transport and persistence hooks on a new match.
// SendFn is called with the match lock held, so writes go through the
// match's outbound queue; a slow client never stalls the game, and a
// client's updates arrive in the order they were produced. The queue is
// closed when the registry evicts the match.
func (gs *GameServer) attachMatch(m *match.Match) {
	q := newOutboundQueue(func(conn *websocket.Conn, data []byte) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			gs.Logger.Warnf("match %s: failed to write to client: %v", m.Code, err)
		}
	})

	// SendFn and OnEmpty are both called with the match lock held.
	closed := false
	m.SendFn = func(p *game.Player, payload interface{}) {
		if closed || p.Conn == nil {
			return
		}
		data, err := json.Marshal(payload)
		if err != nil {
			gs.Logger.Errorf("match %s: failed to marshal payload for %s: %v", m.Code, p.Name, err)
			return
		}
		if !q.enqueue(p.Conn, data) {
			gs.Logger.Warnf("match %s: outbound queue full, dropping payload for %s", m.Code, p.Name)
		}
	}

	evict := m.OnEmpty
	m.OnEmpty = func(code string) {
		if !closed {
			closed = true
			q.close()
		}
		if evict != nil {
			evict(code)
		}
	}
	m.OnResults = gs.persistResults
}

// persistResults credits every finisher's profile. Runs off the match
// lock; without a database connection results are simply dropped.
func (gs *GameServer) persistResults(code string, results []game.Result) {
	if database.DB == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, res := range results {
			if err := database.ApplyMatchResult(ctx, res.UserID, res.Coins, res.Won, res.PlaytimeMins); err != nil {
				gs.Logger.Errorf("match %s: failed to persist result for %s: %v", code, res.Name, err)
			}
		}
	}()
}
