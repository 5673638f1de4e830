// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"virucide/internal/auth"
	"virucide/internal/database"
	"virucide/internal/game"
	"virucide/internal/match"
	"virucide/internal/models"
)

// ClientMessage is the shape of every inbound websocket message. The type
// names the action; the remaining fields are the action's references.
// Indices are pointers so that an omitted slot/pile is distinguishable
// from zero.
type ClientMessage struct {
	Type string `json:"type"`

	Code string `json:"code,omitempty"`
	Msg  string `json:"msg,omitempty"`

	Slot    *int   `json:"slot,omitempty"`
	Target  string `json:"target,omitempty"`
	Pile    *int   `json:"pile,omitempty"`
	Target2 string `json:"target2,omitempty"`
	Pile2   *int   `json:"pile2,omitempty"`
}

// client is one live connection's session state: who it is and which match
// or queue it is currently tied to. A player holds at most one of the two.
type client struct {
	userID uuid.UUID
	user   *models.User
	conn   *websocket.Conn

	mu        sync.Mutex
	matchCode string
	searching bool
}

func (cl *client) currentMatch() string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.matchCode
}

func (cl *client) setMatch(code string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.matchCode = code
}

func (cl *client) isSearching() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.searching
}

func (cl *client) setSearching(v bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.searching = v
}

// WSHandler upgrades the connection, establishes identity once from the
// supplied token, and runs the read loop. On exit the connection's queue
// ticket is withdrawn and its match is told about the implicit disconnect.
func WSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		ctx := r.Context()

		userID, err := auth.Verify(ctx, bearerToken(r))
		if err != nil {
			logger.Warnf("WebSocket auth failed from %s: %v", r.RemoteAddr, err)
			sendWsError(ctx, c, err.Error())
			c.Close(websocket.StatusPolicyViolation, "Authentication failed.")
			return
		}

		cl := &client{
			userID: userID,
			user:   loadProfile(ctx, logger, userID),
			conn:   c,
		}
		logger.Infof("WebSocket session established for %s (%s) from %s", cl.user.Username, userID, r.RemoteAddr)

		readMessages(ctx, logger, gs, cl)

		gs.Matchmaker.StopSearching(userID)
		if code := cl.currentMatch(); code != "" {
			if m, ok := gs.Registry.Get(code); ok {
				m.Disconnect(userID)
			}
		}
		logger.Infof("WebSocket session closed for %s", cl.user.Username)
	}
}

// bearerToken pulls the identity token from the Authorization header or
// the token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// loadProfile fetches the user's stored profile, falling back to an
// ephemeral one when no database is wired or the row is missing.
func loadProfile(ctx context.Context, logger *logrus.Logger, userID uuid.UUID) *models.User {
	if database.DB != nil {
		u, err := database.GetUserByID(ctx, userID)
		if err == nil {
			return u
		}
		logger.Warnf("failed to load profile for %s, using ephemeral: %v", userID, err)
	}
	short := strings.Split(userID.String(), "-")[0]
	return &models.User{ID: userID, Username: "player-" + short}
}

// readMessages is the per-connection dispatch loop. Validation failures go
// back to the client verbatim; anything else is logged and reported as a
// generic internal error. The connection survives both.
func readMessages(ctx context.Context, logger *logrus.Logger, gs *GameServer, cl *client) {
	for {
		msgType, data, err := cl.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for %s.", cl.user.Username)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for %s.", cl.user.Username)
			} else {
				logger.Warnf("Error reading from WebSocket for %s: %v (Status: %d)", cl.user.Username, err, status)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from %s: %v. Data: %s", cl.user.Username, err, string(data))
			sendWsError(ctx, cl.conn, "invalid JSON payload")
			continue
		}

		logger.Debugf("Received '%s' from %s", msg.Type, cl.user.Username)

		if err := handleMessage(ctx, gs, cl, msg); err != nil {
			if game.IsValidation(err) {
				sendWsError(ctx, cl.conn, err.Error())
			} else {
				logger.Errorf("internal error handling '%s' from %s: %v", msg.Type, cl.user.Username, err)
				sendWsError(ctx, cl.conn, "internal server error")
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleMessage routes one message by its action name.
func handleMessage(ctx context.Context, gs *GameServer, cl *client, msg ClientMessage) error {
	switch msg.Type {
	case "create_game":
		if err := requireUnattached(gs, cl, ""); err != nil {
			return err
		}
		m := gs.Registry.Create(match.VisibilityPrivate, cl.userID, 0)
		if err := m.Join(cl.user, cl.conn); err != nil {
			gs.Registry.Remove(m.Code)
			return err
		}
		cl.setMatch(m.Code)
		sendWsMessage(ctx, cl.conn, map[string]interface{}{"type": "create_game", "code": m.Code})
		return nil

	case "join":
		code := strings.ToUpper(strings.TrimSpace(msg.Code))
		if err := requireUnattached(gs, cl, code); err != nil {
			return err
		}
		m, ok := gs.Registry.Get(code)
		if !ok {
			return game.Invalidf("no match with code %s", code)
		}
		if err := m.Join(cl.user, cl.conn); err != nil {
			return err
		}
		cl.setMatch(code)
		return nil

	case "leave":
		code := cl.currentMatch()
		if code == "" {
			// a seat held by one of the user's other connections can be
			// released from here; a stray leave is a no-op
			if m, ok := gs.attachedMatch(cl.userID); ok {
				return m.Leave(cl.userID)
			}
			return nil
		}
		if m, ok := gs.Registry.Get(code); ok {
			if err := m.Leave(cl.userID); err != nil {
				return err
			}
		}
		cl.setMatch("")
		return nil

	case "search_game":
		if err := requireUnattached(gs, cl, ""); err != nil {
			return err
		}
		ticket := &match.Ticket{
			UserID: cl.userID,
			Name:   cl.user.Username,
			Notify: func(code string) {
				cl.setSearching(false)
				go sendWsMessage(context.Background(), cl.conn, map[string]interface{}{
					"type": "found_game", "code": code,
				})
			},
		}
		if err := gs.Matchmaker.Search(ticket); err != nil {
			return err
		}
		cl.setSearching(true)
		return nil

	case "stop_searching":
		gs.Matchmaker.StopSearching(cl.userID)
		cl.setSearching(false)
		sendWsMessage(ctx, cl.conn, map[string]interface{}{"type": "stop_searching"})
		return nil

	case "start_game":
		m, err := matchFor(gs, cl)
		if err != nil {
			return err
		}
		return m.Start(cl.userID)

	case "chat":
		m, err := matchFor(gs, cl)
		if err != nil {
			return err
		}
		return m.Chat(cl.userID, msg.Msg)

	case "play_card":
		m, err := matchFor(gs, cl)
		if err != nil {
			return err
		}
		return m.PlayCard(cl.userID, game.PlayCardRequest{
			Slot:    intOr(msg.Slot, -1),
			Target:  msg.Target,
			Pile:    intOr(msg.Pile, -1),
			Target2: msg.Target2,
			Pile2:   intOr(msg.Pile2, -1),
		})

	case "play_discard":
		m, err := matchFor(gs, cl)
		if err != nil {
			return err
		}
		return m.PlayDiscard(cl.userID, intOr(msg.Slot, -1))

	case "play_pass":
		m, err := matchFor(gs, cl)
		if err != nil {
			return err
		}
		return m.PlayPass(cl.userID)

	case "play_draw":
		m, err := matchFor(gs, cl)
		if err != nil {
			return err
		}
		return m.PlayDraw(cl.userID)

	case "ping":
		sendWsMessage(ctx, cl.conn, map[string]string{"type": "pong"})
		return nil

	default:
		return game.Invalidf("unknown message type: %s", msg.Type)
	}
}

// requireUnattached enforces the one-match-at-a-time rule across every
// connection the user holds: they must leave their match (even a
// cancelled one) and stop searching before starting or joining another.
// allowCode permits rejoining the named match from a fresh connection.
func requireUnattached(gs *GameServer, cl *client, allowCode string) error {
	if cl.currentMatch() != "" {
		return game.Invalidf("leave your current match first")
	}
	if cl.isSearching() {
		return game.Invalidf("stop searching first")
	}
	if m, ok := gs.attachedMatch(cl.userID); ok && m.Code != allowCode {
		return game.Invalidf("you already hold a seat in match %s", m.Code)
	}
	return nil
}

// attachedMatch finds the match where the user holds a live seat,
// regardless of which connection put them there.
func (gs *GameServer) attachedMatch(userID uuid.UUID) (*match.Match, bool) {
	for _, m := range gs.Registry.Matches() {
		if m.HasSeat(userID) {
			return m, true
		}
	}
	return nil, false
}

func matchFor(gs *GameServer, cl *client) (*match.Match, error) {
	code := cl.currentMatch()
	if code == "" {
		return nil, game.Invalidf("you are not in a match")
	}
	m, ok := gs.Registry.Get(code)
	if !ok {
		return nil, game.Invalidf("your match no longer exists")
	}
	return m, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Write(writeCtx, websocket.MessageText, msgBytes)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		} else if strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Timeout writing WebSocket message: %v", err)
		}
	}
}

// sendWsError reports a failed action on the same channel: a payload with
// a single error string.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{"error": errorMsg})
}

// PingHandler is a trivial liveness endpoint.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}
