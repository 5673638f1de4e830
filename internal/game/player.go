// internal/game/player.go
package game

import (
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"virucide/internal/models"
)

// SlotStatus tracks how a seat is currently occupied. A seat never changes
// identity; only its status and connection do.
type SlotStatus string

const (
	// StatusConnected: a live client drives this seat.
	StatusConnected SlotStatus = "connected"
	// StatusDisconnected: transport dropped in a private match; the seat is
	// held and the player may rejoin with the same code.
	StatusDisconnected SlotStatus = "disconnected"
	// StatusAI: transport dropped in a public match; the engine plays this
	// seat for the rest of the match. It never reverts to connected.
	StatusAI SlotStatus = "ai_controlled"
	// StatusRemoved: the player explicitly left. The seat is out of the
	// turn rotation for good.
	StatusRemoved SlotStatus = "removed"
)

// Player is one seat in a match: stable identity, connection status, hand,
// board and finishing position.
type Player struct {
	ID   uuid.UUID
	Name string

	Status SlotStatus
	Conn   *websocket.Conn

	Hand []models.Card
	Body *Body

	// Position is the finishing position, 1-based; 0 while still playing.
	Position int

	JoinedAt time.Time
}

// NewPlayer builds a connected seat for the given user.
func NewPlayer(id uuid.UUID, name string, conn *websocket.Conn) *Player {
	return &Player{
		ID:       id,
		Name:     name,
		Status:   StatusConnected,
		Conn:     conn,
		Body:     newBody(),
		JoinedAt: time.Now(),
	}
}

// inRotation reports whether the turn pointer may land on this seat: a
// connected or AI-controlled player who has not finished yet.
func (p *Player) inRotation() bool {
	return (p.Status == StatusConnected || p.Status == StatusAI) && p.Position == 0
}

// handCount is how many cards the player holds.
func (p *Player) handCount() int {
	return len(p.Hand)
}

// takeCard removes and returns the hand card at slot, or a ValidationError.
func (p *Player) takeCard(slot int) (models.Card, error) {
	if slot < 0 || slot >= len(p.Hand) {
		return models.Card{}, Invalidf("you do not have a card in slot %d", slot)
	}
	card := p.Hand[slot]
	p.Hand = append(p.Hand[:slot], p.Hand[slot+1:]...)
	return card, nil
}
