// internal/game/update.go
package game

import "virucide/internal/models"

// Update is one game_update payload for one recipient. Every field is
// optional: an omitted field means "unchanged", never "cleared". The hand
// is only ever the recipient's own.
type Update struct {
	Finished     *bool                       `json:"finished,omitempty"`
	CurrentTurn  string                      `json:"current_turn,omitempty"`
	Players      []PlayerSummary             `json:"players,omitempty"`
	Bodies       map[string]*Body            `json:"bodies,omitempty"`
	Hand         []models.Card               `json:"hand,omitempty"`
	Leaderboard  map[string]LeaderboardEntry `json:"leaderboard,omitempty"`
	PlaytimeMins *int                        `json:"playtime_mins,omitempty"`
}

// PlayerSummary is the public view of a seat: everything but the hand
// contents.
type PlayerSummary struct {
	Name     string     `json:"name"`
	Status   SlotStatus `json:"status"`
	NumCards int        `json:"num_cards"`
	Position int        `json:"position,omitempty"`
}

// LeaderboardEntry is one finished player's ranking and reward.
type LeaderboardEntry struct {
	Position int `json:"position"`
	Coins    int `json:"coins"`
}

// projectFor computes a recipient's full view of the board fresh from
// canonical state. Assumes lock is held.
func (g *Game) projectFor(p *Player) *Update {
	upd := &Update{
		CurrentTurn: g.currentPlayerName(),
		Players:     g.playerSummaries(),
		Bodies:      g.bodyViews(),
		Hand:        append([]models.Card(nil), p.Hand...),
	}
	return upd
}

// Snapshot is the full-state view sent to a rejoining player: the board
// plus the leaderboard and finished flag so the client can resync from
// nothing. Assumes lock is held.
func (g *Game) Snapshot(p *Player) *Update {
	upd := g.projectFor(p)
	finished := g.Finished
	upd.Finished = &finished
	if lb := g.leaderboard(); len(lb) > 0 {
		upd.Leaderboard = lb
	}
	return upd
}

// playerSummaries builds the public roster view. Assumes lock is held.
func (g *Game) playerSummaries() []PlayerSummary {
	out := make([]PlayerSummary, 0, len(g.Players))
	for _, p := range g.Players {
		out = append(out, PlayerSummary{
			Name:     p.Name,
			Status:   p.Status,
			NumCards: p.handCount(),
			Position: p.Position,
		})
	}
	return out
}

// bodyViews maps player name to board state. Boards are public, removed
// seats included while their organs remain on the table. Assumes lock is
// held.
func (g *Game) bodyViews() map[string]*Body {
	out := make(map[string]*Body, len(g.Players))
	for _, p := range g.Players {
		out[p.Name] = p.Body
	}
	return out
}

// leaderboard builds the full ranking of players who have a position.
// Assumes lock is held.
func (g *Game) leaderboard() map[string]LeaderboardEntry {
	out := make(map[string]LeaderboardEntry)
	for _, p := range g.Players {
		if p.Position > 0 {
			out[p.Name] = LeaderboardEntry{
				Position: p.Position,
				Coins:    g.coinsForPosition(p.Position),
			}
		}
	}
	return out
}

// coinsForPosition is the reward for finishing at a given position among
// len(Players) seats.
func (g *Game) coinsForPosition(position int) int {
	return 10 * (len(g.Players) - position)
}
