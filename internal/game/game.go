// internal/game/game.go
package game

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"virucide/internal/cache"
	"virucide/internal/models"
)

// DefaultTurnDuration is how long a connected player has to act before a
// pass is played for them.
const DefaultTurnDuration = 30 * time.Second

// Result is one player's final outcome, handed to OnFinished for
// persistence. Removed seats have no result.
type Result struct {
	UserID       uuid.UUID
	Name         string
	Position     int
	Coins        int
	Won          bool
	PlaytimeMins int
}

// PlayCardRequest carries the references of a play_card message. Pile
// indices are -1 when the client omitted them.
type PlayCardRequest struct {
	Slot    int
	Target  string
	Pile    int
	Target2 string
	Pile2   int
}

// Game holds the in-progress state for a single match: deck, boards, turn
// rotation and the AI fallback. All methods assume the match lock is held;
// the lock is shared with the owning match so that timer callbacks and
// roster changes serialize with actions.
type Game struct {
	MatchCode string

	Players     []*Player
	Deck        []models.Card
	DiscardPile []models.Card

	CurrentPlayerIndex int
	TurnID             int
	TurnDuration       time.Duration
	turnTimer          *time.Timer
	actionIndex        int

	Started  bool
	Finished bool

	nextPosition int
	StartTime    time.Time

	mu *sync.Mutex

	// SendUpdateFn delivers one recipient's partial view. Installed by the
	// transport layer; nil means no delivery (tests, cancelled matches).
	SendUpdateFn func(p *Player, upd *Update)

	// OnFinished is invoked once with the final results when the game ends
	// normally.
	OnFinished func(results []Result)
}

// NewGame builds a game over the given seats with a freshly shuffled deck.
// mu is the owning match's lock, shared so there is a single writer per
// match.
func NewGame(code string, players []*Player, mu *sync.Mutex) *Game {
	return &Game{
		MatchCode:          code,
		Players:            players,
		Deck:               newShuffledDeck(),
		CurrentPlayerIndex: -1,
		TurnDuration:       DefaultTurnDuration,
		nextPosition:       1,
		mu:                 mu,
	}
}

// Begin deals the opening hands and starts the turn cycle. Assumes lock is
// held.
func (g *Game) Begin() {
	if g.Started || g.Finished {
		return
	}
	g.Started = true
	g.StartTime = time.Now()

	for _, p := range g.Players {
		g.refillHand(p)
	}
	g.logAction(uuid.Nil, "game_start", map[string]interface{}{"players": len(g.Players)})

	g.broadcastBoard()
	g.advanceTurn()
}

// Cancel stops the game without computing a leaderboard. Assumes lock is
// held. Idempotent.
func (g *Game) Cancel() {
	if g.Finished {
		return
	}
	g.Finished = true
	g.stopTurnTimer()
	g.logAction(uuid.Nil, "game_cancelled", nil)
}

// PlayCard validates and applies one card from the caller's hand, then
// refills and advances the turn. Assumes lock is held.
func (g *Game) PlayCard(playerID uuid.UUID, req PlayCardRequest) error {
	p, err := g.turnCheck(playerID)
	if err != nil {
		return err
	}
	if req.Slot < 0 || req.Slot >= len(p.Hand) {
		return Invalidf("you do not have a card in slot %d", req.Slot)
	}
	card := p.Hand[req.Slot]

	if err := g.applyCard(p, card, req); err != nil {
		return err
	}
	p.Hand = append(p.Hand[:req.Slot], p.Hand[req.Slot+1:]...)

	g.logAction(playerID, "play_card", map[string]interface{}{
		"card": card, "target": req.Target, "pile": req.Pile,
	})

	g.checkFinishers()
	if g.Finished {
		return nil
	}
	g.refillHand(p)
	g.broadcastBoard()
	g.advanceTurn()
	return nil
}

// PlayDiscard moves one hand card to the discard pile without ending the
// turn. Assumes lock is held.
func (g *Game) PlayDiscard(playerID uuid.UUID, slot int) error {
	p, err := g.turnCheck(playerID)
	if err != nil {
		return err
	}
	card, err := p.takeCard(slot)
	if err != nil {
		return err
	}
	g.discard(card)
	g.logAction(playerID, "play_discard", map[string]interface{}{"card": card})
	g.broadcastBoard()
	return nil
}

// PlayPass refills the caller's hand and hands the turn on. Assumes lock
// is held.
func (g *Game) PlayPass(playerID uuid.UUID) error {
	p, err := g.turnCheck(playerID)
	if err != nil {
		return err
	}
	g.refillHand(p)
	g.logAction(playerID, "play_pass", nil)
	g.broadcastBoard()
	g.advanceTurn()
	return nil
}

// PlayDraw refills a short hand and hands the turn on. Drawing with a full
// hand is a validation error. Assumes lock is held.
func (g *Game) PlayDraw(playerID uuid.UUID) error {
	p, err := g.turnCheck(playerID)
	if err != nil {
		return err
	}
	if len(p.Hand) >= HandSize {
		return Invalidf("your hand is already full")
	}
	g.refillHand(p)
	g.logAction(playerID, "play_draw", nil)
	g.broadcastBoard()
	g.advanceTurn()
	return nil
}

// ResumeTurn re-examines the seat holding the turn pointer after a roster
// change (disconnect, AI takeover, removal, rejoin) and either lets the AI
// act, advances past a seat that can no longer act, or arms the clock if
// it is not already running. A roster change elsewhere never extends the
// current player's window. Assumes lock is held.
func (g *Game) ResumeTurn() {
	if !g.Started || g.Finished || g.CurrentPlayerIndex < 0 {
		return
	}
	cur := g.Players[g.CurrentPlayerIndex]
	switch {
	case cur.Status == StatusAI && cur.Position == 0:
		g.stopTurnTimer()
		g.aiPlay(cur)
		if !g.Finished {
			g.advanceTurn()
		}
	case !cur.inRotation():
		g.advanceTurn()
	case g.turnTimer == nil:
		g.scheduleTurnTimer()
	}
}

// DisposeHand empties a departing seat's hand, either shuffled back into
// the draw pile or onto the discard pile. Assumes lock is held.
func (g *Game) DisposeHand(p *Player, intoDeck bool) {
	if len(p.Hand) == 0 {
		return
	}
	if intoDeck {
		g.Deck = append(g.Deck, p.Hand...)
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		r.Shuffle(len(g.Deck), func(i, j int) {
			g.Deck[i], g.Deck[j] = g.Deck[j], g.Deck[i]
		})
	} else {
		g.DiscardPile = append(g.DiscardPile, p.Hand...)
	}
	p.Hand = nil
}

// turnCheck validates that the game is live, the caller holds a seat, and
// the turn pointer is on them. Assumes lock is held.
func (g *Game) turnCheck(playerID uuid.UUID) (*Player, error) {
	if !g.Started || g.Finished {
		return nil, Invalidf("the match is not in progress")
	}
	p := g.playerByID(playerID)
	if p == nil || p.Status == StatusRemoved {
		return nil, Invalidf("you are not playing in this match")
	}
	if g.CurrentPlayerIndex < 0 || g.Players[g.CurrentPlayerIndex].ID != playerID {
		return nil, Invalidf("it is not your turn")
	}
	return p, nil
}

// applyCard routes a card to its rule handler. Handlers validate fully
// before mutating so a rejected action leaves state untouched. Assumes
// lock is held.
func (g *Game) applyCard(p *Player, card models.Card, req PlayCardRequest) error {
	switch {
	case card.IsOrgan():
		return g.playOrgan(p, card, req)
	case card.IsVirus():
		return g.playVirus(p, card, req)
	case card.IsMedicine():
		return g.playMedicine(p, card, req)
	default:
		return g.playTreatment(p, card, req)
	}
}

func (g *Game) playOrgan(p *Player, card models.Card, req PlayCardRequest) error {
	if req.Target != "" && req.Target != p.Name {
		return Invalidf("organs can only be placed on your own body")
	}
	if p.Body.hasOrganColor(card.Color) {
		return Invalidf("you already have a %s organ", card.Color)
	}
	idx := req.Pile
	if idx < 0 {
		idx = p.Body.firstEmptyPile()
		if idx < 0 {
			return Invalidf("you have no empty organ pile")
		}
	}
	pile, err := p.Body.Pile(idx)
	if err != nil {
		return err
	}
	if err := pile.CanPlace(card); err != nil {
		return err
	}
	organ := card
	pile.Organ = &organ
	return nil
}

func (g *Game) playVirus(p *Player, card models.Card, req PlayCardRequest) error {
	target, err := g.targetByName(req.Target)
	if err != nil {
		return err
	}
	if target.ID == p.ID {
		return Invalidf("you cannot infect your own organs")
	}
	pile, err := target.Body.Pile(req.Pile)
	if err != nil {
		return err
	}
	if err := pile.CanPlace(card); err != nil {
		return err
	}
	switch {
	case pile.IsProtected():
		// the virus burns the medicine, both discarded
		g.discard(pile.popModifier(), card)
	case pile.IsInfected():
		// second virus extirpates the organ
		g.discard(pile.clear()...)
		g.discard(card)
	default:
		pile.Modifiers = append(pile.Modifiers, card)
	}
	return nil
}

func (g *Game) playMedicine(p *Player, card models.Card, req PlayCardRequest) error {
	if req.Target != "" && req.Target != p.Name {
		return Invalidf("medicines can only be applied to your own organs")
	}
	pile, err := p.Body.Pile(req.Pile)
	if err != nil {
		return err
	}
	if err := pile.CanPlace(card); err != nil {
		return err
	}
	if pile.IsInfected() {
		// the medicine cures the virus, both discarded
		g.discard(pile.popModifier(), card)
	} else {
		pile.Modifiers = append(pile.Modifiers, card)
	}
	return nil
}

func (g *Game) playTreatment(p *Player, card models.Card, req PlayCardRequest) error {
	var err error
	switch card.Treatment {
	case models.TreatmentTransplant:
		err = g.playTransplant(req)
	case models.TreatmentOrganThief:
		err = g.playOrganThief(p, req)
	case models.TreatmentInfection:
		err = g.playInfection(p)
	case models.TreatmentLatexGlove:
		err = g.playLatexGlove(p)
	case models.TreatmentMedicalError:
		err = g.playMedicalError(p, req)
	default:
		err = Invalidf("unknown treatment card")
	}
	if err != nil {
		return err
	}
	g.discard(card)
	return nil
}

// playTransplant swaps the organ piles of two players.
func (g *Game) playTransplant(req PlayCardRequest) error {
	a, err := g.targetByName(req.Target)
	if err != nil {
		return err
	}
	b, err := g.targetByName(req.Target2)
	if err != nil {
		return err
	}
	if a.ID == b.ID {
		return Invalidf("transplant needs two different players")
	}
	pa, err := a.Body.Pile(req.Pile)
	if err != nil {
		return err
	}
	pb, err := b.Body.Pile(req.Pile2)
	if err != nil {
		return err
	}
	if pa.IsEmpty() || pb.IsEmpty() {
		return Invalidf("transplant needs an organ on both piles")
	}
	if pa.IsImmune() || pb.IsImmune() {
		return Invalidf("immune organs cannot be transplanted")
	}
	if organWouldDuplicate(a.Body, pa, pb.Organ.Color) {
		return Invalidf("%s already has a %s organ", a.Name, pb.Organ.Color)
	}
	if organWouldDuplicate(b.Body, pb, pa.Organ.Color) {
		return Invalidf("%s already has a %s organ", b.Name, pa.Organ.Color)
	}
	*pa, *pb = *pb, *pa
	return nil
}

// playOrganThief moves a non-immune pile from the target's board to the
// caller's first empty pile.
func (g *Game) playOrganThief(p *Player, req PlayCardRequest) error {
	target, err := g.targetByName(req.Target)
	if err != nil {
		return err
	}
	if target.ID == p.ID {
		return Invalidf("you cannot steal your own organ")
	}
	src, err := target.Body.Pile(req.Pile)
	if err != nil {
		return err
	}
	if src.IsEmpty() {
		return Invalidf("there is no organ on that pile")
	}
	if src.IsImmune() {
		return Invalidf("immune organs cannot be stolen")
	}
	if organWouldDuplicate(p.Body, nil, src.Organ.Color) {
		return Invalidf("you already have a %s organ", src.Organ.Color)
	}
	dst := p.Body.firstEmptyPile()
	if dst < 0 {
		return Invalidf("you have no empty organ pile")
	}
	*p.Body.Piles[dst] = *src
	*src = OrganPile{}
	return nil
}

// playInfection spreads the caller's viruses onto other players' free
// compatible organs, as many as can land.
func (g *Game) playInfection(p *Player) error {
	moved := 0
	for _, src := range p.Body.Piles {
		if !src.IsInfected() {
			continue
		}
		if g.spreadVirus(p, src) {
			moved++
		}
	}
	if moved == 0 {
		return Invalidf("none of your viruses can spread")
	}
	return nil
}

// spreadVirus moves the top virus of src onto the first free compatible
// enemy organ. Reports whether a move happened.
func (g *Game) spreadVirus(p *Player, src *OrganPile) bool {
	virus := src.Modifiers[len(src.Modifiers)-1]
	for _, t := range g.Players {
		if t.ID == p.ID || t.Status == StatusRemoved || t.Position > 0 {
			continue
		}
		for _, dst := range t.Body.Piles {
			if dst.IsFree() && virus.Color.Matches(dst.Organ.Color) {
				dst.Modifiers = append(dst.Modifiers, src.popModifier())
				return true
			}
		}
	}
	return false
}

// playLatexGlove sends every other active player's hand to the discard
// pile.
func (g *Game) playLatexGlove(p *Player) error {
	for _, t := range g.Players {
		if t.ID == p.ID || t.Status == StatusRemoved || t.Position > 0 {
			continue
		}
		g.discard(t.Hand...)
		t.Hand = nil
	}
	return nil
}

// playMedicalError swaps the caller's entire body with the target's.
// Immunity does not protect against it.
func (g *Game) playMedicalError(p *Player, req PlayCardRequest) error {
	target, err := g.targetByName(req.Target)
	if err != nil {
		return err
	}
	if target.ID == p.ID {
		return Invalidf("you cannot swap bodies with yourself")
	}
	p.Body, target.Body = target.Body, p.Body
	return nil
}

// organWouldDuplicate reports whether body already holds an organ of the
// given color outside the excluded pile.
func organWouldDuplicate(b *Body, except *OrganPile, color models.Color) bool {
	for _, pile := range b.Piles {
		if pile == except {
			continue
		}
		if pile.Organ != nil && pile.Organ.Color == color {
			return true
		}
	}
	return false
}

// targetByName resolves a named opponent who is still in the running.
func (g *Game) targetByName(name string) (*Player, error) {
	if name == "" {
		return nil, Invalidf("you must choose a target player")
	}
	for _, t := range g.Players {
		if t.Name != name {
			continue
		}
		if t.Status == StatusRemoved || t.Position > 0 {
			return nil, Invalidf("%s is no longer playing", name)
		}
		return t, nil
	}
	return nil, Invalidf("no player named %s in this match", name)
}

func (g *Game) playerByID(id uuid.UUID) *Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// advanceTurn moves the pointer to the next seat in rotation, playing AI
// seats synchronously until it lands on a connected player or the game
// ends. If every seat is out of rotation the pointer idles until a roster
// change calls ResumeTurn. Assumes lock is held.
func (g *Game) advanceTurn() {
	for {
		if g.Finished {
			return
		}
		next := g.nextInRotation(g.CurrentPlayerIndex)
		if next < 0 {
			g.stopTurnTimer()
			return
		}
		g.CurrentPlayerIndex = next
		g.TurnID++
		cur := g.Players[next]
		g.broadcastAll(&Update{CurrentTurn: cur.Name})

		if cur.Status == StatusConnected {
			g.scheduleTurnTimer()
			return
		}
		g.aiPlay(cur)
	}
}

// nextInRotation finds the next in-rotation seat after from, wrapping, or
// -1 when no seat can take the turn.
func (g *Game) nextInRotation(from int) int {
	n := len(g.Players)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if idx < 0 {
			idx += n
		}
		if g.Players[idx].inRotation() {
			return idx
		}
	}
	return -1
}

// scheduleTurnTimer arms the per-turn clock for the current player. A
// stale fire (turn already moved on, game over) is a no-op. Assumes lock
// is held.
func (g *Game) scheduleTurnTimer() {
	if g.TurnDuration <= 0 {
		return
	}
	g.stopTurnTimer()
	turnID := g.TurnID
	g.turnTimer = time.AfterFunc(g.TurnDuration, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.Finished || g.TurnID != turnID || g.CurrentPlayerIndex < 0 {
			return
		}
		p := g.Players[g.CurrentPlayerIndex]
		log.Printf("match %s turn %d: player %s timed out, passing", g.MatchCode, turnID, p.Name)
		g.logAction(p.ID, "turn_timeout", nil)
		g.refillHand(p)
		g.broadcastBoard()
		g.advanceTurn()
	})
}

func (g *Game) stopTurnTimer() {
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
}

// checkFinishers assigns the next leaderboard position to any player whose
// body just became fully healthy, emits the partial leaderboard delta, and
// ends the game once at most one unfinished player remains. Assumes lock
// is held.
func (g *Game) checkFinishers() {
	for _, p := range g.Players {
		if p.Position != 0 || p.Status == StatusRemoved || !p.Body.IsHealthy() {
			continue
		}
		p.Position = g.nextPosition
		g.nextPosition++
		g.logAction(p.ID, "player_finished", map[string]interface{}{"position": p.Position})
		g.broadcastAll(&Update{Leaderboard: map[string]LeaderboardEntry{
			p.Name: {Position: p.Position, Coins: g.coinsForPosition(p.Position)},
		}})
	}
	if g.remainingPlayers() <= 1 {
		g.endGame()
	}
}

// remainingPlayers counts seats still competing.
func (g *Game) remainingPlayers() int {
	n := 0
	for _, p := range g.Players {
		if p.Status != StatusRemoved && p.Position == 0 {
			n++
		}
	}
	return n
}

// endGame assigns the trailing positions in turn order, broadcasts the
// final update and reports results. Assumes lock is held. Idempotent.
func (g *Game) endGame() {
	if g.Finished {
		return
	}
	g.Finished = true
	g.stopTurnTimer()

	n := len(g.Players)
	for i := 1; i <= n; i++ {
		idx := (g.CurrentPlayerIndex + i + n) % n
		p := g.Players[idx]
		if p.Status != StatusRemoved && p.Position == 0 {
			p.Position = g.nextPosition
			g.nextPosition++
		}
	}

	minutes := int(time.Since(g.StartTime).Minutes())
	finished := true
	board := g.leaderboard()
	for _, p := range g.Players {
		g.send(p, &Update{
			Finished:     &finished,
			Leaderboard:  board,
			PlaytimeMins: &minutes,
		})
	}
	g.logAction(uuid.Nil, "game_end", map[string]interface{}{"leaderboard": board})

	var results []Result
	for _, p := range g.Players {
		if p.Position == 0 {
			continue
		}
		results = append(results, Result{
			UserID:       p.ID,
			Name:         p.Name,
			Position:     p.Position,
			Coins:        g.coinsForPosition(p.Position),
			Won:          p.Position == 1,
			PlaytimeMins: minutes,
		})
	}
	if g.OnFinished != nil {
		g.OnFinished(results)
	}
}

// refillHand draws until the player holds HandSize cards or no card can be
// drawn. Assumes lock is held.
func (g *Game) refillHand(p *Player) {
	for len(p.Hand) < HandSize {
		card, ok := g.drawCard()
		if !ok {
			return
		}
		p.Hand = append(p.Hand, card)
	}
}

// drawCard takes the top of the draw pile, reshuffling the discard pile
// into it first when empty. Assumes lock is held.
func (g *Game) drawCard() (models.Card, bool) {
	if len(g.Deck) == 0 {
		if len(g.DiscardPile) == 0 {
			return models.Card{}, false
		}
		g.Deck = append(g.Deck, g.DiscardPile...)
		g.DiscardPile = nil
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		r.Shuffle(len(g.Deck), func(i, j int) {
			g.Deck[i], g.Deck[j] = g.Deck[j], g.Deck[i]
		})
	}
	card := g.Deck[0]
	g.Deck = g.Deck[1:]
	return card, true
}

func (g *Game) discard(cards ...models.Card) {
	g.DiscardPile = append(g.DiscardPile, cards...)
}

func (g *Game) currentPlayerName() string {
	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players) {
		return ""
	}
	return g.Players[g.CurrentPlayerIndex].Name
}

// totalCards sums every card in play: hands, boards, draw pile, discard
// pile. Always DeckSize.
func (g *Game) totalCards() int {
	n := len(g.Deck) + len(g.DiscardPile)
	for _, p := range g.Players {
		n += len(p.Hand) + p.Body.cardCount()
	}
	return n
}

func (g *Game) send(p *Player, upd *Update) {
	if g.SendUpdateFn == nil || p.Status != StatusConnected {
		return
	}
	g.SendUpdateFn(p, upd)
}

// broadcastAll sends the same partial update to every connected seat.
// Assumes lock is held.
func (g *Game) broadcastAll(upd *Update) {
	for _, p := range g.Players {
		g.send(p, upd)
	}
}

// broadcastBoard sends each connected seat a fresh projection of the
// board plus their own hand. Assumes lock is held.
func (g *Game) broadcastBoard() {
	for _, p := range g.Players {
		if p.Status != StatusConnected {
			continue
		}
		g.send(p, g.projectFor(p))
	}
}

// logAction pushes one action record onto the history queue for the
// out-of-process historian. Fire and forget.
func (g *Game) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	rec := cache.ActionRecord{
		MatchCode: g.MatchCode,
		Index:     g.actionIndex,
		ActorID:   actorID,
		Type:      actionType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	go func() {
		if err := cache.PublishAction(context.Background(), rec); err != nil {
			log.Printf("match %s: failed to publish action %s: %v", rec.MatchCode, rec.Type, err)
		}
	}()
}
