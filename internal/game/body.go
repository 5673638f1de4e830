// internal/game/body.go
package game

import "virucide/internal/models"

// BodyPiles is the number of organ piles on every player's board.
const BodyPiles = 4

// OrganPile is one board slot: an organ plus the virus/medicine modifiers
// stacked on it. Modifier order matters, most recent last.
type OrganPile struct {
	Organ     *models.Card  `json:"organ,omitempty"`
	Modifiers []models.Card `json:"modifiers,omitempty"`
}

func (p *OrganPile) IsEmpty() bool {
	return p.Organ == nil
}

// IsFree reports an organ with no modifiers on it.
func (p *OrganPile) IsFree() bool {
	return p.Organ != nil && len(p.Modifiers) == 0
}

// IsInfected reports whether the top modifier is a virus.
func (p *OrganPile) IsInfected() bool {
	n := len(p.Modifiers)
	return n > 0 && p.Modifiers[n-1].IsVirus()
}

// IsProtected reports an organ covered by exactly one medicine.
func (p *OrganPile) IsProtected() bool {
	return len(p.Modifiers) == 1 && p.Modifiers[0].IsMedicine()
}

// IsImmune reports an organ covered by two medicines. Nothing plays on an
// immune pile and it cannot be stolen or transplanted.
func (p *OrganPile) IsImmune() bool {
	return len(p.Modifiers) == 2 &&
		p.Modifiers[0].IsMedicine() && p.Modifiers[1].IsMedicine()
}

// IsHealthy reports a pile that counts toward the win condition: an organ
// that is not currently infected.
func (p *OrganPile) IsHealthy() bool {
	return p.Organ != nil && !p.IsInfected()
}

// CanPlace checks whether a simple card (organ, virus or medicine) may be
// stacked on this pile. It validates only; it never mutates.
func (p *OrganPile) CanPlace(card models.Card) error {
	if !card.IsSimple() {
		return Invalidf("treatment cards cannot be placed on an organ pile")
	}
	if card.IsOrgan() {
		if !p.IsEmpty() {
			return Invalidf("that pile already holds an organ")
		}
		return nil
	}
	if p.IsEmpty() {
		return Invalidf("there is no organ on that pile")
	}
	if p.IsImmune() {
		return Invalidf("that organ is immune")
	}
	if !card.Color.Matches(p.Organ.Color) {
		return Invalidf("the card color does not match that organ")
	}
	return nil
}

// popModifier removes and returns the top modifier. Caller must ensure one
// exists.
func (p *OrganPile) popModifier() models.Card {
	n := len(p.Modifiers)
	top := p.Modifiers[n-1]
	p.Modifiers = p.Modifiers[:n-1]
	return top
}

// clear empties the pile and returns every card it held, organ first.
func (p *OrganPile) clear() []models.Card {
	var cards []models.Card
	if p.Organ != nil {
		cards = append(cards, *p.Organ)
	}
	cards = append(cards, p.Modifiers...)
	p.Organ = nil
	p.Modifiers = nil
	return cards
}

// cardCount is the number of cards sitting on the pile.
func (p *OrganPile) cardCount() int {
	n := len(p.Modifiers)
	if p.Organ != nil {
		n++
	}
	return n
}

// Body is a player's board: a fixed set of organ piles.
type Body struct {
	Piles []*OrganPile `json:"piles"`
}

func newBody() *Body {
	b := &Body{Piles: make([]*OrganPile, BodyPiles)}
	for i := range b.Piles {
		b.Piles[i] = &OrganPile{}
	}
	return b
}

// Pile returns the pile at index i, or a ValidationError when out of range.
func (b *Body) Pile(i int) (*OrganPile, error) {
	if i < 0 || i >= len(b.Piles) {
		return nil, Invalidf("organ pile %d does not exist", i)
	}
	return b.Piles[i], nil
}

// firstEmptyPile returns the index of the first empty pile, or -1.
func (b *Body) firstEmptyPile() int {
	for i, p := range b.Piles {
		if p.IsEmpty() {
			return i
		}
	}
	return -1
}

// hasOrganColor reports whether an organ of the given color is already on
// the board. A body may never hold two organs of the same color; the
// multicolor organ is its own color for this purpose.
func (b *Body) hasOrganColor(color models.Color) bool {
	for _, p := range b.Piles {
		if p.Organ != nil && p.Organ.Color == color {
			return true
		}
	}
	return false
}

// IsHealthy reports the win condition: every pile holds a non-infected
// organ.
func (b *Body) IsHealthy() bool {
	for _, p := range b.Piles {
		if !p.IsHealthy() {
			return false
		}
	}
	return true
}

// cardCount is the total number of cards on the board.
func (b *Body) cardCount() int {
	n := 0
	for _, p := range b.Piles {
		n += p.cardCount()
	}
	return n
}
