// internal/game/deck.go
package game

import (
	"math/rand"
	"time"

	"virucide/internal/models"
)

// DeckSize is the fixed number of cards in play for a match. The sum of all
// hands, board piles, the draw pile and the discard pile equals this at all
// times.
const DeckSize = 68

// HandSize is the number of cards a player holds at the start of each turn.
const HandSize = 3

var bodyColors = []models.Color{
	models.ColorRed,
	models.ColorGreen,
	models.ColorBlue,
	models.ColorYellow,
}

// newDeck builds the full card set: per color 5 organs, 4 viruses and 4
// medicines; one multicolor organ, one multicolor virus and 4 multicolor
// medicines; 3 transplants, 3 organ thieves, 2 infections, 1 latex glove
// and 1 medical error.
func newDeck() []models.Card {
	deck := make([]models.Card, 0, DeckSize)

	for _, color := range bodyColors {
		for i := 0; i < 5; i++ {
			deck = append(deck, models.Card{Kind: models.KindOrgan, Color: color})
		}
		for i := 0; i < 4; i++ {
			deck = append(deck, models.Card{Kind: models.KindVirus, Color: color})
		}
		for i := 0; i < 4; i++ {
			deck = append(deck, models.Card{Kind: models.KindMedicine, Color: color})
		}
	}

	deck = append(deck, models.Card{Kind: models.KindOrgan, Color: models.ColorAny})
	deck = append(deck, models.Card{Kind: models.KindVirus, Color: models.ColorAny})
	for i := 0; i < 4; i++ {
		deck = append(deck, models.Card{Kind: models.KindMedicine, Color: models.ColorAny})
	}

	treatments := []struct {
		kind  models.TreatmentKind
		count int
	}{
		{models.TreatmentTransplant, 3},
		{models.TreatmentOrganThief, 3},
		{models.TreatmentInfection, 2},
		{models.TreatmentLatexGlove, 1},
		{models.TreatmentMedicalError, 1},
	}
	for _, t := range treatments {
		for i := 0; i < t.count; i++ {
			deck = append(deck, models.Card{Kind: models.KindTreatment, Treatment: t.kind})
		}
	}

	return deck
}

// newShuffledDeck returns a freshly shuffled full deck.
func newShuffledDeck() []models.Card {
	deck := newDeck()
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}
