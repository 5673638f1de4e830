// internal/game/body_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virucide/internal/models"
)

func organ(color models.Color) *models.Card {
	return &models.Card{Kind: models.KindOrgan, Color: color}
}

func TestPileStatePredicates(t *testing.T) {
	p := &OrganPile{}
	assert.True(t, p.IsEmpty())
	assert.False(t, p.IsHealthy())

	p.Organ = organ(models.ColorRed)
	assert.True(t, p.IsFree())
	assert.True(t, p.IsHealthy())

	p.Modifiers = []models.Card{{Kind: models.KindVirus, Color: models.ColorRed}}
	assert.True(t, p.IsInfected())
	assert.False(t, p.IsHealthy())

	p.Modifiers = []models.Card{{Kind: models.KindMedicine, Color: models.ColorRed}}
	assert.True(t, p.IsProtected())
	assert.False(t, p.IsImmune())

	p.Modifiers = append(p.Modifiers, models.Card{Kind: models.KindMedicine, Color: models.ColorRed})
	assert.True(t, p.IsImmune())
	assert.True(t, p.IsHealthy())
}

func TestCanPlaceRules(t *testing.T) {
	empty := &OrganPile{}
	assert.NoError(t, empty.CanPlace(*organ(models.ColorRed)))
	assert.Error(t, empty.CanPlace(models.Card{Kind: models.KindVirus, Color: models.ColorRed}))

	occupied := &OrganPile{Organ: organ(models.ColorRed)}
	assert.Error(t, occupied.CanPlace(*organ(models.ColorGreen)), "organs only on empty piles")
	assert.NoError(t, occupied.CanPlace(models.Card{Kind: models.KindVirus, Color: models.ColorRed}))
	assert.Error(t, occupied.CanPlace(models.Card{Kind: models.KindVirus, Color: models.ColorGreen}), "color mismatch")
	assert.NoError(t, occupied.CanPlace(models.Card{Kind: models.KindVirus, Color: models.ColorAny}), "wildcard matches any organ")

	wild := &OrganPile{Organ: organ(models.ColorAny)}
	assert.NoError(t, wild.CanPlace(models.Card{Kind: models.KindMedicine, Color: models.ColorBlue}), "any organ accepts any color")

	immune := &OrganPile{
		Organ: organ(models.ColorRed),
		Modifiers: []models.Card{
			{Kind: models.KindMedicine, Color: models.ColorRed},
			{Kind: models.KindMedicine, Color: models.ColorRed},
		},
	}
	assert.Error(t, immune.CanPlace(models.Card{Kind: models.KindVirus, Color: models.ColorRed}))
	assert.Error(t, immune.CanPlace(models.Card{Kind: models.KindMedicine, Color: models.ColorRed}))

	assert.Error(t, occupied.CanPlace(models.Card{Kind: models.KindTreatment, Treatment: models.TreatmentInfection}))
}

func TestBodyHealthyNeedsAllPiles(t *testing.T) {
	b := newBody()
	require.Len(t, b.Piles, BodyPiles)
	assert.False(t, b.IsHealthy())

	colors := []models.Color{models.ColorRed, models.ColorGreen, models.ColorBlue, models.ColorYellow}
	for i, c := range colors {
		b.Piles[i].Organ = organ(c)
	}
	assert.True(t, b.IsHealthy())

	b.Piles[3].Modifiers = []models.Card{{Kind: models.KindVirus, Color: models.ColorYellow}}
	assert.False(t, b.IsHealthy(), "an infected organ breaks the win condition")
}

func TestBodyOrganUniqueness(t *testing.T) {
	b := newBody()
	b.Piles[0].Organ = organ(models.ColorRed)
	assert.True(t, b.hasOrganColor(models.ColorRed))
	assert.False(t, b.hasOrganColor(models.ColorAny), "the multicolor organ is its own color")
}

func TestPileOutOfRange(t *testing.T) {
	b := newBody()
	_, err := b.Pile(BodyPiles)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	_, err = b.Pile(-1)
	require.Error(t, err)
}
