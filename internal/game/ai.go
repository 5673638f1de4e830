// internal/game/ai.go
package game

import (
	"log"

	"virucide/internal/models"
)

// aiPlay produces one action for an AI-controlled seat. Attempts are
// generated in priority order and validated through the same rule pipeline
// as human actions; the first legal one is applied. When nothing plays,
// the hand is discarded and redrawn, which is always legal. Assumes lock
// is held.
func (g *Game) aiPlay(p *Player) {
	for _, req := range g.aiAttempts(p) {
		card := p.Hand[req.Slot]
		if err := g.applyCard(p, card, req); err != nil {
			if IsValidation(err) {
				continue
			}
			log.Printf("match %s: ai move for %s failed: %v", g.MatchCode, p.Name, err)
			break
		}
		p.Hand = append(p.Hand[:req.Slot], p.Hand[req.Slot+1:]...)
		g.logAction(p.ID, "ai_play_card", map[string]interface{}{
			"card": card, "target": req.Target, "pile": req.Pile,
		})
		g.checkFinishers()
		if g.Finished {
			return
		}
		g.refillHand(p)
		g.broadcastBoard()
		return
	}

	g.discard(p.Hand...)
	p.Hand = nil
	g.refillHand(p)
	g.logAction(p.ID, "ai_play_pass", nil)
	g.broadcastBoard()
}

// aiAttempts enumerates candidate moves best first: win the hand outright
// with the latex glove, then survive (place organs, cure infections, swap
// away bad organs, steal good ones), then attack with infections and
// viruses. Every attempt is re-validated on application, so generation can
// be optimistic.
func (g *Game) aiAttempts(p *Player) []PlayCardRequest {
	var attempts []PlayCardRequest

	for slot, card := range p.Hand {
		if card.Treatment == models.TreatmentLatexGlove {
			attempts = append(attempts, PlayCardRequest{Slot: slot, Pile: -1, Pile2: -1})
		}
	}
	for slot, card := range p.Hand {
		if card.IsOrgan() {
			attempts = append(attempts, PlayCardRequest{Slot: slot, Pile: -1, Pile2: -1})
		}
	}

	// cure own infections, then protect free organs
	for slot, card := range p.Hand {
		if !card.IsMedicine() {
			continue
		}
		for i, pile := range p.Body.Piles {
			if pile.IsInfected() && card.Color.Matches(pile.Organ.Color) {
				attempts = append(attempts, PlayCardRequest{Slot: slot, Pile: i, Pile2: -1})
			}
		}
	}

	// trade an infected organ for a healthy enemy one
	for slot, card := range p.Hand {
		if card.Treatment != models.TreatmentTransplant {
			continue
		}
		for i, own := range p.Body.Piles {
			if !own.IsInfected() {
				continue
			}
			for _, t := range g.Players {
				if t.ID == p.ID {
					continue
				}
				for j, enemy := range t.Body.Piles {
					if enemy.IsFree() {
						attempts = append(attempts, PlayCardRequest{
							Slot: slot, Target: p.Name, Pile: i, Target2: t.Name, Pile2: j,
						})
					}
				}
			}
		}
	}

	// steal an organ color we are missing
	for slot, card := range p.Hand {
		if card.Treatment != models.TreatmentOrganThief {
			continue
		}
		for _, t := range g.Players {
			if t.ID == p.ID {
				continue
			}
			for j, enemy := range t.Body.Piles {
				if !enemy.IsEmpty() && !enemy.IsImmune() && !enemy.IsInfected() {
					attempts = append(attempts, PlayCardRequest{
						Slot: slot, Target: t.Name, Pile: j, Pile2: -1,
					})
				}
			}
		}
	}

	for slot, card := range p.Hand {
		if card.Treatment == models.TreatmentInfection {
			attempts = append(attempts, PlayCardRequest{Slot: slot, Pile: -1, Pile2: -1})
		}
	}

	// shield a free organ with a spare medicine
	for slot, card := range p.Hand {
		if !card.IsMedicine() {
			continue
		}
		for i, pile := range p.Body.Piles {
			if pile.IsFree() && card.Color.Matches(pile.Organ.Color) {
				attempts = append(attempts, PlayCardRequest{Slot: slot, Pile: i, Pile2: -1})
			}
		}
	}

	// swap for a healthier body
	for slot, card := range p.Hand {
		if card.Treatment != models.TreatmentMedicalError {
			continue
		}
		own := healthyCount(p.Body)
		for _, t := range g.Players {
			if t.ID == p.ID || t.Status == StatusRemoved || t.Position > 0 {
				continue
			}
			if healthyCount(t.Body) > own {
				attempts = append(attempts, PlayCardRequest{
					Slot: slot, Target: t.Name, Pile: -1, Pile2: -1,
				})
			}
		}
	}

	for slot, card := range p.Hand {
		if !card.IsVirus() {
			continue
		}
		for _, t := range g.Players {
			if t.ID == p.ID {
				continue
			}
			for j, enemy := range t.Body.Piles {
				if !enemy.IsEmpty() && !enemy.IsImmune() && card.Color.Matches(enemy.Organ.Color) {
					attempts = append(attempts, PlayCardRequest{
						Slot: slot, Target: t.Name, Pile: j, Pile2: -1,
					})
				}
			}
		}
	}

	return attempts
}

func healthyCount(b *Body) int {
	n := 0
	for _, pile := range b.Piles {
		if pile.IsHealthy() {
			n++
		}
	}
	return n
}
