// Package diff classifies compiled cards against previously sent cards and
// aggregates the results of batch sends.
package diff

import "github.com/starford/cardsync/internal/models"

// Compute compares the freshly compiled cards of one document with the cards
// the store already holds for it. Cards are matched by Key.
//
// Several next cards sharing a key form one slot that keeps the position of
// the first occurrence and the content of the last. Every returned next card
// carries its Position in the merged sequence. Extra previous cards
// sharing a key are reported as removed so the store converges to one card
// per key. Compute never mutates its inputs.
func Compute(documentID, deck string, next, previous []models.Card) models.SendDiff {
	d := models.SendDiff{DocumentID: documentID, Deck: deck}

	prev := make(map[string]models.Card, len(previous))
	dups := make(map[int]struct{})
	for i, p := range previous {
		if _, dup := prev[p.Key]; dup {
			dups[i] = struct{}{}
			continue
		}
		prev[p.Key] = p
	}

	for i, card := range collapse(next) {
		card.Position = i
		p, ok := prev[card.Key]
		if !ok {
			d.Added = append(d.Added, card)
			continue
		}
		delete(prev, card.Key)
		card.ID = p.ID
		if card.SameContent(p) {
			d.Unchanged = append(d.Unchanged, card)
		} else {
			d.Updated = append(d.Updated, card)
		}
	}

	// Walk previous again so removals keep store order.
	for i, p := range previous {
		if _, dup := dups[i]; dup {
			d.Removed = append(d.Removed, p)
			continue
		}
		if _, ok := prev[p.Key]; ok {
			d.Removed = append(d.Removed, p)
			delete(prev, p.Key)
		}
	}

	return d
}

// collapse merges cards with equal keys; later occurrences win.
func collapse(cards []models.Card) []models.Card {
	index := make(map[string]int, len(cards))
	out := make([]models.Card, 0, len(cards))
	for _, c := range cards {
		if i, ok := index[c.Key]; ok {
			out[i] = c
			continue
		}
		index[c.Key] = len(out)
		out = append(out, c)
	}
	return out
}
