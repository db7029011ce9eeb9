package markdown

import "strings"

// RawCard is a card before rendering. Front is the header chain text and is
// also the card's identity key.
type RawCard struct {
	Front   string
	Back    string
	Reverse bool
}

// Scan splits a Markdown body into raw cards in document order. It is a single
// pass with no rendering and is fully deterministic.
func Scan(text string) []RawCard {
	cards, _ := scanDocument(text)
	return cards
}

// scanDocument returns the raw cards and the text of the first depth-1 header.
func scanDocument(text string) ([]RawCard, string) {
	var (
		chain headerChain
		back  []string
		cards []RawCard
		title string
	)

	closeCard := func() {
		if rc, ok := cardFrom(&chain, back); ok {
			cards = append(cards, rc)
		}
		back = nil
	}

	for _, raw := range splitLines(text) {
		l := classify(raw)
		if !l.boundary() {
			back = append(back, l.text)
			continue
		}
		closeCard()
		if title == "" && l.kind == lineHeader && l.depth == 1 {
			title = l.text
		}
		chain.enter(frame{depth: l.depth, text: l.text, reverse: l.kind == lineReverse})
	}
	closeCard()

	return cards, title
}

// cardFrom closes the pending (chain, back) pair. Sections without a body, and
// reverse markers with nothing above them, produce no card.
func cardFrom(chain *headerChain, back []string) (RawCard, bool) {
	if chain.empty() || len(back) == 0 {
		return RawCard{}, false
	}
	front, reverse := chain.front()
	body := strings.TrimSpace(strings.Join(back, "\n"))
	if front == "" || body == "" {
		return RawCard{}, false
	}
	return RawCard{Front: front, Back: body, Reverse: reverse}, true
}
