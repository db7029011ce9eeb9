// Package models defines the domain types for cardsync.
package models

import "time"

// Document is a Markdown source handed to the compiler.
type Document struct {
	ID      string `json:"id"`
	Content []byte `json:"-"`
}

// DocumentMetadata is a lightweight representation returned by vault listings.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Card is one compiled flashcard.
//
// Key is the raw front text (header chain joined by newlines, reverse marker
// stripped) and identifies the card across re-compiles of the same document.
// Front and Back hold rendered markup, already swapped when Reverse is set.
// Position is the card's index in its document once duplicate keys are merged.
type Card struct {
	ID       string `json:"id,omitempty"`
	Key      string `json:"key"`
	Front    string `json:"front"`
	Back     string `json:"back"`
	Reverse  bool   `json:"reverse,omitempty"`
	Position int    `json:"position"`
}

// SameContent reports whether c and other would render identically in a deck.
func (c Card) SameContent(other Card) bool {
	return c.Front == other.Front && c.Back == other.Back
}
