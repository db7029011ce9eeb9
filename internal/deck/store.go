package deck

import (
	"context"

	"github.com/starford/cardsync/internal/models"
)

// Store is the remote side of a send: it remembers which cards each document
// produced last time and applies diffs to them.
// Consumers should depend on this interface rather than a concrete backend.
type Store interface {
	// ExistingCards returns the cards last sent for documentID, empty if the
	// document was never sent.
	ExistingCards(ctx context.Context, documentID string) ([]models.Card, error)
	// ApplyDiff writes added and updated cards, deletes removed ones and
	// records the document's deck and checksum.
	ApplyDiff(ctx context.Context, diff models.SendDiff) error
	// Documents returns the checksum last sent for every known document.
	Documents(ctx context.Context) (map[string]string, error)
	// ForgetDocument drops the document record together with any cards left.
	ForgetDocument(ctx context.Context, documentID string) error
	// Search finds cards whose front or back contains query.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Close() error
}

// SearchResult is one card search hit.
type SearchResult struct {
	CardID     string `json:"card_id"`
	DocumentID string `json:"document_id"`
	Deck       string `json:"deck"`
	Snippet    string `json:"snippet"`
}

// Verify backends satisfy Store at compile time.
var (
	_ Store = (*DB)(nil)
	_ Store = (*Couch)(nil)
)
