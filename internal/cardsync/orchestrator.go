// Package cardsync drives sends: it compiles documents, diffs them against the
// cards the store already holds and applies the result.
package cardsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/checksum"
	"github.com/starford/cardsync/internal/deck"
	"github.com/starford/cardsync/internal/diff"
	"github.com/starford/cardsync/internal/markdown"
	"github.com/starford/cardsync/internal/models"
)

// Deck modes.
const (
	// ModeDefault sends every document to DeckConfig.Default.
	ModeDefault = "default"
	// ModeStandalone sends every document to a deck named after its title.
	ModeStandalone = "standalone"
)

// DeckConfig picks the target deck for documents without a frontmatter deck.
type DeckConfig struct {
	Mode    string
	Default string
}

// BatchResult is the outcome of sending several documents.
type BatchResult struct {
	Diffs     []models.SendDiff        `json:"diffs"`
	Failures  []models.DocumentFailure `json:"-"`
	Skipped   int                      `json:"skipped"`
	Aggregate models.AggregateDiff     `json:"aggregate"`
}

func (r *BatchResult) finish() {
	r.Aggregate = diff.Combine(r.Diffs...)
	r.Aggregate.Failed = len(r.Failures)
}

func (r *BatchResult) fail(documentID string, err error) {
	r.Failures = append(r.Failures, models.DocumentFailure{DocumentID: documentID, Err: err})
}

// Orchestrator sends documents to a card store.
type Orchestrator struct {
	compiler *markdown.Compiler
	store    deck.Store
	deck     DeckConfig
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(compiler *markdown.Compiler, store deck.Store, deckCfg DeckConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		compiler: compiler,
		store:    store,
		deck:     deckCfg,
		logger:   logger,
	}
}

// Store returns the underlying card store.
func (o *Orchestrator) Store() deck.Store {
	return o.store
}

// Compile compiles doc and resolves its deck without touching the store.
func (o *Orchestrator) Compile(ctx context.Context, doc models.Document) (*markdown.Result, error) {
	res, err := o.compiler.Compile(ctx, doc.Content)
	if err != nil {
		return nil, err
	}
	name, err := o.resolveDeck(res)
	if err != nil {
		return nil, err
	}
	res.Deck = name
	return res, nil
}

// SendDocument compiles doc and brings its cards in the store up to date.
// Nothing is written when no card changed and the store already holds this
// exact version of the document.
func (o *Orchestrator) SendDocument(ctx context.Context, doc models.Document) (models.SendDiff, error) {
	known, err := o.store.Documents(ctx)
	if err != nil {
		return models.SendDiff{}, err
	}
	return o.send(ctx, doc, known)
}

// send does the work of SendDocument. A nil known map forces the write.
func (o *Orchestrator) send(ctx context.Context, doc models.Document, known map[string]string) (models.SendDiff, error) {
	res, err := o.Compile(ctx, doc)
	if err != nil {
		return models.SendDiff{}, err
	}

	previous, err := o.store.ExistingCards(ctx, doc.ID)
	if err != nil {
		return models.SendDiff{}, err
	}

	d := diff.Compute(doc.ID, res.Deck, res.Cards, previous)
	d.Checksum = checksum.Sum(doc.Content)

	if sent, ok := known[doc.ID]; ok && sent == d.Checksum && !d.Summary().Changed() {
		o.logger.Debug("send: up to date", slog.String("document", doc.ID))
		return d, nil
	}

	if err := o.store.ApplyDiff(ctx, d); err != nil {
		return models.SendDiff{}, err
	}
	o.logger.Debug("send: applied",
		slog.String("document", doc.ID),
		slog.String("deck", d.Deck),
		slog.String("summary", d.Summary().String()))
	return d, nil
}

// SendBatch sends docs one at a time in order. A failing document is recorded
// and the rest are still sent. When ctx is cancelled the remaining documents
// are recorded as failed with the context error.
func (o *Orchestrator) SendBatch(ctx context.Context, docs []models.Document) BatchResult {
	known, err := o.store.Documents(ctx)
	if err != nil {
		var r BatchResult
		for _, doc := range docs {
			r.fail(doc.ID, err)
		}
		r.finish()
		return r
	}
	return o.sendBatch(ctx, docs, known)
}

// ResendBatch is SendBatch that writes every document, even those the store
// already holds at the same checksum.
func (o *Orchestrator) ResendBatch(ctx context.Context, docs []models.Document) BatchResult {
	return o.sendBatch(ctx, docs, nil)
}

func (o *Orchestrator) sendBatch(ctx context.Context, docs []models.Document, known map[string]string) BatchResult {
	var r BatchResult

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			for _, rest := range docs[i:] {
				r.fail(rest.ID, err)
			}
			break
		}
		d, err := o.send(ctx, doc, known)
		if err != nil {
			o.logger.Warn("send: failed", slog.String("document", doc.ID), slog.String("error", err.Error()))
			r.fail(doc.ID, err)
			continue
		}
		r.Diffs = append(r.Diffs, d)
	}

	r.finish()
	return r
}

// Forget removes every card sent for documentID and the document record.
// The returned diff lists the removed cards.
func (o *Orchestrator) Forget(ctx context.Context, documentID string) (models.SendDiff, error) {
	previous, err := o.store.ExistingCards(ctx, documentID)
	if err != nil {
		return models.SendDiff{}, err
	}
	d := diff.Compute(documentID, "", nil, previous)
	if err := o.store.ForgetDocument(ctx, documentID); err != nil {
		return models.SendDiff{}, err
	}
	o.logger.Debug("send: forgot document",
		slog.String("document", documentID),
		slog.Int("removed", len(d.Removed)))
	return d, nil
}

func (o *Orchestrator) resolveDeck(res *markdown.Result) (string, error) {
	if res.Deck != "" {
		return res.Deck, nil
	}
	if o.deck.Mode == ModeDefault && o.deck.Default != "" {
		return o.deck.Default, nil
	}
	if res.Title != "" {
		return res.Title, nil
	}
	return "", fmt.Errorf("resolve deck: %w", apperr.ErrNoTitle)
}
