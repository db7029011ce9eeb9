// Package markdown compiles nested-header Markdown documents into flashcards.
//
// Every header opens a new card whose front is the chain of headers above it
// and whose back is the content up to the next header. A header whose text is
// exactly "<>" marks the card it closes as reversed.
package markdown

import (
	"context"
	"errors"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

// Renderer turns Markdown text into markup.
type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}

// Result is a compiled document.
type Result struct {
	Title string
	Deck  string
	Cards []models.Card
}

// Compiler turns documents into rendered cards.
type Compiler struct {
	renderer Renderer
}

// NewCompiler creates a compiler that renders card sides with r.
func NewCompiler(r Renderer) *Compiler {
	return &Compiler{renderer: r}
}

// Compile parses source and renders every card. A document either compiles
// completely or returns an error; partial card sets are never returned.
func (c *Compiler) Compile(ctx context.Context, source []byte) (*Result, error) {
	m, body, err := splitFrontmatter(source)
	if err != nil {
		return nil, &apperr.FrontmatterError{Err: err}
	}

	raws, title := scanDocument(string(body))
	if m.Title != "" {
		title = m.Title
	}

	cards := make([]models.Card, 0, len(raws))
	for _, rc := range raws {
		card, err := c.renderCard(ctx, rc)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	return &Result{
		Title: title,
		Deck:  m.Deck,
		Cards: cards,
	}, nil
}

func (c *Compiler) renderCard(ctx context.Context, rc RawCard) (models.Card, error) {
	front, err := c.renderer.Render(ctx, rc.Front)
	if err != nil {
		return models.Card{}, renderError(err)
	}
	back, err := c.renderer.Render(ctx, rc.Back)
	if err != nil {
		return models.Card{}, renderError(err)
	}

	card := models.Card{
		Key:     rc.Front,
		Front:   front,
		Back:    back,
		Reverse: rc.Reverse,
	}
	if rc.Reverse {
		card.Front, card.Back = back, front
	}
	return card, nil
}

// renderError marks err as a document fault. Cancellation is not one and
// passes through unwrapped.
func renderError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var re *apperr.RenderError
	if errors.As(err, &re) {
		return err
	}
	return &apperr.RenderError{Err: err}
}
