package api

import (
	"github.com/starford/cardsync/internal/cardservice"
	"github.com/starford/cardsync/internal/cardsync"
	"github.com/starford/cardsync/internal/deck"
	"github.com/starford/cardsync/internal/models"
)

// PreviewRequest compiles a document without sending it. When Content is
// empty the document is read from the vault.
type PreviewRequest struct {
	DocumentID string  `json:"document_id" example:"spanish/verbs.md" validate:"required"`
	Content    *string `json:"content,omitempty" example:"# Verbs\n## ser\nto be"`
}

// SendRequest sends one vault document.
type SendRequest struct {
	Path string `json:"path" example:"spanish/verbs.md" validate:"required"`
}

// BatchSendRequest sends several vault documents in order.
type BatchSendRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
	Force bool     `json:"force"`
}

// SyncRequest sends every changed vault document.
type SyncRequest struct {
	Force bool `json:"force"`
}

// Preview is the compiled document response (aliased from the domain layer).
type Preview = cardservice.Preview

// DocumentStatus is one vault document with its send state.
type DocumentStatus = cardservice.DocumentStatus

// SendResponse is the outcome of sending one document.
type SendResponse struct {
	Diff    models.SendDiff `json:"diff"`
	Summary models.Summary  `json:"summary"`
	Message string          `json:"message" example:"verbs.md (Spanish): 2 added, 0 updated, 0 removed, 1 unchanged"`
}

// FailureDTO is a document that could not be sent.
type FailureDTO struct {
	DocumentID string `json:"document_id" validate:"required"`
	Error      string `json:"error" validate:"required"`
	Hint       string `json:"hint,omitempty"`
}

// BatchResponse is the outcome of a batch send or vault sync.
type BatchResponse struct {
	Diffs     []models.SendDiff    `json:"diffs"`
	Failures  []FailureDTO         `json:"failures"`
	Skipped   int                  `json:"skipped"`
	Aggregate models.AggregateDiff `json:"aggregate"`
	Message   string               `json:"message" example:"3 documents: 5 added, 1 updated, 0 removed, 12 unchanged"`
}

// CardsResponse lists the cards last sent for a document.
type CardsResponse struct {
	DocumentID string        `json:"document_id" validate:"required"`
	Cards      []models.Card `json:"cards" validate:"required"`
}

// DocumentsResponse lists vault documents.
type DocumentsResponse struct {
	Documents []DocumentStatus `json:"documents" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []deck.SearchResult `json:"results" validate:"required"`
}

func newSendResponse(d models.SendDiff) SendResponse {
	return SendResponse{Diff: d, Summary: d.Summary(), Message: d.String()}
}

func newBatchResponse(r cardsync.BatchResult) BatchResponse {
	diffs := r.Diffs
	if diffs == nil {
		diffs = []models.SendDiff{}
	}
	failures := make([]FailureDTO, 0, len(r.Failures))
	for _, f := range r.Failures {
		failures = append(failures, newFailureDTO(f.DocumentID, f.Err))
	}
	return BatchResponse{
		Diffs:     diffs,
		Failures:  failures,
		Skipped:   r.Skipped,
		Aggregate: r.Aggregate,
		Message:   r.Aggregate.String(),
	}
}
