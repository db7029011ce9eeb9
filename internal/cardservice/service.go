// Package cardservice is the entry point shared by the HTTP and MCP transports.
package cardservice

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardsync"
	"github.com/starford/cardsync/internal/deck"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/storage"
)

// Preview is a compiled document that was not sent.
type Preview struct {
	DocumentID string        `json:"document_id"`
	Title      string        `json:"title"`
	Deck       string        `json:"deck"`
	Cards      []models.Card `json:"cards"`
}

// DocumentStatus describes a vault document and its last send.
type DocumentStatus struct {
	Path         string `json:"path"`
	Checksum     string `json:"checksum"`
	SentChecksum string `json:"sent_checksum,omitempty"`
	InSync       bool   `json:"in_sync"`
}

// Service coordinates the vault and the sync orchestrator.
type Service struct {
	vault storage.Provider
	orch  *cardsync.Orchestrator
}

// NewService creates a new card service.
func NewService(vault storage.Provider, orch *cardsync.Orchestrator) *Service {
	return &Service{vault: vault, orch: orch}
}

func (s *Service) store() deck.Store {
	return s.orch.Store()
}

// read loads a vault document, mapping a missing file to apperr.ErrNotFound.
// path must already be cleaned.
func (s *Service) read(path string) (models.Document, error) {
	data, err := s.vault.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Document{}, apperr.ErrNotFound
		}
		return models.Document{}, err
	}
	return models.Document{ID: path, Content: data}, nil
}

// Preview compiles content without sending it. When content is nil the
// document is read from the vault.
func (s *Service) Preview(ctx context.Context, documentID string, content []byte) (*Preview, error) {
	documentID = storage.Clean(documentID)
	doc := models.Document{ID: documentID, Content: content}
	if content == nil {
		var err error
		if doc, err = s.read(documentID); err != nil {
			return nil, err
		}
	}
	res, err := s.orch.Compile(ctx, doc)
	if err != nil {
		return nil, err
	}
	cards := res.Cards
	if cards == nil {
		cards = []models.Card{}
	}
	return &Preview{DocumentID: documentID, Title: res.Title, Deck: res.Deck, Cards: cards}, nil
}

// SendPath reads a vault document and sends it.
func (s *Service) SendPath(ctx context.Context, path string) (models.SendDiff, error) {
	doc, err := s.read(storage.Clean(path))
	if err != nil {
		return models.SendDiff{}, err
	}
	return s.orch.SendDocument(ctx, doc)
}

// SendPaths sends several vault documents in order. Unreadable documents are
// recorded as failures alongside send failures. With force set every document
// is written even when the store already holds it.
func (s *Service) SendPaths(ctx context.Context, paths []string, force bool) cardsync.BatchResult {
	docs := make([]models.Document, 0, len(paths))
	var readFailures []models.DocumentFailure
	for _, p := range paths {
		p = storage.Clean(p)
		doc, err := s.read(p)
		if err != nil {
			readFailures = append(readFailures, models.DocumentFailure{DocumentID: p, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	var r cardsync.BatchResult
	if force {
		r = s.orch.ResendBatch(ctx, docs)
	} else {
		r = s.orch.SendBatch(ctx, docs)
	}
	if len(readFailures) > 0 {
		r.Failures = append(readFailures, r.Failures...)
		r.Aggregate.Failed = len(r.Failures)
	}
	return r
}

// SyncVault sends every changed vault document and forgets deleted ones.
func (s *Service) SyncVault(ctx context.Context, force bool) (cardsync.BatchResult, error) {
	return s.orch.SyncVault(ctx, s.vault, force)
}

// Cards returns the cards last sent for documentID.
func (s *Service) Cards(ctx context.Context, documentID string) ([]models.Card, error) {
	documentID = storage.Clean(documentID)
	known, err := s.store().Documents(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := known[documentID]; !ok {
		return nil, apperr.ErrNotFound
	}
	cards, err := s.store().ExistingCards(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []models.Card{}
	}
	return cards, nil
}

// Documents lists vault documents with their send state, sorted by path.
func (s *Service) Documents(ctx context.Context) ([]DocumentStatus, error) {
	metas, err := s.vault.List("")
	if err != nil {
		return nil, err
	}
	known, err := s.store().Documents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentStatus, 0, len(metas))
	for _, m := range metas {
		sent := known[m.Path]
		out = append(out, DocumentStatus{
			Path:         m.Path,
			Checksum:     m.Checksum,
			SentChecksum: sent,
			InSync:       sent == m.Checksum,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Search finds sent cards matching query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]deck.SearchResult, error) {
	results, err := s.store().Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []deck.SearchResult{}
	}
	return results, nil
}
