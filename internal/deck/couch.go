package deck

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/starford/cardsync/internal/checksum"
	"github.com/starford/cardsync/internal/models"
)

const (
	couchTypeCard     = "card"
	couchTypeDocument = "document"
)

// findAll replaces the Mango default page size of 25 for unbounded queries.
const findAll = 1 << 20

type cardDoc struct {
	ID         string    `json:"_id"`
	Rev        string    `json:"_rev,omitempty"`
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id"`
	Deck       string    `json:"deck"`
	Key        string    `json:"key"`
	Front      string    `json:"front"`
	Back       string    `json:"back"`
	Reverse    bool      `json:"reverse"`
	Position   int       `json:"position"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (d cardDoc) card() models.Card {
	return models.Card{ID: d.ID, Key: d.Key, Front: d.Front, Back: d.Back, Reverse: d.Reverse, Position: d.Position}
}

type documentDoc struct {
	ID         string    `json:"_id"`
	Rev        string    `json:"_rev,omitempty"`
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id"`
	Deck       string    `json:"deck"`
	Checksum   string    `json:"checksum"`
	SentAt     time.Time `json:"sent_at"`
}

// Couch is a card store backed by a CouchDB database. Card document IDs are
// derived from the owning document and the card key, so re-sending a card
// always lands on the same CouchDB document.
type Couch struct {
	client *kivik.Client
	db     *kivik.DB
}

// OpenCouch connects to CouchDB at url and creates dbName if missing.
func OpenCouch(ctx context.Context, url, dbName string) (*Couch, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("deck: connect couchdb: %w", err)
	}
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, connErr("check database", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, connErr("create database", err)
		}
	}
	return newCouch(client, dbName), nil
}

func newCouch(client *kivik.Client, dbName string) *Couch {
	return &Couch{client: client, db: client.DB(dbName)}
}

func cardDocID(documentID, key string) string {
	return fmt.Sprintf("card:%s:%s", documentID, checksum.String(key))
}

func documentDocID(documentID string) string {
	return fmt.Sprintf("document:%s", documentID)
}

// ExistingCards returns the cards of a document in document order.
func (c *Couch) ExistingCards(ctx context.Context, documentID string) ([]models.Card, error) {
	docs, err := c.findCards(ctx, map[string]interface{}{
		"type":        couchTypeCard,
		"document_id": documentID,
	}, 0)
	if err != nil {
		return nil, connErr("existing cards", err)
	}
	out := make([]models.Card, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.card())
	}
	return out, nil
}

// ApplyDiff writes the diff card by card. CouchDB has no transactions; a
// failure part way through leaves earlier writes in place and the next send
// picks up from there. Unchanged cards are rewritten only when their deck or
// position moved.
func (c *Couch) ApplyDiff(ctx context.Context, d models.SendDiff) error {
	existing, err := c.findCards(ctx, map[string]interface{}{
		"type":        couchTypeCard,
		"document_id": d.DocumentID,
	}, 0)
	if err != nil {
		return connErr("existing cards", err)
	}
	stored := make(map[string]cardDoc, len(existing))
	for _, e := range existing {
		stored[e.ID] = e
	}

	for _, card := range d.Removed {
		e, ok := stored[card.ID]
		if !ok {
			continue
		}
		if _, err := c.db.Delete(ctx, e.ID, e.Rev); err != nil {
			return connErr("delete card", err)
		}
	}

	now := time.Now().UTC()
	put := func(card models.Card) error {
		id := cardDocID(d.DocumentID, card.Key)
		doc := cardDoc{
			ID:         id,
			Rev:        stored[id].Rev,
			Type:       couchTypeCard,
			DocumentID: d.DocumentID,
			Deck:       d.Deck,
			Key:        card.Key,
			Front:      card.Front,
			Back:       card.Back,
			Reverse:    card.Reverse,
			Position:   card.Position,
			UpdatedAt:  now,
		}
		if _, err := c.db.Put(ctx, id, doc); err != nil {
			return connErr("put card", err)
		}
		return nil
	}
	for _, card := range d.Added {
		if err := put(card); err != nil {
			return err
		}
	}
	for _, card := range d.Updated {
		if err := put(card); err != nil {
			return err
		}
	}
	for _, card := range d.Unchanged {
		e, ok := stored[cardDocID(d.DocumentID, card.Key)]
		if ok && e.Deck == d.Deck && e.Position == card.Position {
			continue
		}
		if err := put(card); err != nil {
			return err
		}
	}

	prevDoc, err := c.getDocument(ctx, d.DocumentID)
	if err != nil {
		return connErr("get document", err)
	}
	doc := documentDoc{
		ID:         documentDocID(d.DocumentID),
		Type:       couchTypeDocument,
		DocumentID: d.DocumentID,
		Deck:       d.Deck,
		Checksum:   d.Checksum,
		SentAt:     now,
	}
	if prevDoc != nil {
		doc.Rev = prevDoc.Rev
	}
	if _, err := c.db.Put(ctx, doc.ID, doc); err != nil {
		return connErr("put document", err)
	}
	return nil
}

// Documents returns the checksum of every known document.
func (c *Couch) Documents(ctx context.Context) (map[string]string, error) {
	rows := c.db.Find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{"type": couchTypeDocument},
		"limit":    findAll,
	})
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var doc documentDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, connErr("decode document", err)
		}
		out[doc.DocumentID] = doc.Checksum
	}
	if err := rows.Err(); err != nil {
		return nil, connErr("documents", err)
	}
	return out, nil
}

// ForgetDocument deletes the document record and any cards left behind.
func (c *Couch) ForgetDocument(ctx context.Context, documentID string) error {
	docs, err := c.findCards(ctx, map[string]interface{}{
		"type":        couchTypeCard,
		"document_id": documentID,
	}, 0)
	if err != nil {
		return connErr("forget document", err)
	}
	for _, d := range docs {
		if _, err := c.db.Delete(ctx, d.ID, d.Rev); err != nil {
			return connErr("delete card", err)
		}
	}
	if err := c.deleteDoc(ctx, documentDocID(documentID)); err != nil {
		return connErr("delete document", err)
	}
	return nil
}

// Search matches query case-insensitively against card fronts and backs.
func (c *Couch) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "(?i)" + regexp.QuoteMeta(query)
	docs, err := c.findCards(ctx, map[string]interface{}{
		"type": couchTypeCard,
		"$or": []interface{}{
			map[string]interface{}{"front": map[string]interface{}{"$regex": pattern}},
			map[string]interface{}{"back": map[string]interface{}{"$regex": pattern}},
		},
	}, limit)
	if err != nil {
		return nil, connErr("search", err)
	}
	out := make([]SearchResult, 0, len(docs))
	for _, d := range docs {
		snippet := d.Front
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		out = append(out, SearchResult{CardID: d.ID, DocumentID: d.DocumentID, Deck: d.Deck, Snippet: snippet})
	}
	return out, nil
}

// Close releases the client.
func (c *Couch) Close() error {
	return c.client.Close()
}

func (c *Couch) findCards(ctx context.Context, selector map[string]interface{}, limit int) ([]cardDoc, error) {
	if limit <= 0 {
		limit = findAll
	}
	query := map[string]interface{}{"selector": selector, "limit": limit}
	rows := c.db.Find(ctx, query)
	defer rows.Close()

	var docs []cardDoc
	for rows.Next() {
		var d cardDoc
		if err := rows.ScanDoc(&d); err != nil {
			return nil, fmt.Errorf("decode card: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Position != docs[j].Position {
			return docs[i].Position < docs[j].Position
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (c *Couch) getDocument(ctx context.Context, documentID string) (*documentDoc, error) {
	var doc documentDoc
	if err := c.db.Get(ctx, documentDocID(documentID)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// currentRev returns the revision of id, or "" when it does not exist.
func (c *Couch) currentRev(ctx context.Context, id string) (string, error) {
	var doc struct {
		Rev string `json:"_rev"`
	}
	if err := c.db.Get(ctx, id).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return "", nil
		}
		return "", err
	}
	return doc.Rev, nil
}

func (c *Couch) deleteDoc(ctx context.Context, id string) error {
	rev, err := c.currentRev(ctx, id)
	if err != nil {
		return err
	}
	if rev == "" {
		return nil
	}
	_, err = c.db.Delete(ctx, id, rev)
	return err
}
