package deck

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "cardsync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM cards`).Scan(&count); err != nil {
		t.Fatalf("cards table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&count); err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
}

func TestExistingCards_NeverSent(t *testing.T) {
	db := testDB(t)
	cards, err := db.ExistingCards(context.Background(), "missing.md")
	if err != nil {
		t.Fatalf("ExistingCards: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("cards = %+v, want none", cards)
	}
}

func TestApplyDiff_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := models.SendDiff{
		DocumentID: "bio.md",
		Deck:       "Bio",
		Checksum:   "c1",
		Added: []models.Card{
			{Key: "Cell", Front: "Cell", Back: "unit"},
			{Key: "DNA", Front: "helix", Back: "DNA", Reverse: true},
		},
	}
	if err := db.ApplyDiff(ctx, first); err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}

	cards, err := db.ExistingCards(ctx, "bio.md")
	if err != nil {
		t.Fatalf("ExistingCards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("len(cards) = %d, want 2", len(cards))
	}
	if cards[0].ID == "" || cards[0].Key != "Cell" {
		t.Errorf("first card = %+v", cards[0])
	}
	if !cards[1].Reverse {
		t.Errorf("reverse flag lost: %+v", cards[1])
	}

	second := models.SendDiff{
		DocumentID: "bio.md",
		Deck:       "Biology",
		Checksum:   "c2",
		Updated:    []models.Card{{ID: cards[0].ID, Key: "Cell", Front: "Cell", Back: "smallest unit"}},
		Removed:    []models.Card{cards[1]},
	}
	if err := db.ApplyDiff(ctx, second); err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}

	cards, _ = db.ExistingCards(ctx, "bio.md")
	if len(cards) != 1 || cards[0].Back != "smallest unit" {
		t.Errorf("cards after update = %+v", cards)
	}

	docs, err := db.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if docs["bio.md"] != "c2" {
		t.Errorf("checksum = %q, want c2", docs["bio.md"])
	}
}

func TestApplyDiff_DeckMoveAppliesToUnchanged(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.ApplyDiff(ctx, models.SendDiff{
		DocumentID: "a.md", Deck: "Old",
		Added: []models.Card{{Key: "K", Front: "K", Back: "v"}},
	})
	cards, _ := db.ExistingCards(ctx, "a.md")
	_ = db.ApplyDiff(ctx, models.SendDiff{DocumentID: "a.md", Deck: "New", Unchanged: cards})

	var deckName string
	if err := db.conn.QueryRow(`SELECT deck FROM cards WHERE id = ?`, cards[0].ID).Scan(&deckName); err != nil {
		t.Fatal(err)
	}
	if deckName != "New" {
		t.Errorf("deck = %q, want New", deckName)
	}
}

func TestForgetDocument(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.ApplyDiff(ctx, models.SendDiff{
		DocumentID: "gone.md", Deck: "D", Checksum: "x",
		Added: []models.Card{{Key: "K", Front: "K", Back: "v"}},
	})
	if err := db.ForgetDocument(ctx, "gone.md"); err != nil {
		t.Fatalf("ForgetDocument: %v", err)
	}
	docs, _ := db.Documents(ctx)
	if _, ok := docs["gone.md"]; ok {
		t.Error("document still listed")
	}
	cards, _ := db.ExistingCards(ctx, "gone.md")
	if len(cards) != 0 {
		t.Errorf("cards left behind: %+v", cards)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.ApplyDiff(ctx, models.SendDiff{
		DocumentID: "s.md", Deck: "D",
		Added: []models.Card{{Key: "Q", Front: "Q", Back: "uniqueword appears here"}},
	})

	results, err := db.Search(ctx, "uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestClosedStoreReturnsConnectionError(t *testing.T) {
	db := testDB(t)
	db.Close()
	_, err := db.ExistingCards(context.Background(), "x.md")
	var ce *apperr.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
}

func TestExistingCards_OrderedByPosition(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.ApplyDiff(ctx, models.SendDiff{
		DocumentID: "p.md", Deck: "D",
		Added: []models.Card{
			{Key: "A", Front: "A", Back: "a", Position: 0},
			{Key: "C", Front: "C", Back: "c", Position: 1},
		},
	})
	stored, _ := db.ExistingCards(ctx, "p.md")

	// B is inserted between A and C; C shifts without changing content.
	stored[1].Position = 2
	err := db.ApplyDiff(ctx, models.SendDiff{
		DocumentID: "p.md", Deck: "D",
		Added:     []models.Card{{Key: "B", Front: "B", Back: "b", Position: 1}},
		Unchanged: []models.Card{stored[0], stored[1]},
	})
	if err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}

	cards, _ := db.ExistingCards(ctx, "p.md")
	var keys []string
	for _, c := range cards {
		keys = append(keys, c.Key)
	}
	if strings.Join(keys, ",") != "A,B,C" {
		t.Errorf("order = %v, want A,B,C", keys)
	}
}
