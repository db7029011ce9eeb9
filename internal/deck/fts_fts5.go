//go:build sqlite_fts5

package deck

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS cards_fts USING fts5(
			card_id UNINDEXED,
			document_id UNINDEXED,
			front,
			back,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, cardID, documentID, front, back string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM cards_fts WHERE card_id = ?`, cardID)
	_, err := tx.ExecContext(ctx, `INSERT INTO cards_fts (card_id, document_id, front, back) VALUES (?, ?, ?, ?)`,
		cardID, documentID, front, back)
	if err != nil {
		return fmt.Errorf("deck: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, cardID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM cards_fts WHERE card_id = ?`, cardID)
	return err
}

func ftsDeleteDocument(ctx context.Context, tx *sql.Tx, documentID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM cards_fts WHERE document_id = ?`, documentID)
	return err
}

// Search performs an FTS5 full-text search over card sides.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT f.card_id,
		       f.document_id,
		       c.deck,
		       snippet(cards_fts, -1, '<b>', '</b>', '...', 32)
		FROM cards_fts f
		JOIN cards c ON c.id = f.card_id
		WHERE cards_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, connErr("search", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.CardID, &r.DocumentID, &r.Deck, &r.Snippet); err != nil {
			return nil, connErr("search", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
