//go:build !sqlite_fts5

package deck

import (
	"context"
	"database/sql"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the cards table.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _, _ string) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

func ftsDeleteDocument(_ context.Context, _ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, document_id, deck, substr(front, 1, 200)
		FROM cards
		WHERE front LIKE ? OR back LIKE ? OR key LIKE ?
		ORDER BY rowid
		LIMIT ?
	`, like, like, like, limit)
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
