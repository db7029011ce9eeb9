package deck

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/models"
)

func connErr(op string, err error) error {
	return &apperr.ConnectionError{Op: op, Err: err}
}

// ExistingCards returns the cards of a document in document order.
func (db *DB) ExistingCards(ctx context.Context, documentID string) ([]models.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, key, front, back, reverse, position
		FROM cards
		WHERE document_id = ?
		ORDER BY position, rowid
	`, documentID)
	if err != nil {
		return nil, connErr("existing cards", err)
	}
	defer rows.Close()

	var out []models.Card
	for rows.Next() {
		var c models.Card
		if err := rows.Scan(&c.ID, &c.Key, &c.Front, &c.Back, &c.Reverse, &c.Position); err != nil {
			return nil, connErr("existing cards", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, connErr("existing cards", err)
	}
	return out, nil
}

// ApplyDiff writes the diff in one transaction.
func (db *DB) ApplyDiff(ctx context.Context, d models.SendDiff) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return connErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()

	for _, c := range d.Removed {
		if err := ftsDelete(ctx, tx, c.ID); err != nil {
			return connErr("apply", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, c.ID); err != nil {
			return connErr("delete card", err)
		}
	}

	upsert := func(c models.Card) error {
		if c.ID != "" {
			res, err := tx.ExecContext(ctx, `
				UPDATE cards SET deck = ?, key = ?, front = ?, back = ?, reverse = ?, position = ?, updated_at = ?
				WHERE id = ?
			`, d.Deck, c.Key, c.Front, c.Back, c.Reverse, c.Position, now, c.ID)
			if err != nil {
				return connErr("update card", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				return ftsUpsert(ctx, tx, c.ID, d.DocumentID, c.Front, c.Back)
			}
		} else {
			c.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, document_id, deck, key, front, back, reverse, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(document_id, key) DO UPDATE SET
				deck       = excluded.deck,
				front      = excluded.front,
				back       = excluded.back,
				reverse    = excluded.reverse,
				position   = excluded.position,
				updated_at = excluded.updated_at
		`, c.ID, d.DocumentID, d.Deck, c.Key, c.Front, c.Back, c.Reverse, c.Position, now)
		if err != nil {
			return connErr("upsert card", err)
		}
		return ftsUpsert(ctx, tx, c.ID, d.DocumentID, c.Front, c.Back)
	}
	for _, c := range d.Added {
		if err := upsert(c); err != nil {
			return err
		}
	}
	for _, c := range d.Updated {
		if err := upsert(c); err != nil {
			return err
		}
	}

	// Unchanged cards may still have moved to another deck or position.
	for _, c := range d.Unchanged {
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET deck = ?, position = ? WHERE id = ?`, d.Deck, c.Position, c.ID); err != nil {
			return connErr("update card", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, deck, checksum, sent_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			deck     = excluded.deck,
			checksum = excluded.checksum,
			sent_at  = excluded.sent_at
	`, d.DocumentID, d.Deck, d.Checksum, now)
	if err != nil {
		return connErr("upsert document", err)
	}

	if err := tx.Commit(); err != nil {
		return connErr("commit", err)
	}
	return nil
}

// Documents returns every known document with the checksum last sent.
func (db *DB) Documents(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, checksum FROM documents`)
	if err != nil {
		return nil, connErr("documents", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, connErr("documents", err)
		}
		out[id] = cs
	}
	if err := rows.Err(); err != nil {
		return nil, connErr("documents", err)
	}
	return out, nil
}

// ForgetDocument removes the document row and any cards left behind.
func (db *DB) ForgetDocument(ctx context.Context, documentID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return connErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDeleteDocument(ctx, tx, documentID); err != nil {
		return connErr("forget document", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE document_id = ?`, documentID); err != nil {
		return connErr("forget document", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return connErr("forget document", err)
	}

	if err := tx.Commit(); err != nil {
		return connErr("commit", err)
	}
	return nil
}
