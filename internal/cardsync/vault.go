package cardsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/storage"
)

// SyncVault brings the store up to date with every document in the vault:
//   - new and changed documents are sent
//   - documents whose checksum matches the last send are skipped unless force is set
//   - documents known to the store but gone from the vault are forgotten
//
// Per-document failures are recorded in the result; the returned error is
// reserved for failures that prevent the sync from starting.
func (o *Orchestrator) SyncVault(ctx context.Context, provider storage.Provider, force bool) (BatchResult, error) {
	var r BatchResult

	metas, err := provider.List("")
	if err != nil {
		return r, fmt.Errorf("sync vault: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	known, err := o.store.Documents(ctx)
	if err != nil {
		return r, fmt.Errorf("sync vault: %w", err)
	}
	sendKnown := known
	if force {
		sendKnown = nil
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}

	for i, m := range metas {
		if err := ctx.Err(); err != nil {
			for _, rest := range metas[i:] {
				r.fail(rest.Path, err)
			}
			r.finish()
			return r, nil
		}
		if sent, ok := known[m.Path]; ok && !force && sent == m.Checksum {
			r.Skipped++
			continue
		}

		data, err := provider.Read(m.Path)
		if err != nil {
			o.logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			r.fail(m.Path, err)
			continue
		}
		d, err := o.send(ctx, models.Document{ID: m.Path, Content: data}, sendKnown)
		if err != nil {
			o.logger.Warn("sync: send failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			r.fail(m.Path, err)
			continue
		}
		r.Diffs = append(r.Diffs, d)
	}

	// Remove stale documents.
	stale := make([]string, 0)
	for id := range known {
		if _, ok := disk[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		d, err := o.Forget(ctx, id)
		if err != nil {
			o.logger.Warn("sync: forget failed", slog.String("path", id), slog.String("error", err.Error()))
			r.fail(id, err)
			continue
		}
		o.logger.Debug("sync: removed stale", slog.String("path", id))
		r.Diffs = append(r.Diffs, d)
	}

	r.finish()
	o.logger.Info("sync: done",
		slog.String("summary", r.Aggregate.String()),
		slog.Int("skipped", r.Skipped))
	return r, nil
}
