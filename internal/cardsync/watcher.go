package cardsync

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/cardsync/internal/models"
	"github.com/starford/cardsync/internal/storage"
)

// Watcher event kinds.
const (
	EventSent    = "sent"
	EventFailed  = "failed"
	EventRemoved = "removed"
)

// Event reports one watcher-driven send.
type Event struct {
	Kind       string
	DocumentID string
	Diff       models.SendDiff
	Err        error
}

// EventCallback is called after every watcher-driven send or removal.
type EventCallback func(Event)

// debounce is how long a path must stay quiet before it is re-sent. Editors
// often write a file several times per save.
const debounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and re-sends documents
// as they are saved, until ctx is cancelled. It calls cb (if non-nil) after
// each send, failure and removal.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a vault sync that forgets documents whose
// files no longer exist on disk.
func (o *Orchestrator) Watch(ctx context.Context, provider storage.Provider, vaultRoot string, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	o.logger.Info("watcher: started", slog.String("root", vaultRoot))

	emit := func(ev Event) {
		if cb != nil {
			cb(ev)
		}
	}

	sends := newDebouncer(debounce)
	defer sends.stop()

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(debounce)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(debounce)
		}
	}

	defer func() {
		if reconcileTimer != nil {
			reconcileTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("watcher: stopped")
			return nil

		case ev := <-sends.due:
			if sends.accept(ev) {
				o.resend(ctx, provider, ev.rel, emit)
			}

		case <-reconcileCh:
			o.reconcile(ctx, provider, emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if strings.HasPrefix(info.Name(), ".") {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						o.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					// Files may land in the directory before it is watched.
					scheduleReconcile()
					continue
				}
			}

			if !storage.IsDocument(absPath) {
				continue
			}
			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if inHiddenDir(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				sends.schedule(rel)

			case ev.Op&fsnotify.Remove != 0:
				sends.cancel(rel)
				o.forget(ctx, rel, emit)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a Create if it stays inside the vault.
				o.forget(ctx, rel, emit)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			o.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

type dueSend struct {
	rel string
	gen uint64
}

type pendingSend struct {
	timer *time.Timer
	gen   uint64
}

// debouncer delays sends per path. Only the watch loop calls its methods;
// timers only deliver on due. A timer that fired before being superseded
// still delivers, and accept drops it by generation.
type debouncer struct {
	delay   time.Duration
	due     chan dueSend
	done    chan struct{}
	gen     uint64
	pending map[string]pendingSend
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		due:     make(chan dueSend),
		done:    make(chan struct{}),
		pending: make(map[string]pendingSend),
	}
}

// schedule (re)starts the quiet period for rel.
func (d *debouncer) schedule(rel string) {
	if p, ok := d.pending[rel]; ok {
		p.timer.Stop()
	}
	d.gen++
	ev := dueSend{rel: rel, gen: d.gen}
	t := time.AfterFunc(d.delay, func() {
		select {
		case d.due <- ev:
		case <-d.done:
		}
	})
	d.pending[rel] = pendingSend{timer: t, gen: ev.gen}
}

// cancel drops any pending send for rel.
func (d *debouncer) cancel(rel string) {
	if p, ok := d.pending[rel]; ok {
		p.timer.Stop()
		delete(d.pending, rel)
	}
}

// accept reports whether ev is the latest send scheduled for its path and
// clears it.
func (d *debouncer) accept(ev dueSend) bool {
	p, ok := d.pending[ev.rel]
	if !ok || p.gen != ev.gen {
		return false
	}
	delete(d.pending, ev.rel)
	return true
}

func (d *debouncer) stop() {
	for _, p := range d.pending {
		p.timer.Stop()
	}
	close(d.done)
}

func (o *Orchestrator) resend(ctx context.Context, provider storage.Provider, rel string, emit EventCallback) {
	data, err := provider.Read(rel)
	if err != nil {
		// Deleted between the event and the debounce firing.
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		o.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		emit(Event{Kind: EventFailed, DocumentID: rel, Err: err})
		return
	}
	d, err := o.SendDocument(ctx, models.Document{ID: rel, Content: data})
	if err != nil {
		o.logger.Warn("watcher: send failed", slog.String("path", rel), slog.String("error", err.Error()))
		emit(Event{Kind: EventFailed, DocumentID: rel, Err: err})
		return
	}
	o.logger.Debug("watcher: sent", slog.String("path", rel), slog.String("summary", d.Summary().String()))
	emit(Event{Kind: EventSent, DocumentID: rel, Diff: d})
}

func (o *Orchestrator) forget(ctx context.Context, rel string, emit EventCallback) {
	d, err := o.Forget(ctx, rel)
	if err != nil {
		o.logger.Warn("watcher: forget failed", slog.String("path", rel), slog.String("error", err.Error()))
		emit(Event{Kind: EventFailed, DocumentID: rel, Err: err})
		return
	}
	if len(d.Removed) == 0 {
		return
	}
	emit(Event{Kind: EventRemoved, DocumentID: rel, Diff: d})
}

// reconcile runs a vault sync and reports its outcome per document.
func (o *Orchestrator) reconcile(ctx context.Context, provider storage.Provider, emit EventCallback) {
	r, err := o.SyncVault(ctx, provider, false)
	if err != nil {
		o.logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
		return
	}
	for _, d := range r.Diffs {
		kind := EventSent
		if d.Deck == "" && d.Total() == 0 && len(d.Removed) > 0 {
			kind = EventRemoved
		}
		emit(Event{Kind: kind, DocumentID: d.DocumentID, Diff: d})
	}
	for _, f := range r.Failures {
		emit(Event{Kind: EventFailed, DocumentID: f.DocumentID, Err: f.Err})
	}
}

// addDirsRecursive adds root and its subdirectories to the watcher. Hidden
// directories are not part of the vault and are skipped.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func inHiddenDir(rel string) bool {
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}
