// Package activity keeps one officer's activity feed loaded and current.
//
// A View moves Idle -> Loading -> Ready on Load. Live events for the
// displayed officer re-fetch only the record kind they name and re-merge it
// into the feed without going back to Loading. Switching officers starts a
// new load and discards anything still in flight for the previous one.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/metrics"
	"github.com/Tiliavir/rosterctl/internal/model"
	"github.com/Tiliavir/rosterctl/internal/timeline"
)

// ErrSuperseded is returned for work whose result was dropped because a newer
// load started or the view was closed. It is not a failure.
var ErrSuperseded = errors.New("activity view: result superseded")

// Fetcher retrieves an officer's records.
type Fetcher interface {
	Hours(ctx context.Context, nif int) ([]model.HoursEntry, error)
	Justifications(ctx context.Context, nif int) ([]model.JustificationEntry, error)
}

// Enricher fills in moderator names on justifications.
type Enricher interface {
	Enrich(ctx context.Context, justifications []model.JustificationEntry) ([]model.JustificationEntry, error)
}

// View owns the activity feed of the displayed officer.
type View struct {
	fetcher  Fetcher
	enricher Enricher
	now      func() time.Time

	mu        sync.Mutex
	nif       int
	state     model.ViewState
	entries   []model.TimelineEntry
	fetchedAt int64
	// gen changes on every Load and on Close. Work started under an older
	// generation is discarded.
	gen     uint64
	genCtx  context.Context
	cancel  context.CancelFunc
	closed  bool
	started map[model.RecordKind]uint64
	applied map[model.RecordKind]uint64

	// version counts state changes; notified is the last version delivered
	// to listeners, so a slow notifier cannot overwrite a newer state.
	version uint64

	listenMu  sync.Mutex
	notified  uint64
	listeners []func(model.OfficerActivityView)
}

// NewView creates an idle view. enricher may be nil.
func NewView(fetcher Fetcher, enricher Enricher) *View {
	return &View{
		fetcher:  fetcher,
		enricher: enricher,
		now:      time.Now,
		state:    model.StateIdle,
		genCtx:   context.Background(),
		started:  map[model.RecordKind]uint64{},
		applied:  map[model.RecordKind]uint64{},
	}
}

// OnChange registers fn to receive a snapshot after every state change.
func (v *View) OnChange(fn func(model.OfficerActivityView)) {
	v.listenMu.Lock()
	defer v.listenMu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// notify delivers snap unless a newer version was already delivered.
func (v *View) notify(snap model.OfficerActivityView, version uint64) {
	v.listenMu.Lock()
	defer v.listenMu.Unlock()
	if version <= v.notified {
		return
	}
	v.notified = version
	for _, fn := range v.listeners {
		fn(snap)
	}
}

// Snapshot returns a copy of the current view.
func (v *View) Snapshot() model.OfficerActivityView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// changedLocked records a state change and returns the snapshot to publish.
func (v *View) changedLocked() (model.OfficerActivityView, uint64) {
	v.version++
	return v.snapshotLocked(), v.version
}

func (v *View) snapshotLocked() model.OfficerActivityView {
	entries := make([]model.TimelineEntry, len(v.entries))
	copy(entries, v.entries)
	return model.OfficerActivityView{
		OfficerNIF: v.nif,
		Entries:    entries,
		Loading:    v.state == model.StateLoading,
		State:      v.state,
		FetchedAt:  v.fetchedAt,
	}
}

// Load clears the view and loads both record kinds of nif. Results are
// applied once, after both fetches and all enrichment lookups finished.
// A load overtaken by another Load or by Close returns ErrSuperseded.
func (v *View) Load(ctx context.Context, nif int) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrSuperseded
	}
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	gen := v.gen
	loadCtx, cancel := context.WithCancel(ctx)
	v.genCtx, v.cancel = loadCtx, cancel
	v.nif = nif
	v.state = model.StateLoading
	v.entries = nil
	v.fetchedAt = 0
	snap, version := v.changedLocked()
	v.mu.Unlock()
	v.notify(snap, version)

	hours, justifications, err := v.fetchAll(loadCtx, nif)

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		v.state = model.StateIdle
		snap, version := v.changedLocked()
		v.mu.Unlock()
		v.notify(snap, version)
		return fmt.Errorf("loading activity of officer %d: %w", nif, err)
	}
	v.entries = timeline.Merge(hours, justifications)
	v.state = model.StateReady
	v.fetchedAt = v.now().Unix()
	snap, version = v.changedLocked()
	v.mu.Unlock()

	logging.Debug().Int("nif", nif).Int("entries", len(snap.Entries)).Msg("activity loaded")
	v.notify(snap, version)
	return nil
}

// fetchAll fetches both kinds concurrently; either failing fails the load.
func (v *View) fetchAll(ctx context.Context, nif int) ([]model.HoursEntry, []model.JustificationEntry, error) {
	var hours []model.HoursEntry
	var justifications []model.JustificationEntry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hours, err = v.fetcher.Hours(gctx, nif)
		return err
	})
	g.Go(func() error {
		var err error
		justifications, err = v.justifications(gctx, nif)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return hours, justifications, nil
}

func (v *View) justifications(ctx context.Context, nif int) ([]model.JustificationEntry, error) {
	js, err := v.fetcher.Justifications(ctx, nif)
	if err != nil {
		return nil, err
	}
	if v.enricher == nil {
		return js, nil
	}
	return v.enricher.Enrich(ctx, js)
}

func (v *View) fetchKind(ctx context.Context, nif int, kind model.RecordKind) ([]model.TimelineEntry, error) {
	var fresh []model.TimelineEntry
	switch kind {
	case model.KindHours:
		hs, err := v.fetcher.Hours(ctx, nif)
		if err != nil {
			return nil, err
		}
		for _, h := range hs {
			fresh = append(fresh, model.HoursItem(h))
		}
	case model.KindJustification:
		js, err := v.justifications(ctx, nif)
		if err != nil {
			return nil, err
		}
		for _, j := range js {
			fresh = append(fresh, model.JustificationItem(j))
		}
	default:
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}
	return fresh, nil
}

// HandleEvent applies a live-update notification. Events for another
// officer, for non-activity records, or arriving while the view is not
// ready are ignored. Otherwise the named kind is re-fetched in full and
// replaces the entries of that kind; the loading flag is not touched.
func (v *View) HandleEvent(ctx context.Context, ev model.ActivityEvent) error {
	if !ev.Activity() {
		return nil
	}

	v.mu.Lock()
	if v.closed || ev.OfficerNIF != v.nif || v.state != model.StateReady {
		v.mu.Unlock()
		metrics.LiveEvents.WithLabelValues(string(ev.RecordKind), "ignored").Inc()
		return nil
	}
	gen, nif, genCtx := v.gen, v.nif, v.genCtx
	v.started[ev.RecordKind]++
	seq := v.started[ev.RecordKind]
	v.mu.Unlock()

	// The refresh also stops when the view moves on to another load.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(genCtx, cancel)
	defer stop()

	fresh, err := v.fetchKind(ctx, nif, ev.RecordKind)

	v.mu.Lock()
	if gen != v.gen || v.state != model.StateReady || seq <= v.applied[ev.RecordKind] {
		v.mu.Unlock()
		metrics.LiveEvents.WithLabelValues(string(ev.RecordKind), "ignored").Inc()
		return ErrSuperseded
	}
	if err != nil {
		v.mu.Unlock()
		metrics.LiveEvents.WithLabelValues(string(ev.RecordKind), "failed").Inc()
		return fmt.Errorf("refreshing %s of officer %d: %w", ev.RecordKind, nif, err)
	}
	v.applied[ev.RecordKind] = seq
	v.entries = timeline.Replace(v.entries, ev.RecordKind, fresh)
	v.fetchedAt = v.now().Unix()
	snap, version := v.changedLocked()
	v.mu.Unlock()

	metrics.LiveEvents.WithLabelValues(string(ev.RecordKind), "applied").Inc()
	logging.Debug().Int("nif", nif).Str("kind", string(ev.RecordKind)).Str("action", string(ev.Action)).Msg("activity refreshed")
	v.notify(snap, version)
	return nil
}

// Close cancels in-flight work. Results that arrive afterwards are dropped.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.gen++
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}
