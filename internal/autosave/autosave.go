// Package autosave debounces patrol edits into remote saves and recognises
// the live events those saves echo back.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/metrics"
	"github.com/Tiliavir/rosterctl/internal/model"
)

// DefaultDelay is how long edits must stay quiet before they are saved.
const DefaultDelay = 2 * time.Second

// State is the saver's position in Idle -> PendingSave -> Saving -> Idle.
type State int

const (
	Idle State = iota
	PendingSave
	Saving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingSave:
		return "pending"
	case Saving:
		return "saving"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SaveFunc persists p on behalf of actor and returns the stored patrol.
type SaveFunc func(ctx context.Context, p model.Patrol, actor string) (model.Patrol, error)

// Saver owns the local draft of one patrol.
type Saver struct {
	patrolID int
	save     SaveFunc
	delay    time.Duration
	actor    string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	draft   model.Patrol
	dirty   bool
	timer   *time.Timer
	armed   uint64
	done    chan struct{}
	closed  bool
	onSaved func(model.Patrol, error)
}

// New creates a saver for patrol patrolID. A non-positive delay uses
// DefaultDelay. Each saver gets its own actor id.
func New(patrolID int, save SaveFunc, delay time.Duration) *Saver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Saver{
		patrolID: patrolID,
		save:     save,
		delay:    delay,
		actor:    uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Actor is the id sent with every save made by this saver.
func (s *Saver) Actor() string { return s.actor }

// State returns the current state.
func (s *Saver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnSaved registers fn to run after every save attempt.
func (s *Saver) OnSaved(fn func(model.Patrol, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSaved = fn
}

// Edit replaces the draft and restarts the quiet period. Edits made while a
// save is running are saved once it finishes.
func (s *Saver) Edit(p model.Patrol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.draft = p
	s.dirty = true
	if s.state == Saving {
		return
	}
	s.armLocked()
}

func (s *Saver) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed++
	gen := s.armed
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
	s.state = PendingSave
}

func (s *Saver) fire(gen uint64) {
	s.mu.Lock()
	stale := gen != s.armed || s.state != PendingSave
	s.mu.Unlock()
	if stale {
		return
	}
	if err := s.flush(s.ctx); err != nil {
		logging.Warn().Err(err).Int("patrol", s.patrolID).Msg("patrol auto-save failed")
	}
}

// Flush saves the draft now if it has unsaved changes, waiting for a save
// already in progress first.
func (s *Saver) Flush(ctx context.Context) error {
	return s.flush(ctx)
}

func (s *Saver) flush(ctx context.Context) error {
	s.mu.Lock()
	for s.state == Saving {
		done := s.done
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed++
	draft := s.draft
	s.dirty = false
	s.state = Saving
	s.done = make(chan struct{})
	s.mu.Unlock()

	saved, err := s.save(ctx, draft, s.actor)

	s.mu.Lock()
	s.state = Idle
	close(s.done)
	if err != nil && !s.dirty {
		// Keep the unsaved draft; the next edit or Flush retries it.
		s.dirty = true
	} else if s.dirty && !s.closed {
		s.armLocked()
	}
	onSaved := s.onSaved
	s.mu.Unlock()

	if err != nil {
		metrics.PatrolSaves.WithLabelValues("failure").Inc()
		err = fmt.Errorf("saving patrol %d: %w", s.patrolID, err)
	} else {
		metrics.PatrolSaves.WithLabelValues("success").Inc()
		logging.Debug().Int("patrol", s.patrolID).Msg("patrol saved")
	}
	if onSaved != nil {
		onSaved(saved, err)
	}
	return err
}

// Apply reports whether ev is a remote change to this patrol that the
// caller should re-fetch. Echoes of this saver's own saves are suppressed.
func (s *Saver) Apply(ev model.ActivityEvent) bool {
	if ev.RecordKind != model.KindPatrol || ev.PatrolID != s.patrolID {
		return false
	}
	return ev.Actor != s.actor
}

// Close stops the pending timer and cancels a timer-driven save in flight.
// Unsaved edits are dropped; call Flush first to keep them.
func (s *Saver) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.armed++
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.state == PendingSave {
		s.state = Idle
	}
	s.cancel()
}
