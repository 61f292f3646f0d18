package cmd

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Tiliavir/rosterctl/internal/autosave"
	"github.com/Tiliavir/rosterctl/internal/model"
)

// patrolSession is the local edit state of one patrol: the last state known
// from the backend plus the note lines typed since then. Drafts are rebuilt
// from the two.
type patrolSession struct {
	update autosave.SaveFunc
	saver  *autosave.Saver

	mu      sync.Mutex
	base    model.Patrol
	pending []string
	// inFlight is how many pending lines the running save carries, or -1.
	inFlight int
	// rebased is set when the base changed while a save was running.
	rebased bool
}

func newPatrolSession(p model.Patrol, update autosave.SaveFunc, delay time.Duration) *patrolSession {
	s := &patrolSession{update: update, base: p, inFlight: -1}
	s.saver = autosave.New(p.ID, s.save, delay)
	return s
}

func (s *patrolSession) draftLocked() model.Patrol {
	p := s.base
	for _, line := range s.pending {
		p.Notes = appendNote(p.Notes, line)
	}
	return p
}

// append adds a typed line and hands the new draft to the saver.
func (s *patrolSession) append(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, line)
	draft := s.draftLocked()
	s.mu.Unlock()
	s.saver.Edit(draft)
}

// rebase replaces the base with a remote version and re-applies the unsaved
// lines on top of it.
func (s *patrolSession) rebase(remote model.Patrol) {
	s.mu.Lock()
	s.base = remote
	if s.inFlight >= 0 {
		s.rebased = true
	}
	draft, unsaved := s.draftLocked(), len(s.pending) > 0
	s.mu.Unlock()
	if unsaved {
		s.saver.Edit(draft)
	}
}

// save is the saver's SaveFunc. It sends the current base and pending lines
// rather than the saver's copy, so lines that arrive later are not counted
// as saved.
func (s *patrolSession) save(ctx context.Context, _ model.Patrol, actor string) (model.Patrol, error) {
	s.mu.Lock()
	draft := s.draftLocked()
	s.inFlight = len(s.pending)
	s.rebased = false
	s.mu.Unlock()

	saved, err := s.update(ctx, draft, actor)

	s.mu.Lock()
	sent := s.inFlight
	s.inFlight = -1
	if err != nil {
		s.mu.Unlock()
		return saved, err
	}
	if s.rebased {
		// This save overwrote a remote change seen meanwhile; save again on
		// top of it.
		s.rebased = false
		again := s.draftLocked()
		s.mu.Unlock()
		s.saver.Edit(again)
		return saved, nil
	}
	s.base = saved
	s.pending = s.pending[sent:]
	s.mu.Unlock()
	return saved, nil
}
