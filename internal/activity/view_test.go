package activity_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tiliavir/rosterctl/internal/activity"
	"github.com/Tiliavir/rosterctl/internal/model"
)

// fakeFetcher serves canned records. Fetches for a NIF with a gate block
// until the gate is closed, regardless of context, to mimic responses that
// arrive after the caller moved on.
type fakeFetcher struct {
	mu             sync.Mutex
	hours          map[int][]model.HoursEntry
	justifications map[int][]model.JustificationEntry
	hoursErr       error
	gates          map[int]chan struct{}

	hoursCalls atomic.Int32
	justCalls  atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		hours:          map[int][]model.HoursEntry{},
		justifications: map[int][]model.JustificationEntry{},
		gates:          map[int]chan struct{}{},
	}
}

func (f *fakeFetcher) wait(nif int) {
	f.mu.Lock()
	gate := f.gates[nif]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (f *fakeFetcher) Hours(_ context.Context, nif int) ([]model.HoursEntry, error) {
	f.hoursCalls.Add(1)
	f.wait(nif)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hoursErr != nil {
		return nil, f.hoursErr
	}
	return append([]model.HoursEntry(nil), f.hours[nif]...), nil
}

func (f *fakeFetcher) Justifications(_ context.Context, nif int) ([]model.JustificationEntry, error) {
	f.justCalls.Add(1)
	f.wait(nif)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.JustificationEntry(nil), f.justifications[nif]...), nil
}

func (f *fakeFetcher) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

type nameEnricher struct{}

func (nameEnricher) Enrich(_ context.Context, js []model.JustificationEntry) ([]model.JustificationEntry, error) {
	out := append([]model.JustificationEntry(nil), js...)
	for i := range out {
		if out[i].Status != model.StatusPending {
			out[i].ManagedByName = "Chefe Silva"
		}
	}
	return out, nil
}

func ptr(v int64) *int64 { return &v }

func officerA(f *fakeFetcher) {
	f.hours[1] = []model.HoursEntry{{ID: 1, WeekStart: 1699395200, WeekEnd: 1700000000, Minutes: 600}}
	f.justifications[1] = []model.JustificationEntry{{ID: 2, Start: 1699000000, Status: model.StatusPending}}
}

func kinds(entries []model.TimelineEntry) []model.RecordKind {
	out := make([]model.RecordKind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

func TestLoad(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	v := activity.NewView(f, nameEnricher{})

	var states []model.ViewState
	v.OnChange(func(s model.OfficerActivityView) { states = append(states, s.State) })

	if err := v.Load(context.Background(), 1); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := v.Snapshot()
	if snap.OfficerNIF != 1 || snap.Loading || snap.State != model.StateReady {
		t.Errorf("snapshot = %+v", snap)
	}
	got := kinds(snap.Entries)
	if len(got) != 2 || got[0] != model.KindJustification || got[1] != model.KindHours {
		t.Errorf("order = %v, want [justification hours]", got)
	}
	if len(states) != 2 || states[0] != model.StateLoading || states[1] != model.StateReady {
		t.Errorf("states = %v, want [loading ready]", states)
	}
}

func TestLoadFailureDoesNotPartiallyRender(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	f.hoursErr = errors.New("boom")
	v := activity.NewView(f, nil)

	err := v.Load(context.Background(), 1)
	if err == nil {
		t.Fatal("Load succeeded, want error")
	}
	snap := v.Snapshot()
	if len(snap.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(snap.Entries))
	}
	if snap.Loading || snap.State != model.StateIdle {
		t.Errorf("state = %s loading=%v, want idle without loading", snap.State, snap.Loading)
	}
}

func TestOfficerSwitchDiscardsStaleLoad(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	f.hours[2] = []model.HoursEntry{{ID: 9, WeekEnd: 50, Minutes: 30}}
	gate := make(chan struct{})
	f.gates[1] = gate
	v := activity.NewView(f, nil)

	errA := make(chan error, 1)
	go func() { errA <- v.Load(context.Background(), 1) }()
	waitFor(t, func() bool { return f.hoursCalls.Load() >= 1 })

	if err := v.Load(context.Background(), 2); err != nil {
		t.Fatalf("Load(2): %v", err)
	}
	close(gate) // officer 1's responses arrive late

	if err := <-errA; !errors.Is(err, activity.ErrSuperseded) {
		t.Errorf("Load(1) = %v, want ErrSuperseded", err)
	}
	snap := v.Snapshot()
	if snap.OfficerNIF != 2 || len(snap.Entries) != 1 || snap.Entries[0].ID() != 9 {
		t.Errorf("snapshot = %+v, want officer 2 with entry 9", snap)
	}
}

func TestHandleEventIgnoresOtherOfficer(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	v := activity.NewView(f, nil)
	if err := v.Load(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	before := f.hoursCalls.Load()

	err := v.HandleEvent(context.Background(), model.ActivityEvent{OfficerNIF: 2, RecordKind: model.KindHours, Action: model.ActionAdd})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if f.hoursCalls.Load() != before {
		t.Error("event for another officer triggered a fetch")
	}
}

func TestHandleEventIgnoredWhileLoading(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	gate := make(chan struct{})
	f.gates[1] = gate
	v := activity.NewView(f, nil)

	done := make(chan error, 1)
	go func() { done <- v.Load(context.Background(), 1) }()
	waitFor(t, func() bool { return v.Snapshot().Loading })

	if err := v.HandleEvent(context.Background(), model.ActivityEvent{OfficerNIF: 1, RecordKind: model.KindJustification}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := f.justCalls.Load(); got != 1 {
		t.Errorf("justification fetches = %d, want 1", got)
	}
}

func TestHandleEventReplacesOnlyThatKind(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	v := activity.NewView(f, nameEnricher{})
	if err := v.Load(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	var sawLoading bool
	v.OnChange(func(s model.OfficerActivityView) { sawLoading = sawLoading || s.Loading })

	f.set(func() {
		f.justifications[1] = []model.JustificationEntry{
			{ID: 2, Start: 1699000000, End: ptr(1699500000), Status: model.StatusApproved, ManagedBy: 5},
			{ID: 3, Start: 1699900000, Status: model.StatusDenied, ManagedBy: 5},
		}
	})
	hoursBefore := f.hoursCalls.Load()

	ev := model.ActivityEvent{OfficerNIF: 1, RecordKind: model.KindJustification, Action: model.ActionUpdate}
	if err := v.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if f.hoursCalls.Load() != hoursBefore {
		t.Error("justification event re-fetched hours")
	}
	if sawLoading {
		t.Error("incremental refresh toggled the loading flag")
	}

	snap := v.Snapshot()
	var ids []int
	for _, e := range snap.Entries {
		ids = append(ids, e.ID())
	}
	// Open (3) sorts before hours and, having the later start, before the
	// closed justification; hours (week_end 1700000000) beat end 1699500000.
	if want := []int{3, 1, 2}; len(ids) != 3 || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if snap.Entries[2].Justification.ManagedByName != "Chefe Silva" {
		t.Errorf("refreshed justification not enriched: %+v", snap.Entries[2].Justification)
	}
}

func TestConcurrentRefreshesUnion(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	v := activity.NewView(f, nil)
	if err := v.Load(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	f.set(func() {
		f.hours[1] = append(f.hours[1], model.HoursEntry{ID: 4, WeekEnd: 1700600000, Minutes: 30})
		f.justifications[1] = append(f.justifications[1], model.JustificationEntry{ID: 5, Start: 1, End: ptr(2), Status: model.StatusDenied})
	})

	var wg sync.WaitGroup
	for _, kind := range []model.RecordKind{model.KindHours, model.KindJustification} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.HandleEvent(context.Background(), model.ActivityEvent{OfficerNIF: 1, RecordKind: kind, Action: model.ActionAdd}); err != nil {
				t.Errorf("HandleEvent(%s): %v", kind, err)
			}
		}()
	}
	wg.Wait()

	if got := len(v.Snapshot().Entries); got != 4 {
		t.Errorf("entries = %d, want 4", got)
	}
}

func TestStaleRefreshDiscardedAfterSwitch(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	v := activity.NewView(f, nil)
	if err := v.Load(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	f.set(func() { f.gates[1] = gate })
	done := make(chan error, 1)
	go func() {
		done <- v.HandleEvent(context.Background(), model.ActivityEvent{OfficerNIF: 1, RecordKind: model.KindHours})
	}()
	waitFor(t, func() bool { return f.hoursCalls.Load() >= 2 })

	if err := v.Load(context.Background(), 2); err != nil {
		t.Fatalf("Load(2): %v", err)
	}
	close(gate)

	if err := <-done; !errors.Is(err, activity.ErrSuperseded) {
		t.Errorf("HandleEvent = %v, want ErrSuperseded", err)
	}
	if snap := v.Snapshot(); snap.OfficerNIF != 2 || len(snap.Entries) != 0 {
		t.Errorf("snapshot = %+v, want empty officer 2", snap)
	}
}

func TestCloseDropsInFlightLoad(t *testing.T) {
	f := newFakeFetcher()
	officerA(f)
	gate := make(chan struct{})
	f.gates[1] = gate
	v := activity.NewView(f, nil)

	done := make(chan error, 1)
	go func() { done <- v.Load(context.Background(), 1) }()
	waitFor(t, func() bool { return f.hoursCalls.Load() >= 1 })

	v.Close()
	close(gate)
	if err := <-done; !errors.Is(err, activity.ErrSuperseded) {
		t.Errorf("Load = %v, want ErrSuperseded", err)
	}
	if err := v.Load(context.Background(), 1); !errors.Is(err, activity.ErrSuperseded) {
		t.Errorf("Load after Close = %v, want ErrSuperseded", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
