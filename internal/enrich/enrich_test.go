package enrich_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tiliavir/rosterctl/internal/enrich"
	"github.com/Tiliavir/rosterctl/internal/model"
)

type fakeLookup struct {
	mu       sync.Mutex
	officers map[int]model.Officer
	calls    map[int]int
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeLookup) Officer(ctx context.Context, nif int) (model.Officer, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[int]int{}
	}
	f.calls[nif]++
	o, ok := f.officers[nif]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.Officer{}, ctx.Err()
		}
	}
	if !ok {
		return model.Officer{}, errors.New("officer lookup failed")
	}
	return o, nil
}

func justification(id int, status model.JustificationStatus, managedBy int) model.JustificationEntry {
	end := int64(200)
	return model.JustificationEntry{ID: id, Start: 100, End: &end, Status: status, ManagedBy: model.ManagerRef(managedBy)}
}

func TestEnrichResilience(t *testing.T) {
	lookup := &fakeLookup{officers: map[int]model.Officer{
		10: {NIF: 10, Name: "Silva", Rank: "Chefe"},
		11: {NIF: 11, Name: "Costa", Rank: "Subchefe"},
		12: {NIF: 12, Name: "Sousa", Rank: "Agente"},
		13: {NIF: 13, Name: "Lopes", Rank: "Comissário"},
	}}
	in := []model.JustificationEntry{
		justification(1, model.StatusApproved, 10),
		justification(2, model.StatusDenied, 11),
		justification(3, model.StatusApproved, 99), // lookup fails
		justification(4, model.StatusApproved, 12),
		justification(5, model.StatusDenied, 13),
	}
	e := enrich.New(lookup, enrich.Options{DefaultRank: "Agente", Concurrency: 4})

	got, err := e.Enrich(context.Background(), in)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	want := []string{"Chefe Silva", "Subchefe Costa", "Agente Desconhecido", "Agente Sousa", "Comissário Lopes"}
	for i, w := range want {
		if got[i].ManagedByName != w {
			t.Errorf("entry %d name = %q, want %q", got[i].ID, got[i].ManagedByName, w)
		}
	}
	if in[0].ManagedByName != "" {
		t.Error("Enrich mutated its input")
	}
}

func TestEnrichSkipsPending(t *testing.T) {
	lookup := &fakeLookup{}
	in := []model.JustificationEntry{justification(1, model.StatusPending, 0)}
	e := enrich.New(lookup, enrich.Options{DefaultRank: "Agente"})

	got, err := e.Enrich(context.Background(), in)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got[0].ManagedByName != "" {
		t.Errorf("pending name = %q, want empty", got[0].ManagedByName)
	}
	if len(lookup.calls) != 0 {
		t.Errorf("lookups = %v, want none", lookup.calls)
	}
}

func TestEnrichLooksUpEachModeratorOnce(t *testing.T) {
	lookup := &fakeLookup{officers: map[int]model.Officer{10: {Name: "Silva", Rank: "Chefe"}}}
	in := []model.JustificationEntry{
		justification(1, model.StatusApproved, 10),
		justification(2, model.StatusDenied, 10),
		justification(3, model.StatusApproved, 10),
	}
	e := enrich.New(lookup, enrich.Options{Concurrency: 2})

	if _, err := e.Enrich(context.Background(), in); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if lookup.calls[10] != 1 {
		t.Errorf("lookups for 10 = %d, want 1", lookup.calls[10])
	}
}

func TestEnrichRespectsConcurrency(t *testing.T) {
	lookup := &fakeLookup{officers: map[int]model.Officer{}, delay: 20 * time.Millisecond}
	var in []model.JustificationEntry
	for i := 1; i <= 8; i++ {
		lookup.officers[i] = model.Officer{NIF: i, Name: "X"}
		in = append(in, justification(i, model.StatusApproved, i))
	}
	e := enrich.New(lookup, enrich.Options{Concurrency: 3})

	if _, err := e.Enrich(context.Background(), in); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if p := lookup.peak.Load(); p > 3 || p < 2 {
		t.Errorf("peak concurrency = %d, want 2..3", p)
	}
}

func TestEnrichCanceled(t *testing.T) {
	lookup := &fakeLookup{officers: map[int]model.Officer{10: {Name: "Silva"}}, delay: time.Second}
	e := enrich.New(lookup, enrich.Options{Concurrency: 2})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := e.Enrich(ctx, []model.JustificationEntry{justification(1, model.StatusApproved, 10)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPlaceholder(t *testing.T) {
	if got := enrich.Placeholder("Agente"); got != "Agente Desconhecido" {
		t.Errorf("Placeholder = %q", got)
	}
	if got := enrich.Placeholder(""); got != "Desconhecido" {
		t.Errorf("Placeholder(empty) = %q", got)
	}
}
