// Package enrich resolves the moderator of each justification into a
// display name.
package enrich

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/metrics"
	"github.com/Tiliavir/rosterctl/internal/model"
)

// OfficerLookup fetches an officer profile by NIF.
type OfficerLookup interface {
	Officer(ctx context.Context, nif int) (model.Officer, error)
}

// Options tunes an Enricher.
type Options struct {
	// DefaultRank prefixes the placeholder name used when a lookup fails.
	DefaultRank string
	// Concurrency caps parallel lookups. Values below 1 mean 1.
	Concurrency int
	// RatePerSecond paces lookups. Zero disables pacing.
	RatePerSecond float64
}

// Enricher fills JustificationEntry.ManagedByName.
type Enricher struct {
	lookup      OfficerLookup
	placeholder string
	concurrency int
	limiter     *rate.Limiter
}

// New creates an Enricher.
func New(lookup OfficerLookup, opts Options) *Enricher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Concurrency)
	}
	return &Enricher{
		lookup:      lookup,
		placeholder: Placeholder(opts.DefaultRank),
		concurrency: opts.Concurrency,
		limiter:     limiter,
	}
}

// Placeholder is the name shown for a moderator that cannot be resolved.
func Placeholder(defaultRank string) string {
	if defaultRank == "" {
		return "Desconhecido"
	}
	return defaultRank + " Desconhecido"
}

// Enrich returns a copy of justifications with ManagedByName set on every
// entry that is not pending. Lookups run concurrently and every one of them
// settles before Enrich returns; a failed lookup only affects its own entries.
// The only error returned is ctx's.
func (e *Enricher) Enrich(ctx context.Context, justifications []model.JustificationEntry) ([]model.JustificationEntry, error) {
	out := make([]model.JustificationEntry, len(justifications))
	copy(out, justifications)

	wanted := map[model.ManagerRef]struct{}{}
	for _, j := range out {
		if j.Status != model.StatusPending {
			wanted[j.ManagedBy] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	names := make(map[model.ManagerRef]string, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for ref := range wanted {
		g.Go(func() error {
			name, err := e.resolve(gctx, ref)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.EnrichmentFallbacks.Inc()
				logging.Debug().Err(err).Int("nif", int(ref)).Msg("moderator lookup failed, using placeholder")
				name = e.placeholder
			}
			mu.Lock()
			names[ref] = name
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Status != model.StatusPending {
			out[i].ManagedByName = names[out[i].ManagedBy]
		}
	}
	return out, nil
}

func (e *Enricher) resolve(ctx context.Context, ref model.ManagerRef) (string, error) {
	if !ref.Set() {
		return e.placeholder, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}
	officer, err := e.lookup.Officer(ctx, int(ref))
	if err != nil {
		return "", err
	}
	return officer.DisplayName(), nil
}
