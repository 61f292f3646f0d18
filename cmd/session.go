package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/Tiliavir/rosterctl/internal/activity"
	"github.com/Tiliavir/rosterctl/internal/config"
	"github.com/Tiliavir/rosterctl/internal/enrich"
	"github.com/Tiliavir/rosterctl/internal/live"
	"github.com/Tiliavir/rosterctl/internal/roster"
)

// Exit codes: 1 for usage, sign-in and backend failures, 2 for local
// storage failures.
const (
	exitFailure = 1
	exitStorage = 2
)

func fail(code int, err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(code)
}

// parseID parses a positive numeric argument such as a NIF or patrol id.
func parseID(what, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive number", what, arg)
	}
	return n, nil
}

func baseDir() string {
	base, err := config.BaseDir()
	if err != nil {
		fail(exitStorage, err)
	}
	return base
}

// newClient builds an authenticated API client, exiting when the user has
// not signed in.
func newClient(ctx context.Context) (*roster.Client, oauth2.TokenSource) {
	ts, err := roster.TokenSource(ctx, baseDir(), cfg)
	if errors.Is(err, roster.ErrNotSignedIn) {
		fail(exitFailure, fmt.Errorf("%w; run `rosterctl login` first", err))
	}
	if err != nil {
		fail(exitStorage, err)
	}
	return roster.NewAuthenticatedClient(ctx, cfg.API.BaseURL, ts, cfg.API.Timeout), ts
}

func newView(client *roster.Client) *activity.View {
	enricher := enrich.New(client, enrich.Options{
		DefaultRank:   cfg.Force.DefaultRank,
		Concurrency:   cfg.Enrich.Concurrency,
		RatePerSecond: cfg.Enrich.RatePerSecond,
	})
	return activity.NewView(client, enricher)
}

func newSubscriber(ts oauth2.TokenSource, handler live.Handler) *live.Subscriber {
	token := func() (string, error) { return roster.BearerToken(ts) }
	return live.NewSubscriber(cfg.LiveURL(), token, handler)
}
