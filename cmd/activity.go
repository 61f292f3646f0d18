package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/model"
	"github.com/Tiliavir/rosterctl/internal/render"
	"github.com/Tiliavir/rosterctl/internal/storage"
)

var (
	activityFormat  string
	activityOffline bool
)

var activityCmd = &cobra.Command{
	Use:   "activity <nif>",
	Short: "Show an officer's hours and justifications",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivity,
}

func init() {
	activityCmd.Flags().StringVar(&activityFormat, "format", render.FormatCards, "Output format: cards, md, csv, json")
	activityCmd.Flags().BoolVar(&activityOffline, "offline", false, "Show the last cached feed without contacting the backend")
}

func runActivity(cmd *cobra.Command, args []string) error {
	nif, err := parseID("NIF", args[0])
	if err != nil {
		fail(exitFailure, err)
	}

	view := cachedOrLoad(nif, activityOffline)
	if err := render.View(os.Stdout, activityFormat, view, time.Local); err != nil {
		if errors.Is(err, render.ErrUnknownFormat) {
			fail(exitFailure, err)
		}
		fail(exitStorage, err)
	}
	return nil
}

func cachedOrLoad(nif int, offline bool) model.OfficerActivityView {
	if offline {
		return cachedView(nif)
	}
	return loadView(nif)
}

// loadView fetches and caches the feed of nif. When the backend cannot be
// reached the cached copy is shown instead, if there is one.
func loadView(nif int) model.OfficerActivityView {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, _ := newClient(ctx)
	v := newView(client)
	defer v.Close()

	if err := v.Load(ctx, nif); err != nil {
		if cached, cacheErr := storage.LoadSnapshot(baseDir(), nif); cacheErr == nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\nShowing cached activity from %s.\n",
				err, time.Unix(cached.FetchedAt, 0).Format("2006-01-02 15:04"))
			return cached
		}
		fail(exitFailure, err)
	}

	snap := v.Snapshot()
	if err := storage.SaveSnapshot(baseDir(), snap); err != nil {
		logging.Warn().Err(err).Int("nif", nif).Msg("could not cache activity")
	}
	return snap
}

func cachedView(nif int) model.OfficerActivityView {
	view, err := storage.LoadSnapshot(baseDir(), nif)
	if errors.Is(err, storage.ErrNoSnapshot) {
		fail(exitFailure, fmt.Errorf("no cached activity for officer %d; run without --offline first", nif))
	}
	if err != nil {
		fail(exitStorage, err)
	}
	return view
}
