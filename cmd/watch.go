package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/rosterctl/internal/activity"
	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/model"
	"github.com/Tiliavir/rosterctl/internal/render"
	"github.com/Tiliavir/rosterctl/internal/storage"
)

var (
	watchFormat      string
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch <nif>",
	Short: "Show an officer's activity and keep it current from the live channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchFormat, "format", render.FormatCards, "Output format: cards, md")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
}

func runWatch(cmd *cobra.Command, args []string) error {
	nif, err := parseID("NIF", args[0])
	if err != nil {
		fail(exitFailure, err)
	}
	if watchFormat != render.FormatCards && watchFormat != render.FormatMD {
		fail(exitFailure, fmt.Errorf("%w %q (want cards or md)", render.ErrUnknownFormat, watchFormat))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if watchMetricsAddr != "" {
		srv = serveMetrics(watchMetricsAddr)
	}

	client, ts := newClient(ctx)
	v := newView(client)
	base := baseDir()

	v.OnChange(func(snap model.OfficerActivityView) {
		if snap.State == model.StateLoading {
			return
		}
		fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
		if err := render.View(os.Stdout, watchFormat, snap, time.Local); err != nil {
			logging.Error().Err(err).Msg("rendering activity failed")
		}
		if snap.State == model.StateReady {
			if err := storage.SaveSnapshot(base, snap); err != nil {
				logging.Warn().Err(err).Int("nif", nif).Msg("could not cache activity")
			}
		}
	})

	if err := v.Load(ctx, nif); err != nil {
		fail(exitFailure, err)
	}

	var refreshes sync.WaitGroup
	sub := newSubscriber(ts, func(ev model.ActivityEvent) {
		refreshes.Add(1)
		go func() {
			defer refreshes.Done()
			err := v.HandleEvent(ctx, ev)
			if err != nil && !errors.Is(err, activity.ErrSuperseded) && ctx.Err() == nil {
				logging.Warn().Err(err).Int("nif", ev.OfficerNIF).Str("kind", string(ev.RecordKind)).Msg("live refresh failed")
			}
		}()
	})
	if err := sub.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: live updates unavailable: %v\n", err)
	} else {
		fmt.Fprintln(os.Stderr, "Watching for changes. Press Ctrl+C to stop.")
	}

	<-ctx.Done()
	sub.Close()
	v.Close()
	refreshes.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return srv
}
