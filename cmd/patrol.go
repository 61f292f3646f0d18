package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/rosterctl/internal/logging"
	"github.com/Tiliavir/rosterctl/internal/model"
	"github.com/Tiliavir/rosterctl/internal/timecalc"
)

var patrolCmd = &cobra.Command{
	Use:   "patrol",
	Short: "Patrol sessions",
}

var patrolEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Append notes to a patrol from stdin, saving automatically",
	Long: `Reads note lines from stdin and appends them to the patrol's notes.
Changes are saved once typing pauses; changes made elsewhere are shown as
they arrive. End input with Ctrl+D to save and exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runPatrolEdit,
}

func init() {
	patrolCmd.AddCommand(patrolEditCmd)
}

func runPatrolEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID("patrol id", args[0])
	if err != nil {
		fail(exitFailure, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, ts := newClient(ctx)
	patrol, err := client.Patrol(ctx, id)
	if err != nil {
		fail(exitFailure, err)
	}
	fmt.Println(patrolHeader(patrol, time.Now()))

	session := newPatrolSession(patrol, client.UpdatePatrol, cfg.Autosave.Delay)
	saver := session.saver
	saver.OnSaved(func(saved model.Patrol, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Not saved: %v\n", err)
			return
		}
		fmt.Printf("Saved (%s).\n", timecalc.FormatDurationHHMMSS(int64(saved.Duration(time.Now()).Seconds())))
	})

	sub := newSubscriber(ts, func(ev model.ActivityEvent) {
		if !saver.Apply(ev) {
			return
		}
		remote, err := client.Patrol(ctx, id)
		if err != nil {
			logging.Warn().Err(err).Int("patrol", id).Msg("could not fetch remote patrol change")
			return
		}
		session.rebase(remote)
		fmt.Printf("Patrol changed elsewhere:\n%s\n", patrolHeader(remote, time.Now()))
	})
	if err := sub.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: live updates unavailable: %v\n", err)
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			session.append(line)
		}
	}

	sub.Close()
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()
	err = saver.Flush(flushCtx)
	saver.Close()
	if err != nil {
		fail(exitFailure, err)
	}
	return nil
}

// appendNote adds line as a new line of notes. Blank lines are ignored.
func appendNote(notes, line string) string {
	line = strings.TrimRight(line, "\r\n ")
	if strings.TrimSpace(line) == "" {
		return notes
	}
	if notes == "" {
		return line
	}
	return strings.TrimRight(notes, "\n") + "\n" + line
}

func patrolHeader(p model.Patrol, now time.Time) string {
	status := "ongoing"
	if p.End != nil {
		status = "ended"
	}
	vehicle := p.Vehicle
	if vehicle == "" {
		vehicle = "-"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Patrol #%d  %s  %s (%s)\n", p.ID, vehicle, timecalc.FormatDurationHHMMSS(int64(p.Duration(now).Seconds())), status)
	fmt.Fprintf(&b, "Officers: %s", joinInts(p.Officers))
	if p.Notes != "" {
		fmt.Fprintf(&b, "\n%s", p.Notes)
	}
	return b.String()
}

func joinInts(ns []int) string {
	if len(ns) == 0 {
		return "-"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		logging.Warn().Err(err).Msg("reading stdin")
	}
}
