package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/rosterctl/internal/render"
)

var (
	reportFormat  string
	reportOffline bool
)

var reportCmd = &cobra.Command{
	Use:   "report <nif>",
	Short: "Show hours per week and justification counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", render.FormatMD, "Output format: md, csv, json")
	reportCmd.Flags().BoolVar(&reportOffline, "offline", false, "Report on the last cached feed")
}

func runReport(cmd *cobra.Command, args []string) error {
	nif, err := parseID("NIF", args[0])
	if err != nil {
		fail(exitFailure, err)
	}

	view := cachedOrLoad(nif, reportOffline)
	r := render.Summarize(view, time.Local)
	if err := render.WriteReport(os.Stdout, reportFormat, r); err != nil {
		if errors.Is(err, render.ErrUnknownFormat) {
			fail(exitFailure, err)
		}
		fail(exitStorage, err)
	}
	return nil
}
