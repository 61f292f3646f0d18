package render

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/Tiliavir/rosterctl/internal/model"
	"github.com/Tiliavir/rosterctl/internal/timecalc"
	"github.com/Tiliavir/rosterctl/internal/timeline"
)

// WeekTotal is the submitted time of one ISO week.
type WeekTotal struct {
	Week    string `json:"week"`
	Monday  string `json:"monday"`
	Minutes int    `json:"minutes"`
}

// Report aggregates an officer's feed.
type Report struct {
	OfficerNIF     int                               `json:"officer_nif"`
	Weeks          []WeekTotal                       `json:"weeks"`
	TotalMinutes   int                               `json:"total_minutes"`
	Justifications map[model.JustificationStatus]int `json:"justifications"`
}

var reportStatuses = []model.JustificationStatus{model.StatusPending, model.StatusApproved, model.StatusDenied}

// Summarize totals hours per ISO week of their start and counts
// justifications by status. Weeks are sorted oldest first.
func Summarize(view model.OfficerActivityView, loc *time.Location) Report {
	r := Report{
		OfficerNIF:     view.OfficerNIF,
		Justifications: map[model.JustificationStatus]int{},
	}
	for _, s := range reportStatuses {
		r.Justifications[s] = 0
	}

	hours, justifications := timeline.Split(view.Entries)
	totals := map[string]int{}
	mondays := map[string]string{}
	for _, h := range hours {
		start := timecalc.Unix(h.WeekStart, loc)
		label := timecalc.ISOWeekLabel(start)
		monday, _ := timecalc.WeekRange(start)
		mondays[label] = monday.Format(timecalc.DateLayout)
		totals[label] += h.Minutes
		r.TotalMinutes += h.Minutes
	}
	for _, j := range justifications {
		r.Justifications[j.Status]++
	}

	for label, minutes := range totals {
		r.Weeks = append(r.Weeks, WeekTotal{Week: label, Monday: mondays[label], Minutes: minutes})
	}
	slices.SortFunc(r.Weeks, func(a, b WeekTotal) int { return strings.Compare(a.Week, b.Week) })
	return r
}

// WriteReport writes r as md, csv or json.
func WriteReport(w io.Writer, format string, r Report) error {
	switch format {
	case FormatJSON:
		return JSON(w, r)
	case FormatCSV:
		var b strings.Builder
		b.WriteString("kind,key,value\n")
		for _, wk := range r.Weeks {
			fmt.Fprintf(&b, "hours,%s,%d\n", csvEscape(wk.Week), wk.Minutes)
		}
		for _, s := range reportStatuses {
			fmt.Fprintf(&b, "justification,%s,%d\n", s, r.Justifications[s])
		}
		_, err := io.WriteString(w, b.String())
		return err
	case FormatMD, "":
		var b strings.Builder
		fmt.Fprintf(&b, "Officer %d\n", r.OfficerNIF)
		b.WriteString("--------------------------------\n")
		for _, wk := range r.Weeks {
			fmt.Fprintf(&b, "%-20s%s\n", wk.Week, timecalc.FormatMinutes(wk.Minutes))
		}
		b.WriteString("--------------------------------\n")
		fmt.Fprintf(&b, "%-20s%s\n", "Total", timecalc.FormatMinutes(r.TotalMinutes))
		b.WriteString("\nJustifications\n")
		for _, s := range reportStatuses {
			fmt.Fprintf(&b, "%-20s%d\n", s, r.Justifications[s])
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	return fmt.Errorf("%w %q (want md, csv or json)", ErrUnknownFormat, format)
}
