// Package render prints activity feeds and reports.
package render

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/Tiliavir/rosterctl/internal/model"
	"github.com/Tiliavir/rosterctl/internal/timecalc"
)

// Output formats.
const (
	FormatCards = "cards"
	FormatMD    = "md"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// ErrUnknownFormat is returned for a format name no writer handles.
var ErrUnknownFormat = errors.New("unknown output format")

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Padding(0, 1).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

	badgeColors = map[string]lipgloss.Color{
		"hours":                      lipgloss.Color("39"),
		string(model.StatusPending):  lipgloss.Color("214"),
		string(model.StatusApproved): lipgloss.Color("42"),
		string(model.StatusDenied):   lipgloss.Color("196"),
	}
)

// View writes view in the given format.
func View(w io.Writer, format string, view model.OfficerActivityView, loc *time.Location) error {
	switch format {
	case FormatCards, "":
		return Cards(w, view, loc)
	case FormatMD:
		return Markdown(w, view, loc)
	case FormatCSV:
		return CSV(w, view.Entries, loc)
	case FormatJSON:
		return JSON(w, view)
	}
	return fmt.Errorf("%w %q (want cards, md, csv or json)", ErrUnknownFormat, format)
}

func badge(label string) string {
	return badgeStyle.Background(badgeColors[label]).Render(strings.ToUpper(label))
}

// Cards draws one bordered card per entry.
func Cards(w io.Writer, view model.OfficerActivityView, loc *time.Location) error {
	header := headerStyle.Render(fmt.Sprintf("Officer %d", view.OfficerNIF))
	if view.Loading {
		header += " " + mutedStyle.Render("loading...")
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if len(view.Entries) == 0 && !view.Loading {
		_, err := fmt.Fprintln(w, "No activity found.")
		return err
	}
	for _, e := range view.Entries {
		if _, err := fmt.Fprintln(w, card(e, loc)); err != nil {
			return err
		}
	}
	return nil
}

func card(e model.TimelineEntry, loc *time.Location) string {
	var lines []string
	switch e.Kind {
	case model.KindHours:
		h := e.Hours
		end := h.WeekEnd
		lines = append(lines,
			badge("hours")+" "+mutedStyle.Render(fmt.Sprintf("#%d", h.ID)),
			timecalc.FormatPeriod(h.WeekStart, &end, loc),
			timecalc.FormatMinutes(h.Minutes),
		)
	case model.KindJustification:
		j := e.Justification
		lines = append(lines,
			badge(string(j.Status))+" "+mutedStyle.Render(fmt.Sprintf("#%d", j.ID)),
			timecalc.FormatPeriod(j.Start, j.End, loc),
		)
		if j.Status != model.StatusPending {
			lines = append(lines, "Moderated by "+moderator(*j))
		}
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}

func moderator(j model.JustificationEntry) string {
	if j.ManagedByName != "" {
		return j.ManagedByName
	}
	if j.ManagedBy.Set() {
		return strconv.Itoa(int(j.ManagedBy))
	}
	return "-"
}

// Markdown writes a plain list, one line per entry.
func Markdown(w io.Writer, view model.OfficerActivityView, loc *time.Location) error {
	if len(view.Entries) == 0 {
		_, err := fmt.Fprintln(w, "No activity found.")
		return err
	}
	if _, err := fmt.Fprintf(w, "## Officer %d\n\n", view.OfficerNIF); err != nil {
		return err
	}
	for _, e := range view.Entries {
		var line string
		switch e.Kind {
		case model.KindHours:
			h := e.Hours
			end := h.WeekEnd
			line = fmt.Sprintf("- **hours** %s  %s", timecalc.FormatPeriod(h.WeekStart, &end, loc), timecalc.FormatMinutes(h.Minutes))
		case model.KindJustification:
			j := e.Justification
			line = fmt.Sprintf("- **%s** %s", j.Status, timecalc.FormatPeriod(j.Start, j.End, loc))
			if j.Status != model.StatusPending {
				line += "  (" + moderator(*j) + ")"
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// CSV writes entries in timeline order.
func CSV(w io.Writer, entries []model.TimelineEntry, loc *time.Location) error {
	if _, err := fmt.Fprintln(w, "kind,id,start,end,minutes,status,moderator"); err != nil {
		return err
	}
	for _, e := range entries {
		var row []string
		switch e.Kind {
		case model.KindHours:
			h := e.Hours
			row = []string{"hours", strconv.Itoa(h.ID), timecalc.FormatDate(h.WeekStart, loc), timecalc.FormatDate(h.WeekEnd, loc), strconv.Itoa(h.Minutes), "", ""}
		case model.KindJustification:
			j := e.Justification
			end := ""
			if j.End != nil {
				end = timecalc.FormatDate(*j.End, loc)
			}
			mod := ""
			if j.Status != model.StatusPending {
				mod = moderator(*j)
			}
			row = []string{"justification", strconv.Itoa(j.ID), timecalc.FormatDate(j.Start, loc), end, "", string(j.Status), mod}
		default:
			continue
		}
		for i := range row {
			row[i] = csvEscape(row[i])
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, ",")); err != nil {
			return err
		}
	}
	return nil
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
