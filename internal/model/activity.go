package model

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// RecordKind names a class of records that the live channel reports on.
type RecordKind string

const (
	KindHours         RecordKind = "hours"
	KindJustification RecordKind = "justification"
	KindPatrol        RecordKind = "patrol"
)

// JustificationStatus is the moderation state of a justification.
type JustificationStatus string

const (
	StatusPending  JustificationStatus = "pending"
	StatusApproved JustificationStatus = "approved"
	StatusDenied   JustificationStatus = "denied"
)

// HoursEntry is one submitted weekly-hours record for an officer.
// Timestamps are Unix seconds.
type HoursEntry struct {
	ID          int   `json:"id"`
	WeekStart   int64 `json:"week_start"`
	WeekEnd     int64 `json:"week_end"`
	Minutes     int   `json:"minutes"`
	SubmittedBy int   `json:"submitted_by"`
}

// JustificationEntry is a claim of inactivity for a date range.
// End is nil while the justification is open-ended.
type JustificationEntry struct {
	ID        int                 `json:"id"`
	Type      int                 `json:"type"`
	Start     int64               `json:"start"`
	End       *int64              `json:"end"`
	Status    JustificationStatus `json:"status"`
	Timestamp int64               `json:"timestamp"`
	ManagedBy ManagerRef          `json:"managed_by"`

	// ManagedByName is filled in client-side once the moderator is resolved.
	ManagedByName string `json:"managed_by_name,omitempty"`
}

// Open reports whether the justification has no declared end.
func (j JustificationEntry) Open() bool { return j.End == nil }

// Denied reports whether the justification was rejected.
func (j JustificationEntry) Denied() bool { return j.Status == StatusDenied }

// ManagerRef is the moderating officer's NIF. The backend sends an empty
// string while the justification is pending and a number afterwards.
type ManagerRef int

// Set reports whether a moderator is recorded.
func (m ManagerRef) Set() bool { return m != 0 }

func (m *ManagerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*m = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return fmt.Errorf("managed_by %q is not an officer id", s)
		}
		*m = ManagerRef(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("managed_by: %w", err)
	}
	*m = ManagerRef(n)
	return nil
}

func (m ManagerRef) MarshalJSON() ([]byte, error) {
	if m == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(int(m))
}

// TimelineEntry is either an hours entry or a justification. Exactly one of
// Hours and Justification is set, matching Kind.
type TimelineEntry struct {
	Kind          RecordKind
	Hours         *HoursEntry
	Justification *JustificationEntry
}

// HoursItem wraps h as a timeline entry.
func HoursItem(h HoursEntry) TimelineEntry {
	return TimelineEntry{Kind: KindHours, Hours: &h}
}

// JustificationItem wraps j as a timeline entry.
func JustificationItem(j JustificationEntry) TimelineEntry {
	return TimelineEntry{Kind: KindJustification, Justification: &j}
}

// ID returns the id of the underlying record.
func (e TimelineEntry) ID() int {
	switch e.Kind {
	case KindHours:
		return e.Hours.ID
	case KindJustification:
		return e.Justification.ID
	}
	return 0
}

func (e TimelineEntry) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindHours:
		return json.Marshal(e.Hours)
	case KindJustification:
		return json.Marshal(e.Justification)
	}
	return nil, fmt.Errorf("timeline entry has unknown kind %q", e.Kind)
}

// UnmarshalJSON decodes either record shape. The presence of "minutes"
// marks an hours entry.
func (e *TimelineEntry) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["minutes"]; ok {
		var h HoursEntry
		if err := json.Unmarshal(data, &h); err != nil {
			return err
		}
		*e = HoursItem(h)
		return nil
	}
	var j JustificationEntry
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*e = JustificationItem(j)
	return nil
}

// ViewState is the lifecycle of an officer activity view.
type ViewState string

const (
	StateIdle    ViewState = "idle"
	StateLoading ViewState = "loading"
	StateReady   ViewState = "ready"
)

// OfficerActivityView is the ordered activity feed for one officer.
type OfficerActivityView struct {
	OfficerNIF int             `json:"officer_nif"`
	Entries    []TimelineEntry `json:"entries"`
	Loading    bool            `json:"loading"`
	State      ViewState       `json:"state"`
	FetchedAt  int64           `json:"fetched_at,omitempty"`
}
