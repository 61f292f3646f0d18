package model

// Action is what happened to a record reported on the live channel.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ActivityEvent is one message from the live-update channel.
type ActivityEvent struct {
	OfficerNIF int        `json:"officer_nif"`
	RecordKind RecordKind `json:"record_kind"`
	Action     Action     `json:"action"`
	// Actor identifies the client session that caused the change, if known.
	Actor    string `json:"actor,omitempty"`
	PatrolID int    `json:"patrol_id,omitempty"`
}

// Activity reports whether the event concerns an officer's activity records.
func (e ActivityEvent) Activity() bool {
	return e.RecordKind == KindHours || e.RecordKind == KindJustification
}
