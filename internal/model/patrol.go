package model

import "time"

// Patrol is a patrol session being logged by one or more officers. It is
// sent whole on update, so empty fields are encoded to clear them.
type Patrol struct {
	ID       int    `json:"id"`
	Officers []int  `json:"officers"`
	Vehicle  string `json:"vehicle"`
	Notes    string `json:"notes"`
	Start    int64  `json:"start"`
	End      *int64 `json:"end"`
}

// Duration returns how long the patrol lasted, or has lasted so far when it
// is still open.
func (p Patrol) Duration(now time.Time) time.Duration {
	end := now.Unix()
	if p.End != nil {
		end = *p.End
	}
	if end < p.Start {
		return 0
	}
	return time.Duration(end-p.Start) * time.Second
}
