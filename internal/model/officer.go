package model

import "strings"

// Officer is the roster profile returned by GET /officers/{nif}.
type Officer struct {
	NIF      int    `json:"nif"`
	Name     string `json:"name"`
	Rank     string `json:"rank"`
	Callsign string `json:"callsign,omitempty"`
}

// DisplayName is the rank followed by the officer's name.
func (o Officer) DisplayName() string {
	return strings.TrimSpace(o.Rank + " " + o.Name)
}
