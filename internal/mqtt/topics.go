package mqtt

import "fmt"

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds the topic names for one receiver under a prefix.
//
//	<prefix>/<unit_id>/state         retained host view JSON
//	<prefix>/<unit_id>/availability  retained online/offline, offline is the LWT
//	<prefix>/<unit_id>/set           command JSON
type Topics struct {
	Prefix string
	UnitID string
}

// State returns the retained state topic.
func (t Topics) State() string {
	return fmt.Sprintf("%s/%s/state", t.Prefix, t.UnitID)
}

// Availability returns the retained availability topic.
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/%s/availability", t.Prefix, t.UnitID)
}

// Set returns the command topic.
func (t Topics) Set() string {
	return fmt.Sprintf("%s/%s/set", t.Prefix, t.UnitID)
}

// Will returns the retained offline message the broker publishes when the
// connection drops.
func (t Topics) Will() Will {
	return Will{Topic: t.Availability(), Payload: PayloadOffline}
}
