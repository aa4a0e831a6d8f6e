package receiver

import "time"

// Manufacturer is reported for every StreamMagic device.
const Manufacturer = "Cambridge Audio"

// Identity describes the receiver itself. UnitID is the stable key.
type Identity struct {
	UnitID string `json:"unit_id"`
	Name   string `json:"name"`
	Model  string `json:"model"`
}

// Source is one selectable input. ID is device-assigned and stable,
// Name is what a user sees.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlaybackState is the mutable part of the receiver, refreshed every cycle.
type PlaybackState struct {
	Power         bool   `json:"power"`
	Mute          bool   `json:"mute"`
	VolumePercent *int   `json:"volume_percent,omitempty"` // 0-100, nil when the device cannot report it
	SourceID      string `json:"source,omitempty"`         // empty when no source is active
}

// Snapshot is the unit cached by the coordinator. It is built once per
// successful refresh and never modified afterwards.
type Snapshot struct {
	Identity  Identity      `json:"identity"`
	Sources   []Source      `json:"sources"`
	Playback  PlaybackState `json:"playback"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// NewSnapshot assembles a snapshot from the three fetch results. The source
// slice and volume pointer are copied so later changes by the caller do not
// leak into the snapshot.
func NewSnapshot(identity Identity, sources []Source, playback PlaybackState, fetchedAt time.Time) Snapshot {
	snapshot := Snapshot{
		Identity:  identity,
		Sources:   append([]Source{}, sources...),
		Playback:  playback,
		FetchedAt: fetchedAt,
	}
	if playback.VolumePercent != nil {
		volume := *playback.VolumePercent
		snapshot.Playback.VolumePercent = &volume
	}
	return snapshot
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(s.Identity, s.Sources, s.Playback, s.FetchedAt)
}
