package mediaplayer

import (
	"context"
	"time"

	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// Icon is the host icon for the receiver entity.
const Icon = "mdi:audio-video"

// Host feature flags advertised by the receiver entity.
const (
	FeatureVolumeSet    = 4
	FeatureVolumeMute   = 8
	FeatureTurnOn       = 128
	FeatureTurnOff      = 256
	FeatureVolumeStep   = 1024
	FeatureSelectSource = 2048

	SupportedFeatures = FeatureSelectSource | FeatureVolumeSet | FeatureVolumeMute |
		FeatureVolumeStep | FeatureTurnOff | FeatureTurnOn
)

// Player states.
const (
	StateOn  = "on"
	StateOff = "off"
)

// View is the host-visible representation of a snapshot.
type View struct {
	Object            string    `json:"object"`
	UniqueID          string    `json:"unique_id"`
	Name              string    `json:"name"`
	Model             string    `json:"model"`
	Manufacturer      string    `json:"manufacturer"`
	State             string    `json:"state"`
	Available         bool      `json:"available"`
	Source            *string   `json:"source"`
	SourceList        []string  `json:"source_list"`
	VolumeLevel       *float64  `json:"volume_level"`
	IsVolumeMuted     bool      `json:"is_volume_muted"`
	SupportedFeatures int       `json:"supported_features"`
	Icon              string    `json:"icon"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BuildView derives the host view from a snapshot. The current source is
// reported by display name; an identifier with no matching source is
// reported as no source.
func BuildView(snapshot receiver.Snapshot, available bool) View {
	view := View{
		Object:            "media_player",
		UniqueID:          snapshot.Identity.UnitID,
		Name:              snapshot.Identity.Name,
		Model:             snapshot.Identity.Model,
		Manufacturer:      receiver.Manufacturer,
		State:             StateOff,
		Available:         available,
		SourceList:        snapshot.SourceNames(),
		IsVolumeMuted:     snapshot.Playback.Mute,
		SupportedFeatures: SupportedFeatures,
		Icon:              Icon,
		UpdatedAt:         snapshot.FetchedAt,
	}
	if snapshot.Playback.Power {
		view.State = StateOn
	}
	if source, ok := snapshot.CurrentSource(); ok {
		name := source.Name
		view.Source = &name
	}
	if level, ok := snapshot.VolumeLevel(); ok {
		view.VolumeLevel = &level
	}
	return view
}

type statusReporter interface {
	Status() coordinator.Status
}

// View returns the host view of the current snapshot.
func (p *Player) View() (View, error) {
	snapshot, err := p.state.Snapshot()
	if err != nil {
		return View{}, err
	}
	available := true
	if reporter, ok := p.state.(statusReporter); ok {
		available = reporter.Status().Available()
	}
	return BuildView(snapshot, available), nil
}

// Snapshot returns the raw snapshot backing the view.
func (p *Player) Snapshot() (receiver.Snapshot, error) {
	return p.state.Snapshot()
}

// Refresh forces a coordinator refresh.
func (p *Player) Refresh(ctx context.Context) error {
	return p.state.Refresh(ctx)
}
