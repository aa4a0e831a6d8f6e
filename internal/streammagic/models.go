package streammagic

import (
	"encoding/json"

	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// envelope wraps every smoip response.
type envelope struct {
	Code    int             `json:"code"`
	Zone    string          `json:"zone,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type infoPayload struct {
	Name       string `json:"name"`
	UnitID     string `json:"unit_id"`
	Model      string `json:"model"`
	UDN        string `json:"udn"`
	APIVersion string `json:"api"`
}

type sourcesPayload struct {
	Sources []sourcePayload `json:"sources"`
}

type sourcePayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DefaultName  string `json:"default_name"`
	UISelectable bool   `json:"ui_selectable"`
}

type statePayload struct {
	Source        string `json:"source"`
	Power         bool   `json:"power"`
	Mute          bool   `json:"mute"`
	VolumePercent *int   `json:"volume_percent"`
	VolumeStep    *int   `json:"volume_step"`
}

func (p infoPayload) toIdentity(fallbackName, fallbackModel string) receiver.Identity {
	identity := receiver.Identity{
		UnitID: p.UnitID,
		Name:   p.Name,
		Model:  p.Model,
	}
	if identity.UnitID == "" {
		identity.UnitID = p.UDN
	}
	if fallbackName != "" {
		identity.Name = fallbackName
	}
	if identity.Model == "" {
		identity.Model = fallbackModel
	}
	return identity
}

func (p sourcesPayload) toSources() []receiver.Source {
	sources := make([]receiver.Source, 0, len(p.Sources))
	for _, source := range p.Sources {
		name := source.Name
		if name == "" {
			name = source.DefaultName
		}
		sources = append(sources, receiver.Source{ID: source.ID, Name: name})
	}
	return sources
}

func (p statePayload) toPlayback() receiver.PlaybackState {
	playback := receiver.PlaybackState{
		Power:    p.Power,
		Mute:     p.Mute,
		SourceID: p.Source,
	}
	if p.VolumePercent != nil {
		volume := clampPercent(*p.VolumePercent)
		playback.VolumePercent = &volume
	}
	return playback
}

func clampPercent(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
