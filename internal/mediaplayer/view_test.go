package mediaplayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

func TestBuildView(t *testing.T) {
	volume := 35
	fetchedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := receiver.NewSnapshot(
		receiver.Identity{UnitID: "unit-9", Name: "Study", Model: "EVO 150"},
		[]receiver.Source{{ID: "SPDIF_COAX", Name: "D1"}, {ID: "AIRPLAY", Name: "AirPlay"}},
		receiver.PlaybackState{Power: true, Mute: true, VolumePercent: &volume, SourceID: "AIRPLAY"},
		fetchedAt,
	)

	view := BuildView(snapshot, true)

	assert.Equal(t, "media_player", view.Object)
	assert.Equal(t, "unit-9", view.UniqueID)
	assert.Equal(t, "Study", view.Name)
	assert.Equal(t, "EVO 150", view.Model)
	assert.Equal(t, "Cambridge Audio", view.Manufacturer)
	assert.Equal(t, StateOn, view.State)
	assert.True(t, view.Available)
	require.NotNil(t, view.Source)
	assert.Equal(t, "AirPlay", *view.Source)
	assert.Equal(t, []string{"D1", "AirPlay"}, view.SourceList)
	require.NotNil(t, view.VolumeLevel)
	assert.InDelta(t, 0.35, *view.VolumeLevel, 1e-9)
	assert.True(t, view.IsVolumeMuted)
	assert.Equal(t, 3468, view.SupportedFeatures)
	assert.Equal(t, "mdi:audio-video", view.Icon)
	assert.Equal(t, fetchedAt, view.UpdatedAt)
}

func TestBuildViewUnknownValues(t *testing.T) {
	snapshot := receiver.NewSnapshot(
		receiver.Identity{UnitID: "unit-9"},
		[]receiver.Source{{ID: "A1", Name: "Radio"}},
		receiver.PlaybackState{SourceID: "MEDIA_PLAYER"},
		time.Now(),
	)

	view := BuildView(snapshot, false)

	assert.Equal(t, StateOff, view.State)
	assert.False(t, view.Available)
	assert.Nil(t, view.Source, "an identifier without a matching source is not reported")
	assert.Nil(t, view.VolumeLevel)
}
