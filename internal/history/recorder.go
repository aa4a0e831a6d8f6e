package history

import (
	"log"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// MeasurementState is the measurement written for every committed snapshot.
const MeasurementState = "receiver_state"

// PointWriter accepts points for asynchronous delivery.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Recorder writes one point per committed snapshot.
type Recorder struct {
	writer PointWriter
	logger *log.Logger
}

// NewRecorder creates a Recorder over writer.
func NewRecorder(writer PointWriter, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{writer: writer, logger: logger}
}

// Attach records every commit of c.
func (r *Recorder) Attach(c *coordinator.Coordinator) {
	c.OnCommit(r.Record)
}

// Record writes the point for snapshot.
func (r *Recorder) Record(snapshot receiver.Snapshot) {
	r.writer.WritePoint(StatePoint(snapshot))
}

// StatePoint builds the receiver_state point for a snapshot. Unknown volume
// is left out of the fields and an unknown source out of the tags.
func StatePoint(snapshot receiver.Snapshot) *write.Point {
	tags := map[string]string{
		"unit_id": snapshot.Identity.UnitID,
	}
	if source, ok := snapshot.CurrentSource(); ok {
		tags["source"] = source.Name
	}

	fields := map[string]interface{}{
		"power": snapshot.Playback.Power,
		"mute":  snapshot.Playback.Mute,
	}
	if snapshot.Playback.VolumePercent != nil {
		fields["volume_percent"] = *snapshot.Playback.VolumePercent
	}

	return write.NewPoint(MeasurementState, tags, fields, snapshot.FetchedAt)
}
