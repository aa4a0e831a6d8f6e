package audit

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rleusmann/Cambridge-audio-custom/internal/api"
	"github.com/rleusmann/Cambridge-audio-custom/internal/auth"
	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
	"github.com/rleusmann/Cambridge-audio-custom/internal/mediaplayer"
	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// Recorder turns command outcomes and coordinator health transitions into
// audit events. Write failures are logged and never reach the caller.
type Recorder struct {
	service *Service
	logger  *log.Logger

	mu      sync.Mutex
	unitID  string
	failing bool
}

// NewRecorder creates a Recorder writing through service.
func NewRecorder(service *Service, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{service: service, logger: logger}
}

// RecordCommand implements mediaplayer.CommandRecorder.
func (r *Recorder) RecordCommand(ctx context.Context, outcome mediaplayer.CommandOutcome) {
	command := outcome.Command
	input := WriteEventInput{
		Type:    string(EventCommandSucceeded),
		Command: &command,
		Message: fmt.Sprintf("%s succeeded", outcome.Command),
		Payload: map[string]any{
			"duration_ms": outcome.Duration.Milliseconds(),
		},
	}
	for key, value := range outcome.Args {
		input.Payload[key] = value
	}

	if outcome.Err != nil {
		level := EventLevelWarn
		input.Type = string(EventCommandFailed)
		input.Level = &level
		input.Message = fmt.Sprintf("%s failed: %v", outcome.Command, outcome.Err)
	}

	if outcome.UnitID != "" {
		unitID := outcome.UnitID
		input.UnitID = &unitID
	}
	if requestID := api.RequestIDFromContext(ctx); requestID != "" {
		input.RequestID = &requestID
	}
	if client, ok := auth.ClientFromContext(ctx); ok {
		input.Payload["client"] = client.Label()
	}

	r.write(input)
}

// Watch subscribes to c so that the first failed refresh after a healthy
// period and the first success after failures are recorded. Repeated
// failures in a row produce a single event.
func (r *Recorder) Watch(c *coordinator.Coordinator) {
	c.OnCommit(func(snapshot receiver.Snapshot) {
		r.mu.Lock()
		r.unitID = snapshot.Identity.UnitID
		wasFailing := r.failing
		r.failing = false
		r.mu.Unlock()

		if wasFailing {
			unitID := snapshot.Identity.UnitID
			r.write(WriteEventInput{
				Type:    string(EventDeviceRecovered),
				UnitID:  &unitID,
				Message: fmt.Sprintf("%s is reachable again", c.Name()),
			})
		}
	})

	c.OnFailure(func(err error) {
		r.mu.Lock()
		wasFailing := r.failing
		r.failing = true
		unitID := r.unitID
		r.mu.Unlock()

		if wasFailing {
			return
		}
		level := EventLevelError
		input := WriteEventInput{
			Type:    string(EventRefreshFailed),
			Level:   &level,
			Message: err.Error(),
			Payload: map[string]any{"coordinator": c.Name()},
		}
		if unitID != "" {
			input.UnitID = &unitID
		}
		r.write(input)
	})
}

// RecordLifecycle writes a startup or shutdown event.
func (r *Recorder) RecordLifecycle(eventType EventType, message string, payload map[string]any) {
	r.write(WriteEventInput{Type: string(eventType), Message: message, Payload: payload})
}

func (r *Recorder) write(input WriteEventInput) {
	if _, err := r.service.RecordEvent(input); err != nil {
		r.logger.Printf("Failed to write audit event %s: %v", input.Type, err)
	}
}
