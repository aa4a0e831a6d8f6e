package mediaplayer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// Command names, also used in audit events and MQTT payloads.
const (
	CommandTurnOn       = "turn_on"
	CommandTurnOff      = "turn_off"
	CommandSetVolume    = "volume_set"
	CommandVolumeUp     = "volume_up"
	CommandVolumeDown   = "volume_down"
	CommandMute         = "volume_mute"
	CommandSelectSource = "select_source"
)

// StateSource is the read and refresh side of a coordinator.
type StateSource interface {
	Name() string
	Snapshot() (receiver.Snapshot, error)
	Refresh(ctx context.Context) error
}

// Controller issues mutations to the device.
type Controller interface {
	SetPower(ctx context.Context, on bool) error
	SetMute(ctx context.Context, on bool) error
	SetVolumePercent(ctx context.Context, percent int) error
	VolumeStepUp(ctx context.Context) error
	VolumeStepDown(ctx context.Context) error
	SetSource(ctx context.Context, sourceID string) error
}

// CommandOutcome describes one finished command.
type CommandOutcome struct {
	Command  string
	Args     map[string]any
	UnitID   string
	Err      error
	Duration time.Duration
}

// CommandRecorder receives every command outcome.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, outcome CommandOutcome)
}

// Options configures a Player.
type Options struct {
	Logger   *log.Logger
	Recorder CommandRecorder
}

// Player translates host commands into device calls. Every command, whether
// it succeeds or not, is followed by a coordinator refresh before it
// returns.
type Player struct {
	state    StateSource
	control  Controller
	logger   *log.Logger
	recorder CommandRecorder
}

// New creates a Player over a coordinator and the device control interface.
func New(state StateSource, control Controller, opts Options) *Player {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Player{
		state:    state,
		control:  control,
		logger:   logger,
		recorder: opts.Recorder,
	}
}

// SetRecorder replaces the command recorder.
func (p *Player) SetRecorder(recorder CommandRecorder) {
	p.recorder = recorder
}

// TurnOn powers the receiver on.
func (p *Player) TurnOn(ctx context.Context) error {
	return p.run(ctx, CommandTurnOn, nil, func(ctx context.Context) error {
		return p.mutate(CommandTurnOn, func() error { return p.control.SetPower(ctx, true) })
	})
}

// TurnOff puts the receiver into network standby.
func (p *Player) TurnOff(ctx context.Context) error {
	return p.run(ctx, CommandTurnOff, nil, func(ctx context.Context) error {
		return p.mutate(CommandTurnOff, func() error { return p.control.SetPower(ctx, false) })
	})
}

// SetVolumeLevel sets the volume from a fraction in [0, 1].
func (p *Player) SetVolumeLevel(ctx context.Context, level float64) error {
	args := map[string]any{"level": level}
	return p.run(ctx, CommandSetVolume, args, func(ctx context.Context) error {
		percent, err := LevelToPercent(level)
		if err != nil {
			return err
		}
		return p.mutate(CommandSetVolume, func() error { return p.control.SetVolumePercent(ctx, percent) })
	})
}

// VolumeUp raises the volume by one device step.
func (p *Player) VolumeUp(ctx context.Context) error {
	return p.run(ctx, CommandVolumeUp, nil, func(ctx context.Context) error {
		return p.mutate(CommandVolumeUp, func() error { return p.control.VolumeStepUp(ctx) })
	})
}

// VolumeDown lowers the volume by one device step.
func (p *Player) VolumeDown(ctx context.Context) error {
	return p.run(ctx, CommandVolumeDown, nil, func(ctx context.Context) error {
		return p.mutate(CommandVolumeDown, func() error { return p.control.VolumeStepDown(ctx) })
	})
}

// MuteVolume mutes or unmutes the receiver.
func (p *Player) MuteVolume(ctx context.Context, muted bool) error {
	args := map[string]any{"muted": muted}
	return p.run(ctx, CommandMute, args, func(ctx context.Context) error {
		return p.mutate(CommandMute, func() error { return p.control.SetMute(ctx, muted) })
	})
}

// SelectSource switches input by display name. The name is resolved to the
// source identifier through the current snapshot.
func (p *Player) SelectSource(ctx context.Context, name string) error {
	args := map[string]any{"source": name}
	return p.run(ctx, CommandSelectSource, args, func(ctx context.Context) error {
		snapshot, err := p.state.Snapshot()
		if err != nil {
			return err
		}
		source, ok := snapshot.SourceByName(name)
		if !ok {
			return &UnknownSourceError{Name: name, Available: snapshot.SourceNames()}
		}
		return p.mutate(CommandSelectSource, func() error { return p.control.SetSource(ctx, source.ID) })
	})
}

// LevelToPercent converts a [0, 1] volume fraction to the device's integer
// percentage, rounding to nearest.
func LevelToPercent(level float64) (int, error) {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidVolume, level)
	}
	return int(math.Round(level * 100)), nil
}

// PercentToLevel converts a device percentage to a [0, 1] fraction.
func PercentToLevel(percent int) float64 {
	return float64(percent) / 100
}

func (p *Player) run(ctx context.Context, command string, args map[string]any, body func(ctx context.Context) error) (err error) {
	start := time.Now()

	defer func() {
		refreshErr := p.state.Refresh(ctx)
		if refreshErr != nil {
			p.logger.Printf("Refresh after %s on %s failed: %v", command, p.state.Name(), refreshErr)
		}

		var failed *CommandFailedError
		switch {
		case errors.As(err, &failed):
			failed.RefreshErr = refreshErr
		case err == nil:
			err = refreshErr
		}

		p.record(ctx, command, args, err, time.Since(start))
	}()

	p.logger.Printf("[DEBUG] %s: %s %v", p.state.Name(), command, args)
	return body(ctx)
}

func (p *Player) mutate(command string, call func() error) error {
	if err := call(); err != nil {
		return &CommandFailedError{Command: command, Err: err}
	}
	return nil
}

func (p *Player) record(ctx context.Context, command string, args map[string]any, err error, elapsed time.Duration) {
	if p.recorder == nil {
		return
	}
	outcome := CommandOutcome{
		Command:  command,
		Args:     args,
		Err:      err,
		Duration: elapsed,
	}
	if snapshot, snapErr := p.state.Snapshot(); snapErr == nil {
		outcome.UnitID = snapshot.Identity.UnitID
	}
	p.recorder.RecordCommand(ctx, outcome)
}
