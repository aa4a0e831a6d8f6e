package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rleusmann/Cambridge-audio-custom/internal/api"
	"github.com/rleusmann/Cambridge-audio-custom/internal/auth"
	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
	"github.com/rleusmann/Cambridge-audio-custom/internal/mediaplayer"
	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

const defaultCommandTimeout = 15 * time.Second

// Transport is the broker side of the bridge. *Client implements it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Command is the JSON accepted on the set topic.
type Command struct {
	Command string   `json:"command"`
	Level   *float64 `json:"level,omitempty"`
	Muted   *bool    `json:"muted,omitempty"`
	Source  string   `json:"source,omitempty"`
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Prefix         string
	UnitID         string
	QoS            int
	CommandTimeout time.Duration
	Logger         *log.Logger
}

// Bridge mirrors the host view to MQTT and feeds commands from the set
// topic into the player.
type Bridge struct {
	transport Transport
	player    *mediaplayer.Player
	topics    Topics
	qos       byte
	timeout   time.Duration
	logger    *log.Logger

	mu           sync.Mutex
	availability string

	inflight sync.WaitGroup
}

// NewBridge creates a bridge for one receiver.
func NewBridge(transport Transport, player *mediaplayer.Player, opts BridgeOptions) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Bridge{
		transport: transport,
		player:    player,
		topics:    Topics{Prefix: opts.Prefix, UnitID: opts.UnitID},
		qos:       byte(opts.QoS),
		timeout:   timeout,
		logger:    logger,
	}
}

// Topics returns the topics this bridge uses.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Start subscribes to the set topic and publishes the current view.
func (b *Bridge) Start() error {
	if err := b.transport.Subscribe(b.topics.Set(), b.qos, b.dispatch); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topics.Set(), err)
	}

	view, err := b.player.View()
	if err != nil {
		b.publishAvailability(PayloadOffline)
		return nil
	}
	b.publishView(view)
	if view.Available {
		b.publishAvailability(PayloadOnline)
	} else {
		b.publishAvailability(PayloadOffline)
	}
	return nil
}

// Attach publishes state on every commit and availability transitions on
// every commit or failure of c.
func (b *Bridge) Attach(c *coordinator.Coordinator) {
	c.OnCommit(func(snapshot receiver.Snapshot) {
		b.publishView(mediaplayer.BuildView(snapshot, true))
		b.publishAvailability(PayloadOnline)
	})
	c.OnFailure(func(error) {
		b.publishAvailability(PayloadOffline)
	})
}

// Stop waits for running commands, then publishes offline ahead of a
// graceful disconnect.
func (b *Bridge) Stop() {
	b.inflight.Wait()
	b.publishAvailability(PayloadOffline)
}

// dispatch runs the command off the broker's delivery goroutine. A command
// refreshes the coordinator, whose observers publish and wait for the
// broker's acknowledgement; that ack is read on the same goroutine that
// delivers messages.
func (b *Bridge) dispatch(topic string, payload []byte) error {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		if err := b.HandleCommand(topic, payload); err != nil {
			b.logger.Printf("[WARN] MQTT command on %s failed: %v", topic, err)
		}
	}()
	return nil
}

// HandleCommand decodes one set-topic message and runs it against the
// player.
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	ctx := auth.WithClient(api.WithRequestID(context.Background(), api.NewRequestID()), auth.MQTTClient)
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.logger.Printf("[DEBUG] MQTT command %s on %s", cmd.Command, topic)
	switch cmd.Command {
	case mediaplayer.CommandTurnOn:
		return b.player.TurnOn(ctx)
	case mediaplayer.CommandTurnOff:
		return b.player.TurnOff(ctx)
	case mediaplayer.CommandVolumeUp:
		return b.player.VolumeUp(ctx)
	case mediaplayer.CommandVolumeDown:
		return b.player.VolumeDown(ctx)
	case mediaplayer.CommandSetVolume:
		if cmd.Level == nil {
			return fmt.Errorf("%w: level is required", ErrInvalidCommand)
		}
		return b.player.SetVolumeLevel(ctx, *cmd.Level)
	case mediaplayer.CommandMute:
		if cmd.Muted == nil {
			return fmt.Errorf("%w: muted is required", ErrInvalidCommand)
		}
		return b.player.MuteVolume(ctx, *cmd.Muted)
	case mediaplayer.CommandSelectSource:
		if cmd.Source == "" {
			return fmt.Errorf("%w: source is required", ErrInvalidCommand)
		}
		return b.player.SelectSource(ctx, cmd.Source)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
}

func (b *Bridge) publishView(view mediaplayer.View) {
	data, err := json.Marshal(view)
	if err != nil {
		b.logger.Printf("Failed to marshal view for MQTT: %v", err)
		return
	}
	if err := b.transport.Publish(b.topics.State(), data, b.qos, true); err != nil {
		b.logger.Printf("[WARN] Failed to publish %s: %v", b.topics.State(), err)
	}
}

// publishAvailability publishes only on a change of value.
func (b *Bridge) publishAvailability(value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.availability == value {
		return
	}
	if err := b.transport.Publish(b.topics.Availability(), []byte(value), b.qos, true); err != nil {
		b.logger.Printf("[WARN] Failed to publish %s: %v", b.topics.Availability(), err)
		return
	}
	b.availability = value
}
