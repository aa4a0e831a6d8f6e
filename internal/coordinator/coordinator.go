package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// DefaultInterval is how often the receiver is polled once ready.
const DefaultInterval = 30 * time.Second

// DeviceClient is the vendor client owned by a coordinator. Fetches are used
// by the coordinator itself; mutations are issued by the control adapter.
type DeviceClient interface {
	GetInfo(ctx context.Context) (receiver.Identity, error)
	GetSources(ctx context.Context) ([]receiver.Source, error)
	GetState(ctx context.Context) (receiver.PlaybackState, error)
	SetPower(ctx context.Context, on bool) error
	SetMute(ctx context.Context, on bool) error
	SetVolumePercent(ctx context.Context, percent int) error
	VolumeStepUp(ctx context.Context) error
	VolumeStepDown(ctx context.Context) error
	SetSource(ctx context.Context, sourceID string) error
	Close() error
}

// Options configures a Coordinator.
type Options struct {
	Name     string
	Interval time.Duration
	Logger   *log.Logger
}

// Coordinator keeps one receiver's Snapshot fresh. Refreshes are
// single-flight: while one runs, later callers queue behind it and share one
// follow-up run.
type Coordinator struct {
	name     string
	client   DeviceClient
	logger   *log.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	stateMu             sync.RWMutex
	state               State
	snapshot            *receiver.Snapshot
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastErr             error
	consecutiveFailures int
	refreshCount        int64

	refreshMu       sync.Mutex
	refreshInFlight bool
	refreshWaiters  []chan error

	observerMu       sync.RWMutex
	commitObservers  []func(receiver.Snapshot)
	failureObservers []func(error)

	scheduleMu sync.Mutex
	scheduler  *cron.Cron
	closeOnce  sync.Once
}

// New creates a coordinator that owns client. Nothing talks to the device
// until Initialize.
func New(client DeviceClient, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	name := opts.Name
	if name == "" {
		name = "cambridge_audio"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		name:     name,
		client:   client,
		logger:   logger,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateUninitialized,
	}
}

// Name identifies the coordinator in logs and errors.
func (c *Coordinator) Name() string {
	return c.name
}

// Interval returns the polling interval.
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Client returns the device client owned by the coordinator.
func (c *Coordinator) Client() DeviceClient {
	return c.client
}

// OnCommit registers fn to run after every committed snapshot. Observers run
// on the refresh goroutine and must not block.
func (c *Coordinator) OnCommit(fn func(receiver.Snapshot)) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.commitObservers = append(c.commitObservers, fn)
}

// OnFailure registers fn to run after every failed refresh.
func (c *Coordinator) OnFailure(fn func(error)) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.failureObservers = append(c.failureObservers, fn)
}

// Initialize performs the first refresh and, on success, starts the
// periodic schedule. A failure is terminal for this coordinator.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.stateMu.RLock()
	state := c.state
	c.stateMu.RUnlock()

	switch state {
	case StateReady:
		return ErrAlreadyInitialized
	case StateFailed:
		return ErrFailed
	case StateClosed:
		return ErrClosed
	}

	if err := c.Refresh(ctx); err != nil {
		c.stateMu.Lock()
		if c.state == StateUninitialized {
			c.state = StateFailed
		}
		c.stateMu.Unlock()

		var unavailable *UnavailableError
		if !errors.As(err, &unavailable) && !errors.Is(err, ErrClosed) {
			err = &UnavailableError{Name: c.name, Err: err}
		}
		c.logger.Printf("Initial refresh of %s failed: %v", c.name, err)
		return err
	}

	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return ErrClosed
	}
	c.state = StateReady
	c.stateMu.Unlock()

	c.startSchedule()
	return nil
}

// Refresh fetches identity, sources and playback state and commits them as
// one snapshot. On failure the previous snapshot is kept and an
// *UnavailableError is returned. If ctx ends while waiting the caller gets
// ctx.Err(); the refresh itself still completes.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}

	done := make(chan error, 1)

	c.refreshMu.Lock()
	if c.refreshInFlight {
		c.refreshWaiters = append(c.refreshWaiters, done)
	} else {
		c.refreshInFlight = true
		go c.refreshLoop([]chan error{done})
	}
	c.refreshMu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refreshLoop runs refreshes until nobody is waiting. Callers that arrive
// during a run are collected into a single batch for the next run, so the
// backlog never exceeds one pending refresh.
func (c *Coordinator) refreshLoop(waiters []chan error) {
	for len(waiters) > 0 {
		err := c.refreshOnce()
		for _, ch := range waiters {
			ch <- err
		}

		c.refreshMu.Lock()
		waiters = c.refreshWaiters
		c.refreshWaiters = nil
		if len(waiters) == 0 {
			c.refreshInFlight = false
		}
		c.refreshMu.Unlock()
	}
}

func (c *Coordinator) refreshOnce() error {
	start := time.Now()
	snapshot, err := c.fetch(c.ctx)
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	if err != nil {
		unavailable := &UnavailableError{Name: c.name, Err: err}
		c.recordFailure(unavailable)
		c.notifyFailure(unavailable)
		return unavailable
	}

	c.commit(snapshot)
	c.logger.Printf("[DEBUG] Refreshed %s in %s (power=%t source=%q)",
		c.name, time.Since(start).Round(time.Millisecond), snapshot.Playback.Power, snapshot.Playback.SourceID)
	c.notifyCommit(snapshot)
	return nil
}

func (c *Coordinator) fetch(ctx context.Context) (receiver.Snapshot, error) {
	identity, err := c.client.GetInfo(ctx)
	if err != nil {
		return receiver.Snapshot{}, fmt.Errorf("fetch identity: %w", err)
	}
	sources, err := c.client.GetSources(ctx)
	if err != nil {
		return receiver.Snapshot{}, fmt.Errorf("fetch sources: %w", err)
	}
	playback, err := c.client.GetState(ctx)
	if err != nil {
		return receiver.Snapshot{}, fmt.Errorf("fetch state: %w", err)
	}
	return receiver.NewSnapshot(identity, sources, playback, time.Now().UTC()), nil
}

func (c *Coordinator) commit(snapshot receiver.Snapshot) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.consecutiveFailures > 0 {
		c.logger.Printf("%s recovered after %d failed refreshes", c.name, c.consecutiveFailures)
	}
	c.snapshot = &snapshot
	c.lastSuccessAt = snapshot.FetchedAt
	c.lastErr = nil
	c.consecutiveFailures = 0
	c.refreshCount++
}

func (c *Coordinator) recordFailure(err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.consecutiveFailures == 0 && c.snapshot != nil {
		c.logger.Printf("[WARN] %s became unavailable, keeping snapshot from %s",
			c.name, c.snapshot.FetchedAt.Format(time.RFC3339))
	}
	c.lastFailureAt = time.Now().UTC()
	c.lastErr = err
	c.consecutiveFailures++
	c.refreshCount++
}

func (c *Coordinator) notifyCommit(snapshot receiver.Snapshot) {
	c.observerMu.RLock()
	observers := append([]func(receiver.Snapshot){}, c.commitObservers...)
	c.observerMu.RUnlock()

	for _, fn := range observers {
		fn(snapshot.Clone())
	}
}

func (c *Coordinator) notifyFailure(err error) {
	c.observerMu.RLock()
	observers := append([]func(error){}, c.failureObservers...)
	c.observerMu.RUnlock()

	for _, fn := range observers {
		fn(err)
	}
}

// Snapshot returns a copy of the last committed snapshot.
func (c *Coordinator) Snapshot() (receiver.Snapshot, error) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	if c.state == StateClosed {
		return receiver.Snapshot{}, ErrClosed
	}
	if c.snapshot == nil {
		return receiver.Snapshot{}, ErrNotReady
	}
	return c.snapshot.Clone(), nil
}

// Status reports lifecycle and refresh health.
func (c *Coordinator) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	status := Status{
		Name:                c.name,
		State:               c.state,
		HasSnapshot:         c.snapshot != nil,
		ConsecutiveFailures: c.consecutiveFailures,
		RefreshCount:        c.refreshCount,
		Interval:            c.interval.String(),
	}
	if !c.lastSuccessAt.IsZero() {
		at := c.lastSuccessAt
		status.LastSuccessAt = &at
	}
	if !c.lastFailureAt.IsZero() {
		at := c.lastFailureAt
		status.LastFailureAt = &at
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

func (c *Coordinator) usable() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	switch c.state {
	case StateFailed:
		return ErrFailed
	case StateClosed:
		return ErrClosed
	}
	return nil
}

func (c *Coordinator) startSchedule() {
	c.scheduleMu.Lock()
	defer c.scheduleMu.Unlock()

	if c.scheduler != nil {
		return
	}

	logger := cron.PrintfLogger(c.logger)
	c.scheduler = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.scheduler.Schedule(cron.Every(c.interval), cron.FuncJob(c.scheduledRefresh))
	c.scheduler.Start()

	c.logger.Printf("Starting periodic refresh of %s interval=%s", c.name, c.interval)
}

// scheduledRefresh never propagates: failures are logged and the schedule
// keeps firing at the same interval.
func (c *Coordinator) scheduledRefresh() {
	if err := c.Refresh(c.ctx); err != nil {
		if c.ctx.Err() != nil || errors.Is(err, ErrClosed) {
			return
		}
		c.logger.Printf("Scheduled refresh of %s failed: %v", c.name, err)
	}
}

// Close stops the schedule, abandons any in-flight refresh and releases the
// device client. Safe to call more than once.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		c.scheduleMu.Lock()
		if c.scheduler != nil {
			c.scheduler.Stop()
		}
		c.scheduleMu.Unlock()

		c.stateMu.Lock()
		c.state = StateClosed
		c.snapshot = nil
		c.stateMu.Unlock()

		if c.client != nil {
			err = c.client.Close()
		}
		c.logger.Printf("Coordinator %s closed", c.name)
	})
	return err
}
