package audit

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Default configuration values
const (
	DefaultRetentionDays   = 90
	DefaultPruneInterval   = 24 * time.Hour
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	RetentionDays int
	PruneInterval time.Duration
	Logger        *log.Logger
}

// Service provides audit log management functionality.
type Service struct {
	logger              *log.Logger
	repo                *Repository
	retentionDays       int
	pruneInterval       time.Duration
	stopCh              chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// NewService creates a new audit service over the reader/writer pair.
func NewService(dbPair DBPair, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	retention := opts.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	interval := opts.PruneInterval
	if interval <= 0 {
		interval = DefaultPruneInterval
	}

	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retention,
		pruneInterval: interval,
		stopCh:        make(chan struct{}),
		healthy:       true,
	}
}

// RecordEvent writes a new audit event.
func (s *Service) RecordEvent(input WriteEventInput) (*AuditEvent, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	s.logger.Printf("[DEBUG] Recording audit event: type=%s level=%s message=%s",
		input.Type, *input.Level, input.Message)

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record audit event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// QueryEvents retrieves events with filters and pagination.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query audit events: %w", err)
	}

	s.recordSuccess()
	hasMore := filters.Offset+len(events) < total
	return events, total, hasMore, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*AuditEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}

	s.recordSuccess()
	return event, nil
}

// StartPruneJob starts the background prune job.
// Runs immediately on start, then at pruneInterval.
func (s *Service) StartPruneJob() {
	s.logger.Printf("Starting audit prune job (interval: %v, retention: %d days)",
		s.pruneInterval, s.retentionDays)

	s.wg.Add(1)
	go s.runPruneLoop()
}

// StopPruneJob stops the background prune job.
func (s *Service) StopPruneJob() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Printf("Audit prune job stopped")
	})
}

func (s *Service) runPruneLoop() {
	defer s.wg.Done()

	s.pruneAndLog()

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pruneAndLog()
		}
	}
}

func (s *Service) pruneAndLog() {
	if count, err := s.Prune(); err != nil {
		s.logger.Printf("Error pruning audit events: %v", err)
	} else if count > 0 {
		s.logger.Printf("Pruned %d audit events", count)
	}
}

// Prune deletes events past the retention window and returns how many.
func (s *Service) Prune() (int64, error) {
	count, err := s.repo.PruneOldEvents(s.retentionDays)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy reports false after MaxConsecutiveFailures database errors in a row.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an audit event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("audit event not found: %s", e.EventID)
}
