package coordinator

import "time"

// State is the lifecycle state of a coordinator.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateReady         State = "READY"
	StateFailed        State = "FAILED"
	StateClosed        State = "CLOSED"
)

// Status summarises refresh health for health checks and availability.
type Status struct {
	Name                string     `json:"name"`
	State               State      `json:"state"`
	HasSnapshot         bool       `json:"has_snapshot"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RefreshCount        int64      `json:"refresh_count"`
	Interval            string     `json:"interval"`
}

// Available reports whether the host should treat the device as online:
// the coordinator is ready and the most recent refresh succeeded.
func (s Status) Available() bool {
	return s.State == StateReady && s.HasSnapshot && s.ConsecutiveFailures == 0
}
