package audit

// EventType represents the type of audit event.
type EventType string

const (
	EventSystemStartup    EventType = "SYSTEM_STARTUP"
	EventSystemShutdown   EventType = "SYSTEM_SHUTDOWN"
	EventCommandSucceeded EventType = "COMMAND_SUCCEEDED"
	EventCommandFailed    EventType = "COMMAND_FAILED"
	EventRefreshFailed    EventType = "REFRESH_FAILED"
	EventDeviceRecovered  EventType = "DEVICE_RECOVERED"
)

// validEventTypes is used to validate the type query filter.
var validEventTypes = map[string]bool{
	string(EventSystemStartup):    true,
	string(EventSystemShutdown):   true,
	string(EventCommandSucceeded): true,
	string(EventCommandFailed):    true,
	string(EventRefreshFailed):    true,
	string(EventDeviceRecovered):  true,
}

// IsValidEventType reports whether t is a known event type.
func IsValidEventType(t string) bool {
	return validEventTypes[t]
}

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)
