package system

import (
	"database/sql"
	"log"
	"runtime"
	"time"

	"github.com/rleusmann/Cambridge-audio-custom/internal/audit"
	"github.com/rleusmann/Cambridge-audio-custom/internal/config"
	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
)

// Version is the hub version, set at build time or defaulted.
var Version = "1.0.0"

// failedCommandWindow is how far back failed commands raise an attention item.
const failedCommandWindow = 24 * time.Hour

// StatusProvider reports coordinator health.
type StatusProvider interface {
	Status() coordinator.Status
}

// ClientCounter reports connected stream clients.
type ClientCounter interface {
	ClientCount() int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service reports hub and receiver health.
// Uses the reader connection only.
type Service struct {
	cfg       config.Config
	logger    *log.Logger
	reader    *sql.DB
	receiver  StatusProvider
	clients   ClientCounter
	audit     *audit.Service
	startTime time.Time
}

// NewService creates a new system service. clients and auditService may be
// nil.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger, receiver StatusProvider, clients ClientCounter, auditService *audit.Service) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		reader:    dbPair.Reader(),
		receiver:  receiver,
		clients:   clients,
		audit:     auditService,
		startTime: time.Now(),
	}
}

// SystemInfo holds hub information.
type SystemInfo struct {
	HubVersion        string             `json:"hub_version"`
	Uptime            int64              `json:"uptime_seconds"`
	MemoryUsageMB     float64            `json:"memory_mb"`
	SQLiteConnected   bool               `json:"sqlite_connected"`
	AuditHealthy      bool               `json:"audit_healthy"`
	Receiver          coordinator.Status `json:"receiver"`
	ReceiverAvailable bool               `json:"receiver_available"`
	WebSocketClients  int                `json:"websocket_clients"`
	MQTTEnabled       bool               `json:"mqtt_enabled"`
	InfluxDBEnabled   bool               `json:"influxdb_enabled"`
	AttentionItems    []AttentionItem    `json:"attention_items"`
}

// AttentionItem represents an item that needs user attention.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// GetSystemInfo returns current hub information.
func (s *Service) GetSystemInfo() (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sqliteConnected := s.reader.Ping() == nil
	status := s.receiver.Status()

	info := &SystemInfo{
		HubVersion:        Version,
		Uptime:            int64(time.Since(s.startTime).Seconds()),
		MemoryUsageMB:     float64(memStats.Alloc) / 1024 / 1024,
		SQLiteConnected:   sqliteConnected,
		AuditHealthy:      s.audit == nil || s.audit.IsHealthy(),
		Receiver:          status,
		ReceiverAvailable: status.Available(),
		MQTTEnabled:       s.cfg.MQTT.Enabled,
		InfluxDBEnabled:   s.cfg.InfluxDB.Enabled,
	}
	if s.clients != nil {
		info.WebSocketClients = s.clients.ClientCount()
	}
	info.AttentionItems = s.checkAttentionItems(status, sqliteConnected)
	return info, nil
}

// checkAttentionItems checks for items that need user attention.
func (s *Service) checkAttentionItems(status coordinator.Status, sqliteConnected bool) []AttentionItem {
	items := []AttentionItem{}

	if !status.Available() {
		details := map[string]any{
			"coordinator":          status.Name,
			"state":                status.State,
			"consecutive_failures": status.ConsecutiveFailures,
		}
		if status.LastError != "" {
			details["last_error"] = status.LastError
		}
		items = append(items, AttentionItem{
			Type:        "receiver_unavailable",
			Severity:    "warning",
			Message:     "The receiver is not responding",
			Details:     details,
			ResolveHint: "Check receiver power and network connectivity",
		})
	}

	if s.audit != nil {
		failedType := string(audit.EventCommandFailed)
		since := time.Now().Add(-failedCommandWindow)
		_, failedCount, _, err := s.audit.QueryEvents(audit.EventQueryFilters{
			Type:      &failedType,
			StartDate: &since,
			Limit:     1,
		})
		if err != nil {
			s.logger.Printf("[WARN] Failed to count failed commands: %v", err)
		} else if failedCount > 0 {
			items = append(items, AttentionItem{
				Type:     "failed_commands",
				Severity: "error",
				Message:  "Some commands failed to reach the receiver",
				Details: map[string]any{
					"failed_count": failedCount,
					"time_window":  "24 hours",
				},
				ResolveHint: "Review the audit log for details",
			})
		}
	}

	if !sqliteConnected {
		items = append(items, AttentionItem{
			Type:        "database_unhealthy",
			Severity:    "critical",
			Message:     "Database connection is unhealthy",
			ResolveHint: "Check database file permissions and disk space",
		})
	}

	return items
}
