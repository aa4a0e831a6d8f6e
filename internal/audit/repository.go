package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// AuditEvent represents a single audit event.
type AuditEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Level     EventLevel     `json:"level"`
	RequestID *string        `json:"request_id,omitempty"`
	UnitID    *string        `json:"unit_id,omitempty"`
	Command   *string        `json:"command,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new audit event.
type WriteEventInput struct {
	Type      string
	Level     *EventLevel
	RequestID *string
	UnitID    *string
	Command   *string
	Message   string
	Payload   map[string]any
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	Type      *string
	Level     *EventLevel
	StartDate *time.Time
	EndDate   *time.Time
	UnitID    *string
	Command   *string
	Limit     int
	Offset    int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for audit events.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new audit Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// InsertEvent writes a new audit event. Level defaults to INFO.
func (r *Repository) InsertEvent(input WriteEventInput) (*AuditEvent, error) {
	eventID := uuid.New().String()
	timestamp := formatTimestamp(time.Now())

	level := EventLevelInfo
	if input.Level != nil {
		level = *input.Level
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO audit_events (event_id, timestamp, type, level, request_id, unit_id, command, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, timestamp, input.Type, string(level), input.RequestID, input.UnitID, input.Command, input.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}

	return r.getEvent(r.writer, eventID)
}

// GetEvent retrieves a single event by ID.
// Returns nil, nil if not found.
func (r *Repository) GetEvent(eventID string) (*AuditEvent, error) {
	return r.getEvent(r.reader, eventID)
}

func (r *Repository) getEvent(conn *sql.DB, eventID string) (*AuditEvent, error) {
	row := conn.QueryRow(`
		SELECT event_id, timestamp, type, level, request_id, unit_id, command, message, payload
		FROM audit_events
		WHERE event_id = ?
	`, eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// QueryEvents retrieves events matching filters, newest first, along with
// the total number of matches.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM audit_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query := `
		SELECT event_id, timestamp, type, level, request_id, unit_id, command, message, payload
		FROM audit_events
		` + whereClause + `
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`
	queryArgs := append(args, limit, filters.Offset)

	rows, err := r.reader.Query(query, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// PruneOldEvents deletes events older than retentionDays.
// Returns number of rows deleted.
func (r *Repository) PruneOldEvents(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return r.PruneBefore(cutoff)
}

// PruneBefore deletes events older than cutoff.
func (r *Repository) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`DELETE FROM audit_events WHERE timestamp < ?`, formatTimestamp(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildWhereClause(filters EventQueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filters.Type)
	}
	if filters.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filters.Level))
	}
	if filters.UnitID != nil {
		conditions = append(conditions, "unit_id = ?")
		args = append(args, *filters.UnitID)
	}
	if filters.Command != nil {
		conditions = append(conditions, "command = ?")
		args = append(args, *filters.Command)
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTimestamp(*filters.StartDate))
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, formatTimestamp(*filters.EndDate))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*AuditEvent, error) {
	var event AuditEvent
	var timestamp, level, payloadJSON string
	var requestID, unitID, command sql.NullString

	err := row.Scan(
		&event.EventID,
		&timestamp,
		&event.Type,
		&level,
		&requestID,
		&unitID,
		&command,
		&event.Message,
		&payloadJSON,
	)
	if err != nil {
		return nil, err
	}

	event.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		event.Timestamp, _ = time.Parse("2006-01-02 15:04:05", timestamp)
	}
	event.Level = EventLevel(level)

	if requestID.Valid {
		event.RequestID = &requestID.String
	}
	if unitID.Valid {
		event.UnitID = &unitID.String
	}
	if command.Valid {
		event.Command = &command.String
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}
	return &event, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
