package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rleusmann/Cambridge-audio-custom/internal/api"
	"github.com/rleusmann/Cambridge-audio-custom/internal/apperrors"
)

var validEventLevels = map[string]EventLevel{
	"DEBUG": EventLevelDebug,
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

// RegisterRoutes wires audit routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/audit/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/audit/events/{event_id}", api.Handler(getEvent(service)))
}

// queryEvents retrieves audit events with optional filters.
// GET /v1/audit/events
func queryEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query audit events")
		}

		formatted := make([]map[string]any, 0, len(events))
		for i := range events {
			formatted = append(formatted, formatEvent(&events[i]))
		}
		return api.WriteList(w, "/v1/audit/events", formatted, hasMore)
	}
}

// getEvent retrieves a single audit event by ID.
// GET /v1/audit/events/{event_id}
func getEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(eventID)
		if err != nil {
			var notFoundErr *EventNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewAppError(apperrors.ErrorCodeEventNotFound, "Event not found", http.StatusNotFound, map[string]any{
					"event_id": eventID,
				})
			}
			return apperrors.NewInternalError("Failed to get audit event")
		}

		return api.WriteResource(w, http.StatusOK, formatEvent(event))
	}
}

func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{Limit: DefaultQueryLimit}
	query := r.URL.Query()

	for _, bound := range []struct {
		key  string
		dest **time.Time
	}{
		{"from", &filters.StartDate},
		{"to", &filters.EndDate},
	} {
		value := query.Get(bound.key)
		if value == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid '"+bound.key+"' datetime format, expected ISO 8601", map[string]any{bound.key: value})
		}
		*bound.dest = &parsed
	}

	if eventType := query.Get("type"); eventType != "" {
		if !IsValidEventType(eventType) {
			return filters, apperrors.NewValidationError("invalid event type", map[string]any{"type": eventType})
		}
		filters.Type = &eventType
	}

	if level := query.Get("level"); level != "" {
		parsedLevel, ok := validEventLevels[level]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        level,
				"valid_levels": []string{"DEBUG", "INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &parsedLevel
	}

	if unitID := query.Get("unit_id"); unitID != "" {
		filters.UnitID = &unitID
	}
	if command := query.Get("command"); command != "" {
		filters.Command = &command
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": limitStr,
			})
		}
		filters.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{
				"offset": offsetStr,
			})
		}
		filters.Offset = offset
	}

	return filters, nil
}

func formatEvent(event *AuditEvent) map[string]any {
	result := map[string]any{
		"object":    "audit_event",
		"event_id":  event.EventID,
		"timestamp": event.Timestamp.UTC().Format(time.RFC3339Nano),
		"type":      event.Type,
		"level":     string(event.Level),
		"message":   event.Message,
	}
	if event.RequestID != nil {
		result["request_id"] = *event.RequestID
	}
	if event.UnitID != nil {
		result["unit_id"] = *event.UnitID
	}
	if event.Command != nil {
		result["command"] = *event.Command
	}
	if len(event.Payload) > 0 {
		result["payload"] = event.Payload
	}
	return result
}
