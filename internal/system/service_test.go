package system

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/rleusmann/Cambridge-audio-custom/internal/audit"
	"github.com/rleusmann/Cambridge-audio-custom/internal/config"
	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
	"github.com/rleusmann/Cambridge-audio-custom/internal/db"
)

type fakeStatus struct {
	status coordinator.Status
}

func (f *fakeStatus) Status() coordinator.Status { return f.status }

type fakeClients int

func (f fakeClients) ClientCount() int { return int(f) }

func readyStatus() coordinator.Status {
	now := time.Now().UTC()
	return coordinator.Status{
		Name:          "cambridge_audio_10.0.0.5",
		State:         coordinator.StateReady,
		HasSnapshot:   true,
		LastSuccessAt: &now,
		RefreshCount:  3,
		Interval:      "30s",
	}
}

func setupService(t *testing.T, status coordinator.Status) (*Service, *audit.Service) {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	logger := log.New(io.Discard, "", 0)
	auditService := audit.NewService(dbPair, audit.ServiceOptions{Logger: logger})
	cfg := config.Default()
	cfg.MQTT.Enabled = true

	return NewService(cfg, dbPair, logger, &fakeStatus{status: status}, fakeClients(2), auditService), auditService
}

func TestGetSystemInfo_Healthy(t *testing.T) {
	service, _ := setupService(t, readyStatus())

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.Equal(t, Version, info.HubVersion)
	require.True(t, info.SQLiteConnected)
	require.True(t, info.AuditHealthy)
	require.True(t, info.ReceiverAvailable)
	require.Equal(t, 2, info.WebSocketClients)
	require.True(t, info.MQTTEnabled)
	require.False(t, info.InfluxDBEnabled)
	require.Empty(t, info.AttentionItems)
}

func TestGetSystemInfo_ReceiverUnavailable(t *testing.T) {
	status := readyStatus()
	status.ConsecutiveFailures = 2
	status.LastError = "cambridge_audio_10.0.0.5 unavailable: connection refused"
	service, _ := setupService(t, status)

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.False(t, info.ReceiverAvailable)
	require.Len(t, info.AttentionItems, 1)
	require.Equal(t, "receiver_unavailable", info.AttentionItems[0].Type)
	require.Equal(t, 2, info.AttentionItems[0].Details["consecutive_failures"])
}

func TestGetSystemInfo_FailedCommands(t *testing.T) {
	service, auditService := setupService(t, readyStatus())

	warn := audit.EventLevelWarn
	_, err := auditService.RecordEvent(audit.WriteEventInput{
		Type:    string(audit.EventCommandFailed),
		Level:   &warn,
		Message: "select_source failed",
	})
	require.NoError(t, err)

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.Len(t, info.AttentionItems, 1)
	require.Equal(t, "failed_commands", info.AttentionItems[0].Type)
	require.Equal(t, 1, info.AttentionItems[0].Details["failed_count"])
}

func TestSystemInfoRoute(t *testing.T) {
	service, _ := setupService(t, readyStatus())
	router := chi.NewRouter()
	RegisterRoutes(router, service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/system/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "system_info", body["object"])
	require.Equal(t, true, body["receiver_available"])
	receiver, ok := body["receiver"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "READY", receiver["state"])
}
