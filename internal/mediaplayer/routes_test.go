package mediaplayer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rleusmann/Cambridge-audio-custom/internal/coordinator"
)

func newTestRouter(player *Player) http.Handler {
	router := chi.NewRouter()
	RegisterRoutes(router, player)
	return router
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error body: %v", body)
	code, _ := errBody["code"].(string)
	return code
}

func TestGetMediaPlayerView(t *testing.T) {
	player, _, _ := newTestPlayer(t)
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodGet, "/v1/media-player", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "media_player", body["object"])
	assert.Equal(t, "0020c2d8", body["unique_id"])
	assert.Equal(t, "on", body["state"])
	assert.Equal(t, "Radio", body["source"])
	assert.Equal(t, 0.4, body["volume_level"])
}

func TestGetSnapshot(t *testing.T) {
	player, _, _ := newTestPlayer(t)
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodGet, "/v1/media-player/snapshot", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "snapshot", body["object"])
	playback, ok := body["playback"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A1", playback["source"])
}

func TestSelectSourceRoute(t *testing.T) {
	player, _, device := newTestPlayer(t)
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodPost, "/v1/media-player/source", `{"source":"TV"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CommandSelectSource, body["command"])
	view, ok := body["media_player"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TV", view["source"])

	_, mutations := device.counts()
	assert.Equal(t, []string{"source:A2"}, mutations)
}

func TestSelectUnknownSourceRoute(t *testing.T) {
	player, _, _ := newTestPlayer(t)
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodPost, "/v1/media-player/source", `{"source":"Phono"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_SOURCE", errorCode(t, body))
}

func TestVolumeRouteValidation(t *testing.T) {
	player, _, device := newTestPlayer(t)
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodPost, "/v1/media-player/volume", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	rec, body = doRequest(t, router, http.MethodPost, "/v1/media-player/volume", `{"level":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_VOLUME", errorCode(t, body))

	rec, _ = doRequest(t, router, http.MethodPost, "/v1/media-player/volume", `{"level":0.3}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, mutations := device.counts()
	assert.Equal(t, []string{"volume:30"}, mutations)
}

func TestMuteRoute(t *testing.T) {
	player, _, _ := newTestPlayer(t)
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodPost, "/v1/media-player/mute", `{"muted":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	view, ok := body["media_player"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, view["is_volume_muted"])
}

func TestCommandFailureRoute(t *testing.T) {
	player, _, device := newTestPlayer(t)
	device.set(func(d *fakeDevice) { d.mutateErr["power:true"] = errors.New("rejected") })
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodPost, "/v1/media-player/turn-on", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "COMMAND_FAILED", errorCode(t, body))
}

func TestDeviceUnavailableRoute(t *testing.T) {
	player, _, device := newTestPlayer(t)
	device.set(func(d *fakeDevice) { d.fetchErr = errors.New("no route to host") })
	router := newTestRouter(player)

	rec, body := doRequest(t, router, http.MethodPost, "/v1/media-player/refresh", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEVICE_UNAVAILABLE", errorCode(t, body))

	// The stale view is still served, marked unavailable.
	rec, body = doRequest(t, router, http.MethodGet, "/v1/media-player", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["available"])
}

func TestNotReadyRoute(t *testing.T) {
	device := newFakeDevice()
	logger := log.New(io.Discard, "", 0)
	coord := coordinator.New(device, coordinator.Options{Logger: logger})
	t.Cleanup(func() { _ = coord.Close() })
	router := newTestRouter(New(coord, device, Options{Logger: logger}))

	rec, body := doRequest(t, router, http.MethodGet, "/v1/media-player", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY", errorCode(t, body))
}

func TestToAppErrorContextErrors(t *testing.T) {
	err := toAppError(context.DeadlineExceeded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline")
}
