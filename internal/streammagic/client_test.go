package streammagic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	path  string
	query string
}

func newTestDevice(t *testing.T, handler http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	requests := []recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, recordedRequest{path: r.URL.Path, query: r.URL.RawQuery})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return NewClient(server.URL, Options{Model: "CXN"}), &requests
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"code":0,"zone":"ZONE1","data":` + data + `}`))
}

func TestGetInfo(t *testing.T) {
	client, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathInfo, r.URL.Path)
		writeData(w, `{"name":"Living Room","unit_id":"1234ABCD","udn":"uuid:1"}`)
	})

	identity, err := client.GetInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1234ABCD", identity.UnitID)
	require.Equal(t, "Living Room", identity.Name)
	require.Equal(t, "CXN", identity.Model, "model falls back to the configured label")
}

func TestGetInfoNameOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"name":"Living Room","unit_id":"1234ABCD","model":"EVO 150"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, Options{Name: "Den", Model: "CXN"})
	identity, err := client.GetInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Den", identity.Name)
	require.Equal(t, "EVO 150", identity.Model)
}

func TestGetSources(t *testing.T) {
	client, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"sources":[{"id":"A1","name":"Stream"},{"id":"A2","name":"","default_name":"TV"}]}`)
	})

	sources, err := client.GetSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "A1", sources[0].ID)
	require.Equal(t, "Stream", sources[0].Name)
	require.Equal(t, "TV", sources[1].Name)
}

func TestGetState(t *testing.T) {
	client, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"source":"A1","power":true,"mute":false,"volume_percent":40}`)
	})

	state, err := client.GetState(context.Background())
	require.NoError(t, err)
	require.True(t, state.Power)
	require.False(t, state.Mute)
	require.Equal(t, "A1", state.SourceID)
	require.NotNil(t, state.VolumePercent)
	require.Equal(t, 40, *state.VolumePercent)
}

func TestGetStateWithoutVolume(t *testing.T) {
	client, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{"source":"","power":false,"mute":true}`)
	})

	state, err := client.GetState(context.Background())
	require.NoError(t, err)
	require.Nil(t, state.VolumePercent)
	require.True(t, state.Mute)
	require.Empty(t, state.SourceID)
}

func TestCommandsQueryParameters(t *testing.T) {
	client, requests := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{}`)
	})
	ctx := context.Background()

	require.NoError(t, client.SetPower(ctx, true))
	require.NoError(t, client.SetPower(ctx, false))
	require.NoError(t, client.SetMute(ctx, true))
	require.NoError(t, client.SetVolumePercent(ctx, 35))
	require.NoError(t, client.VolumeStepUp(ctx))
	require.NoError(t, client.VolumeStepDown(ctx))
	require.NoError(t, client.SetSource(ctx, "A2"))

	require.Equal(t, []recordedRequest{
		{path: pathPower, query: "power=ON"},
		{path: pathPower, query: "power=NETWORK"},
		{path: pathZone, query: "mute=true"},
		{path: pathZone, query: "volume_percent=35"},
		{path: pathZone, query: "volume_step_change=1"},
		{path: pathZone, query: "volume_step_change=-1"},
		{path: pathZone, query: "source=A2"},
	}, *requests)
}

func TestInvalidArgumentsNeverReachDevice(t *testing.T) {
	client, requests := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{}`)
	})

	var deviceErr *Error
	require.ErrorAs(t, client.SetVolumePercent(context.Background(), 101), &deviceErr)
	require.ErrorAs(t, client.SetSource(context.Background(), ""), &deviceErr)
	require.Empty(t, *requests)
}

func TestHTTPErrorIsDeviceError(t *testing.T) {
	client, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GetState(context.Background())
	var deviceErr *Error
	require.True(t, errors.As(err, &deviceErr))
	require.Equal(t, "get_state", deviceErr.Op)
	require.Equal(t, http.StatusInternalServerError, deviceErr.StatusCode)
}

func TestNonZeroCodeIsDeviceError(t *testing.T) {
	client, _ := newTestDevice(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":3,"message":"bad source"}`))
	})

	err := client.SetSource(context.Background(), "ZZ")
	var deviceErr *Error
	require.ErrorAs(t, err, &deviceErr)
	require.Equal(t, 3, deviceErr.Code)
}

func TestUnreachableDevice(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(server.URL, Options{})
	_, err := client.GetInfo(context.Background())
	var deviceErr *Error
	require.ErrorAs(t, err, &deviceErr)
	require.NotNil(t, deviceErr.Unwrap())
}

func TestBaseURL(t *testing.T) {
	require.Equal(t, "http://192.168.1.20", baseURL("192.168.1.20"))
	require.Equal(t, "http://192.168.1.20:8080", baseURL("192.168.1.20:8080"))
	require.Equal(t, "http://receiver.local", baseURL("http://receiver.local/smoip"))
}
