package streammagic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rleusmann/Cambridge-audio-custom/internal/receiver"
)

// DefaultTimeout bounds every request to the receiver.
const DefaultTimeout = 5 * time.Second

const (
	pathInfo    = "/smoip/system/info"
	pathSources = "/smoip/system/sources"
	pathPower   = "/smoip/system/power"
	pathZone    = "/smoip/zone/state"
)

// Options configures a Client.
type Options struct {
	// Name overrides the friendly name reported by the device.
	Name string
	// Model is used when the device does not report one.
	Model string
	// Timeout for each request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// HTTPClient replaces the pooled default client (tests).
	HTTPClient *http.Client
}

// Client talks to one StreamMagic receiver over its local HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	name       string
	model      string
}

// NewClient creates a client for the receiver at host. host may carry a port
// or a full http:// base URL.
func NewClient(host string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:    baseURL(host),
		httpClient: httpClient,
		name:       opts.Name,
		model:      opts.Model,
	}
}

func baseURL(host string) string {
	if parsed, err := url.Parse(host); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return parsed.Scheme + "://" + parsed.Host
	}
	return "http://" + host
}

// GetInfo fetches the receiver identity.
func (c *Client) GetInfo(ctx context.Context) (receiver.Identity, error) {
	var payload infoPayload
	if err := c.get(ctx, "get_info", pathInfo, nil, &payload); err != nil {
		return receiver.Identity{}, err
	}
	identity := payload.toIdentity(c.name, c.model)
	if identity.UnitID == "" {
		return receiver.Identity{}, &Error{Op: "get_info", Err: errors.New("device reported no unit id")}
	}
	return identity, nil
}

// GetSources fetches the selectable inputs in display order.
func (c *Client) GetSources(ctx context.Context) ([]receiver.Source, error) {
	var payload sourcesPayload
	if err := c.get(ctx, "get_sources", pathSources, nil, &payload); err != nil {
		return nil, err
	}
	return payload.toSources(), nil
}

// GetState fetches power, mute, volume and the active source.
func (c *Client) GetState(ctx context.Context) (receiver.PlaybackState, error) {
	var payload statePayload
	if err := c.get(ctx, "get_state", pathZone, nil, &payload); err != nil {
		return receiver.PlaybackState{}, err
	}
	return payload.toPlayback(), nil
}

// SetPower turns the receiver on, or into network standby.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	value := "NETWORK"
	if on {
		value = "ON"
	}
	return c.get(ctx, "set_power", pathPower, url.Values{"power": {value}}, nil)
}

// SetMute mutes or unmutes the zone.
func (c *Client) SetMute(ctx context.Context, on bool) error {
	return c.get(ctx, "set_mute", pathZone, url.Values{"mute": {strconv.FormatBool(on)}}, nil)
}

// SetVolumePercent sets an absolute volume in percent.
func (c *Client) SetVolumePercent(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return &Error{Op: "set_volume_percent", Err: fmt.Errorf("volume %d out of range 0-100", percent)}
	}
	return c.get(ctx, "set_volume_percent", pathZone, url.Values{"volume_percent": {strconv.Itoa(percent)}}, nil)
}

// VolumeStepUp raises the volume by one device step.
func (c *Client) VolumeStepUp(ctx context.Context) error {
	return c.get(ctx, "volume_step_up", pathZone, url.Values{"volume_step_change": {"1"}}, nil)
}

// VolumeStepDown lowers the volume by one device step.
func (c *Client) VolumeStepDown(ctx context.Context) error {
	return c.get(ctx, "volume_step_down", pathZone, url.Values{"volume_step_change": {"-1"}}, nil)
}

// SetSource selects an input by device identifier.
func (c *Client) SetSource(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return &Error{Op: "set_source", Err: errors.New("source id is required")}
	}
	return c.get(ctx, "set_source", pathZone, url.Values{"source": {sourceID}}, nil)
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		return &Error{Op: op, StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Code != 0 {
		return &Error{Op: op, Code: env.Code}
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return &Error{Op: op, Err: errors.New("response has no data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}
