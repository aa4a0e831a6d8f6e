package auth

import "context"

// Client is whoever issued a command: a token holder on the HTTP surfaces or
// the MQTT bridge.
type Client struct {
	ID   string
	Name string
}

// MQTTClient stands in for commands that arrive on the set topic.
var MQTTClient = Client{ID: "mqtt", Name: "MQTT bridge"}

// Label is the name shown in audit rows, falling back to the id.
func (c Client) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

type clientKey struct{}

// WithClient attaches the issuing client to ctx.
func WithClient(ctx context.Context, client Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the issuing client, if one is attached.
func ClientFromContext(ctx context.Context) (Client, bool) {
	if ctx == nil {
		return Client{}, false
	}
	client, ok := ctx.Value(clientKey{}).(Client)
	return client, ok
}
