package history

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/rleusmann/Cambridge-audio-custom/internal/config"
)

const (
	connectTimeout       = 10 * time.Second
	defaultBatchSize     = 50
	defaultFlushInterval = 10
)

// Client is a batching, non-blocking InfluxDB writer.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *log.Logger

	mu        sync.RWMutex
	connected bool
}

// Connect pings the server and opens a write API for the configured bucket.
func Connect(cfg config.InfluxDBConfig, logger *log.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = log.Default()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:    logger,
		connected: true,
	}
	go c.logWriteErrors(c.writeAPI.Errors())

	logger.Printf("Writing state history to %s (org=%s bucket=%s)", cfg.URL, cfg.Org, cfg.Bucket)
	return c, nil
}

func (c *Client) logWriteErrors(errs <-chan error) {
	for err := range errs {
		c.logger.Printf("[WARN] InfluxDB write failed: %v", err)
	}
}

// WritePoint queues a point. It is a no-op once the client is closed.
func (c *Client) WritePoint(point *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return
	}
	c.writeAPI.WritePoint(point)
}

// Flush sends all queued points.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and closes the client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
