package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/orbitrisk/internal/metrics"
)

// writeWindow is the deadline granted to each write on a stream.
const writeWindow = 30 * time.Second

// client manages a single SSE connection's write operations.
type client struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ip     string
	logger *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendJSON marshals v as JSON and sends it as an SSE "data:" message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	n, err := c.write(fmt.Sprintf("data: %s\n\n", data))
	if err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *client) sendRetry(ms int) error {
	n, err := c.write(fmt.Sprintf("retry: %d\n\n", ms))
	if err != nil {
		return err
	}
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendKeepalive sends an SSE comment line to keep the connection alive.
func (c *client) sendKeepalive() error {
	n, err := c.write(":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	metrics.AddStreamBytes(int64(n))
	return nil
}

func (c *client) write(msg string) (int, error) {
	// Extend the deadline before each write; the stream outlives any fixed timeout.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWindow)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprint(c.w, msg)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	c.bytesSent += int64(n)
	return n, nil
}
