package aria2

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nhooyr.io/websocket"
)

// Notification methods pushed by aria2.
const (
	MethodDownloadStart    = "aria2.onDownloadStart"
	MethodDownloadComplete = "aria2.onDownloadComplete"
	MethodDownloadError    = "aria2.onDownloadError"
	MethodDownloadStop     = "aria2.onDownloadStop"
)

// Notification represents an async event pushed by aria2.
type Notification struct {
	Method string              `json:"method"`
	Params []NotificationEvent `json:"params"`
}

// NotificationEvent contains details for an aria2 notification.
type NotificationEvent struct {
	GID string `json:"gid"`
}

// WebSocketURL returns the ws:// or wss:// form of the client's endpoint.
func (c *Client) WebSocketURL() (string, error) {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme: %s", wsURL.Scheme)
	}
	return wsURL.String(), nil
}

// Notifications connects to the aria2 WebSocket endpoint and streams
// async notifications. The returned channel is closed when the connection
// terminates or the context is cancelled.
func (c *Client) Notifications(ctx context.Context) (<-chan Notification, error) {
	u, err := c.WebSocketURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	ch := make(chan Notification, 8)
	go func() {
		defer close(ch)
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			// aria2 may send newline-delimited JSON; trim
			data = []byte(strings.TrimSpace(string(data)))
			var n Notification
			if err := json.Unmarshal(data, &n); err != nil {
				continue
			}
			// responses to calls carry no method
			if n.Method == "" {
				continue
			}
			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
