package livefeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGracePeriod = time.Second
)

// WebSocketTransport streams readings from {base}/ws/hive/{device_id}/telemetry.
type WebSocketTransport struct {
	baseURL string
	dialer  *websocket.Dialer
}

func NewWebSocketTransport(baseURL string) (*WebSocketTransport, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("live feed base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse live feed url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, fmt.Errorf("live feed url must use ws or wss, got %q", parsed.Scheme)
	}
	return &WebSocketTransport{
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

func (t *WebSocketTransport) endpoint(deviceID string) (string, error) {
	return url.JoinPath(t.baseURL, "ws", "hive", url.PathEscape(deviceID), "telemetry")
}

func (t *WebSocketTransport) Run(ctx context.Context, deviceID string, emit func(Event)) {
	defer emit(Event{Kind: EventClose})

	endpoint, err := t.endpoint(deviceID)
	if err != nil {
		emit(Event{Kind: EventError, Err: fmt.Errorf("build url: %w", err)})
		return
	}

	conn, _, err := t.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if ctx.Err() == nil {
			emit(Event{Kind: EventError, Err: fmt.Errorf("dial %s: %w", endpoint, err)})
		}
		return
	}
	defer conn.Close()

	emit(Event{Kind: EventOpen})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !isNormalClose(err) {
				emit(Event{Kind: EventError, Err: fmt.Errorf("read %s: %w", endpoint, err)})
			}
			return
		}
		emit(Event{Kind: EventMessage, Payload: payload})
	}
}

func isNormalClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
}
