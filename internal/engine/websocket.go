package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultDialTimeout = 3 * time.Second

func websocketDialer(endpoint string, timeout time.Duration) (dialFunc, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("engine endpoint is empty")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse engine endpoint: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, fmt.Errorf("engine endpoint %q must use ws:// or wss://", endpoint)
	}
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	return func(ctx context.Context) (transport, error) {
		dialer := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		}
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		conn, _, err := dialer.DialContext(dialCtx, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("dial engine %q: %w", endpoint, err)
		}
		return &socketTransport{conn: conn}, nil
	}, nil
}

// socketTransport carries one JSON object per text frame.
type socketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *socketTransport) Send(ctx context.Context, req Request) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultDialTimeout)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(req)
}

func (s *socketTransport) Receive() ([]byte, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (s *socketTransport) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	return s.conn.Close()
}
