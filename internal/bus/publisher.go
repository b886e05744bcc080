// Package bus publishes session events to NATS.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/session"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectListening  = "listening"
	SubjectPartial    = "partial"
	SubjectSegment    = "segment"
	SubjectSegmentEnd = "segment.end"
)

const flushTimeout = time.Second

// Publisher is a session.EventSink backed by a NATS connection.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials the configured servers.
func Connect(cfg config.BusConfig, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("hark"),
		nats.Timeout(cfg.ConnectTimeout()),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to NATS", "servers", url)

	return &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(cfg.SubjectPrefix, "."),
		logger: logger.With("component", "bus"),
	}, nil
}

// Subject returns the full subject an event type is published on.
func (p *Publisher) Subject(eventType session.EventType) (string, bool) {
	var suffix string
	switch eventType {
	case session.EventListeningState:
		suffix = SubjectListening
	case session.EventPartialResults:
		suffix = SubjectPartial
	case session.EventSegmentResults:
		suffix = SubjectSegment
	case session.EventEndOfSegmentedSession:
		suffix = SubjectSegmentEnd
	default:
		return "", false
	}
	if p.prefix == "" {
		return suffix, true
	}
	return p.prefix + "." + suffix, true
}

// Emit publishes asynchronously. Failures are logged and never reach the
// controller.
func (p *Publisher) Emit(event session.Event) {
	subject, ok := p.Subject(event.Type)
	if !ok {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("encode event failed", "type", event.Type, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

// Healthy reports whether the connection is up.
func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

// Close flushes pending publishes and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	if p.conn.IsClosed() {
		return nil
	}
	err := p.conn.FlushTimeout(flushTimeout)
	p.conn.Close()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
