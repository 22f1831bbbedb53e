// Package events publishes domain events about agents and posts.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	AgentRegistered = "agent.registered"
	AgentClaimed    = "agent.claimed"
	PostCreated     = "post.created"
	PostDeleted     = "post.deleted"
)

type Event struct {
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id"`
	PostID    string    `json:"post_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events best-effort; callers log and continue on error.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	nc     conn
	prefix string
	logger *slog.Logger
}

func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("clawcreate"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "component", "events", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, prefix, logger), nil
}

func newNATSPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "clawcreate"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Emitter publishes best-effort: failures are logged and counted, never
// returned to the request that caused the event.
type Emitter struct {
	pub       Publisher
	logger    *slog.Logger
	onFailure func()
}

func NewEmitter(pub Publisher, logger *slog.Logger, onFailure func()) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{pub: pub, logger: logger, onFailure: onFailure}
}

func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil {
		return
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.logger.Warn("event publish failed", "component", "events", "type", ev.Type, "error", err)
		if e.onFailure != nil {
			e.onFailure()
		}
	}
}
