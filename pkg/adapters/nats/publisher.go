// Package nats publishes task stream frames to a NATS subject per task.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/errand/pkg/domain"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject root; frames go to <prefix>.<taskId>.
const DefaultSubjectPrefix = "errand.tasks"

// unassigned replaces the task token for frames emitted before a task exists.
const unassigned = "_"

// Publisher implements ports.EventPublisher.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSubjectPrefix overrides DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = strings.TrimSuffix(prefix, ".") }
}

// Connect dials url and returns a Publisher that owns the connection.
func Connect(url string, opts ...Option) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("errand"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := New(conn, opts...)
	p.owned = true
	return p, nil
}

// New wraps an existing connection.
func New(conn *nats.Conn, opts ...Option) *Publisher {
	p := &Publisher{conn: conn, prefix: DefaultSubjectPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject frames of taskID are published to.
func (p *Publisher) Subject(taskID string) string {
	if taskID == "" {
		taskID = unassigned
	}
	return p.prefix + "." + taskID
}

// Publish sends evt as JSON. It does not wait for a flush.
func (p *Publisher) Publish(ctx context.Context, evt domain.StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(evt.TaskID), data); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close drains the connection when the Publisher owns it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.conn.Drain()
}
