// Package events publishes checkout lifecycle events to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nikolayk812/checkoutflow/internal/port"
)

const DefaultPrefix = "events"

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher publishes each event as JSON on the subject <prefix>.<event>.
func NewNATSPublisher(conn *nats.Conn, prefix string) (port.EventPublisher, error) {
	if conn == nil {
		return nil, errors.New("conn is nil")
	}

	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &natsPublisher{conn: conn, prefix: prefix}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, event string, payload any) error {
	if event == "" {
		return errors.New("event is empty")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	msg := nats.NewMsg(p.subject(event))
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("conn.PublishMsg: %w", err)
	}

	return nil
}

func (p *natsPublisher) subject(event string) string {
	return p.prefix + "." + event
}

type nop struct{}

// Nop drops every event.
func Nop() port.EventPublisher {
	return nop{}
}

func (nop) Publish(context.Context, string, any) error {
	return nil
}
