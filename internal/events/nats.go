package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes events to a JetStream stream under "<prefix>.<event type>".
type NATSPublisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	prefix  string
	service string
}

// NewNATSPublisher enables JetStream on nc and makes sure a stream captures prefix.>.
func NewNATSPublisher(nc *nats.Conn, stream, prefix, service string) (*NATSPublisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if _, err := js.StreamInfo(stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("stream info %s: %w", stream, err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     stream,
			Subjects: []string{prefix + ".>"},
		}); err != nil {
			return nil, fmt.Errorf("add stream %s: %w", stream, err)
		}
	}
	return &NATSPublisher{nc: nc, js: js, prefix: prefix, service: service}, nil
}

// Publish sends evt with the event id as the JetStream dedup id.
func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := p.prefix + "." + evt.Type
	data, err := json.Marshal(evt)
	if err != nil {
		observability.IncrementEventPublish(subject, "marshal_failed")
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			nats.MsgIdHdr:  []string{evt.ID.String()},
			"event_type":   []string{evt.Type},
			"entity_id":    []string{evt.EntityID.String()},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	// The ack wait ends with ctx.
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		observability.IncrementEventPublish(subject, "error")
		zap.L().Error("event publish failed",
			zap.String("subject", subject),
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
		return err
	}
	observability.IncrementEventPublish(subject, "ok")
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil && !p.nc.IsClosed() {
		p.nc.Close()
	}
}
