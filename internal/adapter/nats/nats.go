// Package nats backs the message queue port with NATS JetStream. Sync and
// provisioning requests arrive as messages here, and every finished run
// publishes its outcome back, so the stream doubles as the engine's audit
// trail of what ran when.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/RxMesh/PharmaCore/internal/port/messagequeue"
)

// All engine traffic lives on one stream so a single consumer can replay the
// full history of sync and tenant activity.
const streamName = "PHARMACORE"

var streamSubjects = []string{"sync.>", "tenants.>"}

// Queue is the JetStream-backed implementation of messagequeue.Queue.
type Queue struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *slog.Logger
}

// Connect dials NATS and makes sure the engine stream covers the sync and
// tenant subject trees before any publisher or consumer touches it.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: streamSubjects,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}

	q := &Queue{nc: nc, js: js, log: slog.Default().With("stream", streamName)}
	q.log.Info("nats connected", "url", url)
	return q, nil
}

// Publish writes one message to the stream under the given subject.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches handler to the subject through a durable consumer and
// returns a stop function. A handler error Naks the message, so JetStream
// redelivers it; that redelivery is the engine's retry mechanism for failed
// sync and provisioning requests.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("consumer for %s: %w", subject, err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.deliver(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", subject, err)
	}
	return cons.Stop, nil
}

func (q *Queue) deliver(msg jetstream.Msg, handler messagequeue.Handler) {
	if err := handler(msg.Subject(), msg.Data()); err != nil {
		q.log.Error("handler failed, message will be redelivered",
			"subject", msg.Subject(), "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			q.log.Error("nak failed", "subject", msg.Subject(), "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		q.log.Error("ack failed", "subject", msg.Subject(), "error", ackErr)
	}
}

// Close tears down the NATS connection. Consumers are stopped separately via
// the stop functions Subscribe hands out.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}
