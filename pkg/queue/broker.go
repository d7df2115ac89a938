// Package queue implements the Job Queue Adapter (C3) and the worker pool
// that drives the Pipeline Orchestrator (C9): a durable consumer feeding a
// bounded pool of goroutines, each processing one document job end to end.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/brant/roofpipeline/pkg/config"
	"github.com/brant/roofpipeline/pkg/pipeline"
)

// Job is the message body enqueued on the broker.
type Job struct {
	DocumentID string    `json:"document_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Broker is the NATS JetStream adapter for C3: a durable pull consumer on
// brant.pipeline.jobs with explicit ack, and a publish-side helper used by
// C10 and the janitor's requeue path.
type Broker struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    *config.BrokerConfig
	sub    *nats.Subscription
}

// NewBroker connects to NATS and ensures the durable stream exists.
func NewBroker(cfg *config.BrokerConfig) (*Broker, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("roofpipeline"))
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to nats: %v", pipeline.ErrUpstream, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: acquiring jetstream context: %v", pipeline.ErrUpstream, err)
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.Subject, cfg.DLQSubject},
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("%w: ensuring jetstream stream: %v", pipeline.ErrUpstream, err)
	}

	return &Broker{nc: nc, js: js, cfg: cfg}, nil
}

// Healthy reports whether the NATS connection is up, for the aggregate
// health endpoint.
func (b *Broker) Healthy() error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("%w: nats connection is down", pipeline.ErrUpstream)
	}
	return nil
}

// Close releases the underlying NATS connection.
func (b *Broker) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.nc.Close()
}

// Enqueue publishes a job for a document. Broker delivery is
// at-least-once; idempotency is Phase A's responsibility, not this call's.
func (b *Broker) Enqueue(ctx context.Context, documentID string, attempt int) error {
	payload, err := json.Marshal(Job{DocumentID: documentID, Attempt: attempt, EnqueuedAt: timeNow()})
	if err != nil {
		return fmt.Errorf("%w: encoding job: %v", pipeline.ErrInternal, err)
	}
	if _, err := b.js.Publish(b.cfg.Subject, payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: publishing job: %v", pipeline.ErrUpstream, err)
	}
	return nil
}

// DeadLetter routes an exhausted job to the DLQ subject. The orchestrator
// commits the FAILED row before calling it; nothing in this repository
// consumes the DLQ subject.
func (b *Broker) DeadLetter(ctx context.Context, job Job, reason string) error {
	type dlqEnvelope struct {
		Job
		Reason string `json:"reason"`
	}
	payload, err := json.Marshal(dlqEnvelope{Job: job, Reason: reason})
	if err != nil {
		return fmt.Errorf("%w: encoding dlq entry: %v", pipeline.ErrInternal, err)
	}
	if _, err := b.js.Publish(b.cfg.DLQSubject, payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: publishing to dlq: %v", pipeline.ErrUpstream, err)
	}
	return nil
}

// Delivery wraps one pulled message with its explicit ack/nak controls.
type Delivery struct {
	Job Job
	msg *nats.Msg
}

// Ack acknowledges successful processing.
func (d Delivery) Ack() error { return d.msg.Ack() }

// Nak signals failed processing for immediate broker-level redelivery.
func (d Delivery) Nak() error { return d.msg.Nak() }

// NakWithDelay signals failed processing and asks the broker to hold the
// redelivery for the given duration (the retry backoff).
func (d Delivery) NakWithDelay(delay time.Duration) error {
	return d.msg.NakWithDelay(delay)
}

// Backoff computes the redelivery delay for the given attempt: exponential
// from base, capped at limit, with up to 20% random jitter either way.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if d > limit || d <= 0 {
		d = limit
	}
	jitter := time.Duration(rand.Int64N(int64(d)*2/5)) - d/5
	return d + jitter
}

// Consumer is a durable pull consumer used by the worker pool to fetch
// batches of jobs.
type Consumer struct {
	sub *nats.Subscription
}

// NewConsumer creates the durable pull consumer described by cfg. AckWait
// is the visibility timeout: an unacked delivery (worker crash) becomes
// redeliverable after it elapses.
func (b *Broker) NewConsumer() (*Consumer, error) {
	sub, err := b.js.PullSubscribe(b.cfg.Subject, b.cfg.DurableName, nats.ManualAck(), nats.AckWait(b.cfg.AckWait))
	if err != nil {
		return nil, fmt.Errorf("%w: creating pull consumer: %v", pipeline.ErrUpstream, err)
	}
	return &Consumer{sub: sub}, nil
}

// Fetch pulls up to batchSize jobs, waiting up to the context's deadline
// for at least one to arrive.
func (c *Consumer) Fetch(ctx context.Context, batchSize int) ([]Delivery, error) {
	msgs, err := c.sub.Fetch(batchSize, nats.Context(ctx))
	if err != nil {
		if err == nats.ErrTimeout || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: fetching jobs: %v", pipeline.ErrUpstream, err)
	}

	deliveries := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		var job Job
		if err := json.Unmarshal(m.Data, &job); err != nil {
			_ = m.Term() // malformed payload, never redeliverable
			continue
		}
		deliveries = append(deliveries, Delivery{Job: job, msg: m})
	}
	return deliveries, nil
}

// Close releases the consumer's subscription.
func (c *Consumer) Close() error {
	return c.sub.Unsubscribe()
}

// timeNow returns the current UTC time used to stamp enqueued_at.
func timeNow() time.Time { return time.Now().UTC() }
