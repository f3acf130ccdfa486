package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/bull/portfolio-rag/internal/indexer"
)

// DefaultQueueGroup lets several indexer replicas share one subject.
const DefaultQueueGroup = "indexer"

// DefaultDrainTimeout bounds how long Stop waits for pending messages.
const DefaultDrainTimeout = 10 * time.Second

// JobSubmitter accepts reindex jobs. *indexer.Queue implements it.
type JobSubmitter interface {
	Submit(job indexer.Job) *indexer.Ticket
}

// Consumer feeds reindex requests from NATS into the indexing queue.
type Consumer struct {
	nc        *nats.Conn
	subject   string
	group     string
	submitter JobSubmitter
	logger    *slog.Logger
	sub       *nats.Subscription

	drainTimeout time.Duration
	inFlight     atomic.Int32
}

// NewConsumer creates a consumer. Call Start to subscribe.
func NewConsumer(nc *nats.Conn, subject string, submitter JobSubmitter, logger *slog.Logger) *Consumer {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		nc:        nc,
		subject:   subject,
		group:     DefaultQueueGroup,
		submitter: submitter,
		logger:    logger,

		drainTimeout: DefaultDrainTimeout,
	}
}

// Start subscribes to the subject within the queue group.
func (c *Consumer) Start() error {
	sub, err := c.nc.QueueSubscribe(c.subject, c.group, c.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	c.logger.Info("Consuming reindex requests", "subject", c.subject, "group", c.group)
	return nil
}

// Health reports whether the NATS connection is up. Requests published
// while it is down are lost.
func (c *Consumer) Health(_ context.Context) error {
	if status := c.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection %s", status)
	}
	return nil
}

// Stop drains the subscription and returns once every message received
// before the call has been handed to the submitter, or the drain timeout
// expires. The submitter must stay open until Stop returns.
func (c *Consumer) Stop() error {
	if c.sub == nil {
		return nil
	}
	if err := c.sub.Drain(); err != nil {
		return fmt.Errorf("drain %s: %w", c.subject, err)
	}

	// Drain is asynchronous; the subscription turns invalid once its
	// pending messages have been dispatched.
	deadline := time.Now().Add(c.drainTimeout)
	for c.sub.IsValid() || c.inFlight.Load() > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("drain %s: %w", c.subject, nats.ErrTimeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.logger.Info("Drained reindex subscription", "subject", c.subject)
	return nil
}

// handle submits one request. Malformed or incomplete messages are logged
// and dropped; NATS core has no redelivery to retry them.
func (c *Consumer) handle(msg *nats.Msg) {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	ctx, req, err := decodeMsg[ReindexRequest](msg)
	if err != nil {
		c.logger.Warn("Dropping malformed reindex request", "error", err)
		return
	}

	_, span := otel.Tracer("portfolio-rag/events").Start(ctx, c.subject+" receive")
	defer span.End()

	if err := req.validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Dropping incomplete reindex request", "document_id", req.DocumentID, "error", err)
		return
	}

	job := indexer.Job{DocumentID: req.DocumentID, Delete: req.Delete}
	if !req.Delete {
		job.OwnerID = req.OwnerID
		job.Content = req.Content
	}

	ticket := c.submitter.Submit(job)
	if err := ticket.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Failed to queue reindex request", "document_id", req.DocumentID, "error", err)
		return
	}
	c.logger.Debug("Queued reindex request", "document_id", req.DocumentID, "delete", req.Delete)
}
