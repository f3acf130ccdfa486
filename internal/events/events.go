// Package events carries reindex requests over NATS with OpenTelemetry
// trace propagation, so documents can be indexed by a separate process.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultSubject is the subject reindex requests are published on.
const DefaultSubject = "knowledge.reindex"

// DefaultFlushTimeout bounds the flush after publishing when the caller's
// context has no deadline.
const DefaultFlushTimeout = 5 * time.Second

// ReindexRequest asks the indexer to rebuild one document's chunks.
// Delete requests drop the document's chunks; Content and OwnerID are
// ignored.
type ReindexRequest struct {
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
	Content    string `json:"content,omitempty"`
	Delete     bool   `json:"delete,omitempty"`
}

// ErrIncompleteRequest is returned for requests missing a required id.
var ErrIncompleteRequest = errors.New("incomplete reindex request")

func (r ReindexRequest) validate() error {
	if r.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", ErrIncompleteRequest)
	}
	if !r.Delete && r.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required to reindex", ErrIncompleteRequest)
	}
	return nil
}

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// newMsg serializes v as JSON and injects the trace context from ctx.
func newMsg[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", subject, err)
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// decodeMsg deserializes a JSON message and extracts its trace context.
func decodeMsg[T any](msg *nats.Msg) (context.Context, T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, v, fmt.Errorf("decode %s message: %w", msg.Subject, err)
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
	return ctx, v, nil
}

// Publisher sends reindex requests.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a publisher on subject (DefaultSubject when empty).
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// PublishReindex publishes req and flushes so the request has reached the
// server when it returns.
func (p *Publisher) PublishReindex(ctx context.Context, req ReindexRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	msg, err := newMsg(ctx, p.subject, req)
	if err != nil {
		return err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	// FlushWithContext refuses a context without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFlushTimeout)
		defer cancel()
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return nil
}
