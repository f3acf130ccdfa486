package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bull/portfolio-rag/internal/indexer"
)

// jobRecorder collects the jobs that reach the indexer.
type jobRecorder struct {
	mu   sync.Mutex
	jobs []indexer.Job
}

func (r *jobRecorder) Reindex(_ context.Context, documentID, ownerID, content string) (*indexer.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, indexer.Job{DocumentID: documentID, OwnerID: ownerID, Content: content})
	return &indexer.Result{DocumentID: documentID}, nil
}

func (r *jobRecorder) Delete(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, indexer.Job{DocumentID: documentID, Delete: true})
	return nil
}

func (r *jobRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// syncSubmitter waits for each job so tests can assert right after handle.
type syncSubmitter struct {
	q *indexer.Queue
}

func (s *syncSubmitter) Submit(job indexer.Job) *indexer.Ticket {
	ticket := s.q.Submit(job)
	<-ticket.Done()
	return ticket
}

func newTestConsumer(t *testing.T) (*Consumer, *jobRecorder) {
	t.Helper()
	rec := &jobRecorder{}
	q := indexer.NewQueue(rec, indexer.QueueConfig{Workers: 1}, nil)
	t.Cleanup(q.Close)
	return NewConsumer(nil, "", &syncSubmitter{q: q}, nil), rec
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	assert.Equal(t, "00-abc-def-01", carrier.Get("traceparent"))
	assert.Len(t, carrier.Keys(), 1)
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	carrier := (*natsHeaderCarrier)(&nats.Msg{})
	assert.Equal(t, "", carrier.Get("missing"))
	assert.Nil(t, carrier.Keys())
}

func TestNewMsg_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg, err := newMsg(ctx, DefaultSubject, ReindexRequest{DocumentID: "doc-1", OwnerID: "user-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Header.Get("traceparent"))

	gotCtx, req, err := decodeMsg[ReindexRequest](msg)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", req.DocumentID)
	assert.Equal(t, sc.TraceID(), trace.SpanContextFromContext(gotCtx).TraceID())
}

func TestConsumer_HandleSubmitsJob(t *testing.T) {
	c, rec := newTestConsumer(t)

	msg, err := newMsg(context.Background(), DefaultSubject, ReindexRequest{
		DocumentID: "doc-1",
		OwnerID:    "user-1",
		Content:    "I write Go.",
	})
	require.NoError(t, err)

	c.handle(msg)

	require.Len(t, rec.jobs, 1)
	assert.Equal(t, indexer.Job{DocumentID: "doc-1", OwnerID: "user-1", Content: "I write Go."}, rec.jobs[0])
}

func TestConsumer_DeleteClearsContent(t *testing.T) {
	c, rec := newTestConsumer(t)

	msg, err := newMsg(context.Background(), DefaultSubject, ReindexRequest{
		DocumentID: "doc-1",
		OwnerID:    "user-1",
		Content:    "stale",
		Delete:     true,
	})
	require.NoError(t, err)
	c.handle(msg)

	require.Len(t, rec.jobs, 1)
	assert.Equal(t, indexer.Job{DocumentID: "doc-1", Delete: true}, rec.jobs[0])
}

func TestConsumer_DeleteWithoutOwner(t *testing.T) {
	c, rec := newTestConsumer(t)

	msg, err := newMsg(context.Background(), DefaultSubject, ReindexRequest{DocumentID: "doc-1", Delete: true})
	require.NoError(t, err)
	c.handle(msg)

	require.Len(t, rec.jobs, 1)
	assert.True(t, rec.jobs[0].Delete)
}

func TestConsumer_DropsBadMessages(t *testing.T) {
	c, rec := newTestConsumer(t)

	c.handle(&nats.Msg{Subject: DefaultSubject, Data: []byte("{invalid json")})

	incomplete, err := json.Marshal(ReindexRequest{DocumentID: "doc-1"})
	require.NoError(t, err)
	c.handle(&nats.Msg{Subject: DefaultSubject, Data: incomplete})

	assert.Empty(t, rec.jobs)
}

func TestPublisher_RejectsIncompleteRequest(t *testing.T) {
	p := NewPublisher(nil, "")
	err := p.PublishReindex(context.Background(), ReindexRequest{OwnerID: "user-1"})
	assert.ErrorIs(t, err, ErrIncompleteRequest)

	err = p.PublishReindex(context.Background(), ReindexRequest{DocumentID: "doc-1"})
	assert.ErrorIs(t, err, ErrIncompleteRequest)
}

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

func TestPublisher_PublishWithoutDeadline(t *testing.T) {
	_, nc := startTestNATS(t)

	ch := make(chan *nats.Msg, 2)
	sub, err := nc.ChanSubscribe("test.publish", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	p := NewPublisher(nc, "test.publish")

	// Neither context carries a deadline, as with a cobra command context.
	require.NoError(t, p.PublishReindex(context.Background(), ReindexRequest{
		DocumentID: "doc-1",
		OwnerID:    "user-1",
		Content:    "I write Go.",
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.PublishReindex(ctx, ReindexRequest{DocumentID: "doc-2", Delete: true}))

	var got []ReindexRequest
	for range 2 {
		select {
		case msg := <-ch:
			var req ReindexRequest
			require.NoError(t, json.Unmarshal(msg.Data, &req))
			got = append(got, req)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
	assert.Equal(t, []ReindexRequest{
		{DocumentID: "doc-1", OwnerID: "user-1", Content: "I write Go."},
		{DocumentID: "doc-2", Delete: true},
	}, got)
}

func TestPublisher_ClosedConnection(t *testing.T) {
	_, nc := startTestNATS(t)
	nc.Close()

	p := NewPublisher(nc, "test.closed")
	err := p.PublishReindex(context.Background(), ReindexRequest{DocumentID: "doc-1", OwnerID: "user-1"})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

// slowRecorder holds each job briefly so messages pile up in the
// subscription while the consumer is stopping.
type slowRecorder struct {
	jobRecorder
	delay time.Duration
}

func (r *slowRecorder) Reindex(ctx context.Context, documentID, ownerID, content string) (*indexer.Result, error) {
	time.Sleep(r.delay)
	return r.jobRecorder.Reindex(ctx, documentID, ownerID, content)
}

func TestConsumer_StopDeliversPendingMessages(t *testing.T) {
	_, nc := startTestNATS(t)

	rec := &slowRecorder{delay: 5 * time.Millisecond}
	q := indexer.NewQueue(rec, indexer.QueueConfig{Workers: 1, Buffer: 1}, nil)

	c := NewConsumer(nc, "test.shutdown", q, nil)
	require.NoError(t, c.Start())

	p := NewPublisher(nc, "test.shutdown")
	const total = 20
	for i := range total {
		require.NoError(t, p.PublishReindex(context.Background(), ReindexRequest{
			DocumentID: fmt.Sprintf("doc-%d", i),
			OwnerID:    "user-1",
			Content:    "content",
		}))
	}

	// Same order as the server: drain the subscription, then close the queue.
	require.NoError(t, c.Stop())
	q.Close()

	assert.Equal(t, total, rec.count())
	assert.False(t, c.sub.IsValid())
}

func TestConsumer_StopWithoutStart(t *testing.T) {
	c := NewConsumer(nil, "", nil, nil)
	assert.NoError(t, c.Stop())
}

func TestConsumer_Health(t *testing.T) {
	_, nc := startTestNATS(t)
	c := NewConsumer(nc, "", nil, nil)
	assert.NoError(t, c.Health(context.Background()))

	nc.Close()
	assert.Error(t, c.Health(context.Background()))
}
