package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Job asks for one document to be reindexed, or removed when Delete is set.
// OwnerID is only required for reindexing.
type Job struct {
	DocumentID string
	OwnerID    string
	Content    string
	Delete     bool
}

func (j Job) validate() error {
	if j.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidJob)
	}
	if !j.Delete && j.OwnerID == "" {
		return fmt.Errorf("%w: document and owner ids are required", ErrInvalidJob)
	}
	return nil
}

// Reindexer runs a single reindex or deletion. *Pipeline implements it.
type Reindexer interface {
	Reindex(ctx context.Context, documentID, ownerID, content string) (*Result, error)
	Delete(ctx context.Context, documentID string) error
}

// QueueConfig tunes a Queue. Zero values select defaults.
type QueueConfig struct {
	Workers     int           // Parallel workers (default 4)
	Buffer      int           // Pending jobs per worker before Submit blocks (default 64)
	MaxAttempts int           // Attempts per job including the first (default 1)
	JobTimeout  time.Duration // Bounds all attempts of a job; 0 means none

	InitialBackoff time.Duration // Default 500ms
	MaxBackoff     time.Duration // Default 10s
}

func (c *QueueConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
}

// Ticket tracks the outcome of a submitted Job.
type Ticket struct {
	job      Job
	done     chan struct{}
	result   *Result
	err      error
	attempts int
}

func newTicket(job Job) *Ticket {
	return &Ticket{job: job, done: make(chan struct{})}
}

func (t *Ticket) finish(result *Result, err error) {
	t.result = result
	t.err = err
	close(t.done)
}

// Job returns the submitted job.
func (t *Ticket) Job() Job { return t.job }

// Done is closed once the job has finished, successfully or not.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err returns the job's error, or nil while it is still running.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Result returns the job's result, or nil while running or after failure.
func (t *Ticket) Result() *Result {
	select {
	case <-t.done:
		return t.result
	default:
		return nil
	}
}

// Attempts returns how many times the job has been tried so far.
// Only meaningful once Done is closed.
func (t *Ticket) Attempts() int {
	select {
	case <-t.done:
		return t.attempts
	default:
		return 0
	}
}

// Wait blocks until the job finishes or ctx is done. Cancelling ctx stops
// the wait, not the job.
func (t *Ticket) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Queue runs reindex jobs on a fixed set of workers. Jobs are sharded by
// document ID, so jobs for the same document run one at a time in
// submission order while different documents proceed in parallel.
type Queue struct {
	runner Reindexer
	cfg    QueueConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	shards []chan *Ticket
	wg     sync.WaitGroup
}

// NewQueue starts the workers.
func NewQueue(runner Reindexer, cfg QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	q := &Queue{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		shards: make([]chan *Ticket, cfg.Workers),
	}
	for i := range q.shards {
		q.shards[i] = make(chan *Ticket, cfg.Buffer)
		q.wg.Add(1)
		go q.worker(q.shards[i])
	}
	return q
}

// Submit enqueues job and returns its ticket. It blocks only while the
// document's shard is full. After Close the ticket is already failed with
// ErrQueueClosed.
func (q *Queue) Submit(job Job) *Ticket {
	t := newTicket(job)
	if err := job.validate(); err != nil {
		t.finish(nil, err)
		return t
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		t.finish(nil, ErrQueueClosed)
		return t
	}
	q.shards[shardFor(job.DocumentID, len(q.shards))] <- t
	return t
}

// Close stops intake, lets workers drain every submitted job, and waits
// for them to exit. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, shard := range q.shards {
			close(shard)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) worker(jobs <-chan *Ticket) {
	defer q.wg.Done()
	for t := range jobs {
		q.run(t)
	}
}

// run executes one job with its own context, retrying with exponential
// backoff up to MaxAttempts.
func (q *Queue) run(t *Ticket) {
	ctx := context.Background()
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}

	logger := q.logger.With("document_id", t.job.DocumentID)

	var result *Result
	operation := func() error {
		t.attempts++
		r, err := q.execute(ctx, t.job)
		if err != nil {
			if errors.Is(err, ErrInvalidJob) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = q.cfg.InitialBackoff
	exponentialBackoff.MaxInterval = q.cfg.MaxBackoff
	exponentialBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(exponentialBackoff, uint64(q.cfg.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logger.Warn("Reindex failed, retrying", "attempt", t.attempts, "retry_in", wait, "error", err)
	})
	if err != nil {
		logger.Error("Reindex failed", "attempts", t.attempts, "error", err)
		t.finish(nil, err)
		return
	}
	t.finish(result, nil)
}

func (q *Queue) execute(ctx context.Context, job Job) (*Result, error) {
	if job.Delete {
		if err := q.runner.Delete(ctx, job.DocumentID); err != nil {
			return nil, err
		}
		return &Result{DocumentID: job.DocumentID}, nil
	}
	return q.runner.Reindex(ctx, job.DocumentID, job.OwnerID, job.Content)
}

// shardFor maps a document ID to a worker index.
func shardFor(documentID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(documentID))
	return int(h.Sum32() % uint32(n))
}
