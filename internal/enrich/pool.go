package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers   int // default 4
	QueueSize int // default 64
}

type job struct {
	docID string
	text  string
}

// Pool runs enrichment attempts on a fixed set of workers fed by a bounded
// queue. Submissions beyond the queue capacity are rejected, never blocked.
type Pool struct {
	orch   *Orchestrator
	logger *slog.Logger

	jobs  chan job
	slots chan struct{} // one token per queued job
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
	abort  atomic.Bool
}

// NewPool starts the workers.
func NewPool(orch *Orchestrator, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		orch:   orch,
		logger: logger,
		jobs:   make(chan job, cfg.QueueSize),
		slots:  make(chan struct{}, cfg.QueueSize),
	}
	for range cfg.Workers {
		p.group.Go(p.work)
	}
	logger.Info("Enrichment pool started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return p
}

// Submit claims docID, marks it accepted and queues the attempt. It returns
// ErrInFlight, ErrQueueFull or ErrPoolClosed when the work is not admitted;
// the claim is released in every such case.
func (p *Pool) Submit(ctx context.Context, docID, text string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	if !p.orch.claim(docID) {
		return ErrInFlight
	}

	select {
	case p.slots <- struct{}{}:
	default:
		p.orch.release(docID)
		p.logger.Warn("Enrichment rejected", "document_id", docID, "reason", ErrQueueFull)
		return ErrQueueFull
	}

	if err := p.orch.accept(ctx, docID); err != nil {
		<-p.slots
		p.orch.release(docID)
		return err
	}

	// Holding a slot guarantees buffer space, so this send never blocks.
	p.jobs <- job{docID: docID, text: text}
	return nil
}

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.jobs)
}

// Free returns how many more submissions the queue can admit right now.
func (p *Pool) Free() int {
	return cap(p.slots) - len(p.slots)
}

func (p *Pool) work() error {
	ctx := context.Background()
	for j := range p.jobs {
		<-p.slots
		if p.abort.Load() {
			p.orch.abort(ctx, j.docID)
		} else {
			p.orch.attempt(ctx, j.docID, j.text)
		}
		p.orch.release(j.docID)
	}
	return nil
}

// Shutdown stops admission and waits for the workers to drain the queue.
// If ctx expires first, jobs still queued are recorded as failed with
// AbortedDiagnostic; attempts already running finish normally. Shutdown
// returns once every worker has exited.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.logger.Info("Enrichment pool drained")
		return err
	case <-ctx.Done():
		p.abort.Store(true)
		p.logger.Warn("Shutdown deadline reached, aborting queued enrichment", "queued", len(p.jobs))
		return errors.Join(ctx.Err(), <-done)
	}
}
