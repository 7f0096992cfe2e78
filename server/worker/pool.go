// Package worker provides an asynchronous worker pool for recording completed
// turns through the provided storage.Driver and announcing them through the
// provided eventstream.Publisher.
//
// The pool decouples recording from the server's HTTP hot path so that a slow
// database or broker never stalls a stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/skycast/pkg/eventstream"
	"github.com/papercomputeco/skycast/pkg/logger"
	"github.com/papercomputeco/skycast/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Turn *storage.Turn

	// Path is the request path the turn was served on.
	Path string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting turns.
	Driver storage.Driver

	// Publisher receives a turn-completed event after each successful Put.
	// Optional.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes recording jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so that a late Enqueue never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	if job.Turn == nil {
		p.logger.Error("job not queued, nil turn", "path", job.Path)
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Error("job not queued, pool closed, job dropped",
			"turn_id", job.Turn.ID,
			"agent", job.Turn.Agent,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"turn_id", job.Turn.ID,
			"agent", job.Turn.Agent,
			"mode", job.Turn.Mode,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"turn_id", job.Turn.ID,
			"agent", job.Turn.Agent,
			"mode", job.Turn.Mode,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
// Jobs enqueued after Close are dropped.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob stores the turn and, once stored, publishes its event.
// Publish failures are logged and never undo the stored turn.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	turn := job.Turn

	if err := p.config.Driver.Put(ctx, turn); err != nil {
		p.logger.Error("async turn storage failed",
			"turn_id", turn.ID,
			"agent", turn.Agent,
			logger.Err(err),
		)
		return
	}

	p.logger.Info("turn stored",
		"turn_id", turn.ID,
		"agent", turn.Agent,
		"mode", turn.Mode,
		"status", turn.Status,
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewTurnCompletedEvent(turn, job.Path)
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("failed to publish turn event",
			"turn_id", turn.ID,
			"event_id", event.EventID,
			logger.Err(err),
		)
		return
	}

	p.logger.Debug("turn event published",
		"turn_id", turn.ID,
		"event_id", event.EventID,
	)
}
