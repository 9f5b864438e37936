// Package worker decouples request handling from snippet execution: a fixed
// pool of workers drains a bounded queue, so one slow caller can never stop
// the host from accepting new work.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/michaelbrown/crucible/internal/metrics"
	"github.com/michaelbrown/crucible/internal/sandbox"
)

// ErrQueueFull reports that the job queue is at capacity; callers should
// surface it as back-pressure, not as an execution failure.
var ErrQueueFull = errors.New("job queue full")

// Job is one queued execution. Exactly one of Result or Err receives a
// value when the job finishes.
type Job struct {
	ID      string
	Request sandbox.Request
	Ctx     context.Context
	Result  chan *sandbox.Result
	Err     chan error
}

// NewJob wraps a request for submission.
func NewJob(ctx context.Context, id string, req sandbox.Request) *Job {
	return &Job{
		ID:      id,
		Request: req,
		Ctx:     ctx,
		Result:  make(chan *sandbox.Result, 1),
		Err:     make(chan error, 1),
	}
}

// Pool runs queued jobs on a fixed number of workers, each driving its own
// isolated execution unit through the sandbox runner.
type Pool struct {
	runner  *sandbox.Runner
	jobs    chan *Job
	workers int
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(runner *sandbox.Runner, workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		runner:  runner,
		jobs:    make(chan *Job, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They stop when ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

// Wait blocks until all workers have stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Submit enqueues a job without blocking; a full queue is back-pressure.
func (p *Pool) Submit(job *Job) error {
	select {
	case p.jobs <- job:
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Run submits a request and waits for its outcome. The wait is synchronous
// for this caller only; other requests proceed on other workers.
func (p *Pool) Run(ctx context.Context, id string, req sandbox.Request) (*sandbox.Result, error) {
	job := NewJob(ctx, id, req)
	if err := p.Submit(job); err != nil {
		return nil, err
	}
	select {
	case res := <-job.Result:
		return res, nil
	case err := <-job.Err:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("worker started", slog.Int("worker", id))

	for {
		select {
		case job := <-p.jobs:
			metrics.QueueDepth.Set(float64(len(p.jobs)))
			metrics.ActiveWorkers.Inc()
			p.process(job)
			metrics.ActiveWorkers.Dec()
		case <-ctx.Done():
			p.logger.Debug("worker stopping", slog.Int("worker", id))
			return
		}
	}
}

func (p *Pool) process(job *Job) {
	res, err := p.runner.Execute(job.Ctx, job.Request)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("rejected").Inc()
		job.Err <- err
		return
	}

	metrics.RunsTotal.WithLabelValues(statusLabel(res)).Inc()
	metrics.RunDuration.Observe(res.Duration.Seconds())
	if len(res.Image) > 0 {
		metrics.ArtifactBytes.Observe(float64(len(res.Image)))
	}

	job.Result <- res
}

func statusLabel(res *sandbox.Result) string {
	switch {
	case res.Err != nil && res.Err.Kind == sandbox.KindTimeout:
		return "timed_out"
	case res.Err != nil:
		return "failed"
	default:
		return "completed"
	}
}
