// Package async runs documents through the pipeline on a bounded worker pool.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one file to analyze.
type Job struct {
	ID          string
	Path        string
	SubmittedAt time.Time
}

func NewJob(path string) Job {
	return Job{ID: uuid.NewString(), Path: path, SubmittedAt: time.Now()}
}

// Result is a finished job. Err is set when the pipeline returned no record.
type Result struct {
	Job     Job
	Outcome pipeline.Outcome
	Err     error
	Worker  int
}

// Runner is the pipeline as seen by the queue.
type Runner interface {
	Run(ctx context.Context, filename string, data []byte) (pipeline.Outcome, error)
}

type Queue struct {
	runner   Runner
	onResult func(Result)
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	maxBytes int64

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithMaxBytes rejects files larger than n before reading them.
func WithMaxBytes(n int64) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxBytes = n
		}
	}
}

// NewQueue starts the workers. onResult is called from worker goroutines and
// must be safe for concurrent use.
func NewQueue(runner Runner, onResult func(Result), logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if onResult == nil {
		onResult = func(Result) {}
	}
	q := &Queue{
		runner:   runner,
		onResult: onResult,
		logger:   logger,
		workers:  4,
		timeout:  3 * time.Minute,
		ch:       make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("async.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.onResult(q.process(workerID, job))
				}
				q.logger.Debug("async.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) process(workerID int, job Job) Result {
	res := Result{Job: job, Worker: workerID}
	ctx := common.WithRequestID(context.Background(), job.ID)
	log := common.LoggerFrom(ctx, q.logger).With("worker_id", workerID, "path", job.Path)

	data, err := q.read(job.Path)
	if err != nil {
		res.Err = err
		log.Error("async.job.read_failed", "error", err)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	res.Outcome, res.Err = q.runner.Run(ctx, filepath.Base(job.Path), data)
	if res.Err != nil {
		log.Error("async.job.failed", "code", common.CodeOf(res.Err), "error", res.Err)
		return res
	}
	log.Info("async.job.done",
		"status", res.Outcome.Record.ExtractionStatus,
		"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
	)
	return res
}

func (q *Queue) read(path string) ([]byte, error) {
	if q.maxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > q.maxBytes {
			return nil, common.NewAppError(common.CodeInvalidInput,
				fmt.Sprintf("%s is %d bytes, limit %d", filepath.Base(path), info.Size(), q.maxBytes), common.ErrInvalidInput)
		}
	}
	return os.ReadFile(path)
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		return nil
	default:
		q.logger.Debug("async.queue.full", "path", job.Path)
	}
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or for ctx.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("async.shutdown.interrupted")
		return ctx.Err()
	case <-done:
		q.logger.Info("async.shutdown.drained")
		return nil
	}
}
