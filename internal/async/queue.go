package async

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/zerowaste/internal/services/household"
)

// ReceiptProcessor is the work a ScanQueue worker performs per job.
type ReceiptProcessor interface {
	ProcessReceipt(ctx context.Context, householdID, imagePayload, apiKey string) (household.ReceiptResult, error)
}

type JobState string

const (
	JobQueued  JobState = "QUEUED"
	JobRunning JobState = "RUNNING"
	JobDone    JobState = "DONE"
	JobFailed  JobState = "FAILED"
)

// Job is a receipt scan submitted for background processing.
type Job struct {
	ID        string
	Household string
	Image     string
	APIKey    string
}

// JobStatus is the externally visible state of a job. The image and key
// are not kept once a job finishes.
type JobStatus struct {
	ID        string
	Household string
	State     JobState
	Result    *household.ReceiptResult
	Error     string
	UpdatedAt time.Time
}

var (
	ErrQueueClosed = errors.New("scan queue is shutting down")
	ErrJobNotFound = errors.New("scan job not found")
)

type ScanQueue struct {
	proc    ReceiptProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// closeMu guards closed and the channel; sends hold the read lock.
	closeMu sync.RWMutex
	closed  bool

	mu        sync.Mutex
	jobs      map[string]*JobStatus
	retention time.Duration
}

type Option func(*ScanQueue)

func WithWorkers(n int) Option {
	return func(q *ScanQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ScanQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ScanQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewScanQueue(proc ReceiptProcessor, logger *slog.Logger, opts ...Option) *ScanQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ScanQueue{
		proc:      proc,
		logger:    logger,
		workers:   4,
		timeout:   2 * time.Minute,
		ch:        make(chan Job, 64),
		jobs:      make(map[string]*JobStatus),
		retention: 30 * time.Minute,
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ScanQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("scan.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.setState(job.ID, JobRunning, nil, "")
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.proc.ProcessReceipt(ctx, job.Household, job.Image, job.APIKey)
					cancel()

					if err != nil {
						q.logger.Error("scan.job.failed", "worker_id", workerID, "job_id", job.ID, "error", err)
						q.setState(job.ID, JobFailed, nil, err.Error())
					} else {
						q.logger.Info("scan.job.done", "worker_id", workerID, "job_id", job.ID, "products", len(res.Products))
						q.setState(job.ID, JobDone, &res, "")
					}
				}

				q.logger.Info("scan.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue registers a job and hands it to a worker. It blocks when the
// queue is full, until ctx is done.
func (q *ScanQueue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		q.logger.Warn("scan.enqueue.closed", "job_id", job.ID)
		return "", ErrQueueClosed
	}

	q.mu.Lock()
	q.pruneLocked(time.Now())
	q.jobs[job.ID] = &JobStatus{ID: job.ID, Household: job.Household, State: JobQueued, UpdatedAt: time.Now()}
	q.mu.Unlock()

	select {
	case q.ch <- job:
		q.logger.Info("scan.enqueue.ok", "job_id", job.ID, "household", job.Household)
		return job.ID, nil
	default:
	}
	q.logger.Warn("scan.enqueue.backpressure", "job_id", job.ID)
	select {
	case q.ch <- job:
		return job.ID, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return "", ctx.Err()
	}
}

// pruneLocked drops finished jobs older than the retention window.
func (q *ScanQueue) pruneLocked(now time.Time) {
	for id, st := range q.jobs {
		if (st.State == JobDone || st.State == JobFailed) && now.Sub(st.UpdatedAt) > q.retention {
			delete(q.jobs, id)
		}
	}
}

// Status returns a copy of the job's current state.
func (q *ScanQueue) Status(id string) (JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.jobs[id]
	if !ok {
		return JobStatus{}, ErrJobNotFound
	}
	return *st, nil
}

func (q *ScanQueue) setState(id string, state JobState, res *household.ReceiptResult, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.jobs[id]
	if !ok {
		return
	}
	st.State = state
	st.Result = res
	st.Error = errMsg
	st.UpdatedAt = time.Now()
}

func (q *ScanQueue) Shutdown(ctx context.Context) {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.closeMu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("scan.shutdown.interrupted")
	case <-done:
		q.logger.Info("scan.shutdown.drained")
	}
}
