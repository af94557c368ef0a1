// Package workerpool provides a bounded worker pool for controlled
// concurrency, used to fan out batch classification requests.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work. Payload carries whatever the worker function
// needs, including any per-task reply channel.
type Task struct {
	ID      string
	Payload interface{}
	Context context.Context
}

// Result is the outcome of processing one task.
type Result struct {
	TaskID  string
	Success bool
	Error   error
}

// WorkerFunc processes a single task.
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of concurrent workers.
	Workers int
	// QueueSize bounds the task queue; Submit fails when it is full.
	QueueSize int
	// GracefulShutdownTimeout bounds how long Stop waits for workers.
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for batch classification requests.
func DefaultConfig() Config {
	return Config{
		Workers:                 16,
		QueueSize:               1024,
		GracefulShutdownTimeout: 15 * time.Second,
	}
}

// Pool runs tasks on a fixed set of workers.
type Pool struct {
	config     Config
	workerFunc WorkerFunc
	logger     *zap.Logger

	taskChan chan *Task
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
}

// New creates a worker pool. The pool does not run until Start is called.
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = DefaultConfig().GracefulShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:     cfg,
		workerFunc: fn,
		logger:     logger,
		taskChan:   make(chan *Task, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues a task. It fails when the pool is shutting down or the
// queue is full; the caller decides whether that is retryable.
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("pool is shutting down")
	default:
	}

	select {
	case p.taskChan <- task:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Stop drains the queue and waits for workers, bounded by the configured
// shutdown timeout.
func (p *Pool) Stop() {
	p.cancel()
	close(p.taskChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		ctx := task.Context
		if ctx == nil {
			ctx = p.ctx
		}

		result := p.workerFunc(ctx, task)
		if result != nil && result.Success {
			atomic.AddInt64(&p.tasksCompleted, 1)
			continue
		}

		atomic.AddInt64(&p.tasksFailed, 1)
		if result != nil && result.Error != nil {
			p.logger.Debug("task failed",
				zap.String("task_id", task.ID),
				zap.Int("worker_id", id),
				zap.Error(result.Error))
		}
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
	}
}
