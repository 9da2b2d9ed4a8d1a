package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Common errors
var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrQueueClosed = errors.New("task queue is closed")
)

type TaskKind string

const (
	TaskScrape  TaskKind = "scrape"
	TaskSweep   TaskKind = "sweep"
	TaskProcess TaskKind = "process"
	TaskPublish TaskKind = "publish"
)

// Outcome is what a task handler reports back to the queue.
type Outcome int

const (
	Success Outcome = iota
	// Skip means there was nothing to do; never retried.
	Skip
	// Fatal means the failure is recorded and final; never retried.
	Fatal
	// Retry asks the queue to run the task again after a backoff.
	Retry
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skip:
		return "skip"
	case Fatal:
		return "fatal"
	case Retry:
		return "retry"
	}
	return "unknown"
}

type Result struct {
	Outcome Outcome
	Err     error
}

// Task is one unit of work. All state a task needs is in the store or in
// its own fields.
type Task struct {
	ID          string
	Kind        TaskKind
	EntityID    string
	Attempt     int
	MaxAttempts int
	NotBefore   time.Time

	startTime time.Time
	cancel    context.CancelFunc
}

func NewTask(kind TaskKind, entityID string, maxAttempts int) *Task {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Task{
		ID:          uuid.New().String(),
		Kind:        kind,
		EntityID:    entityID,
		Attempt:     1,
		MaxAttempts: maxAttempts,
	}
}

// Final reports whether this is the last attempt the task gets.
func (t *Task) Final() bool {
	return t.Attempt >= t.MaxAttempts
}

// After sets the earliest run time and returns t.
func (t *Task) After(at time.Time) *Task {
	t.NotBefore = at
	return t
}

func (t *Task) next(backoff time.Duration) *Task {
	delay := backoff
	for i := 1; i < t.Attempt; i++ {
		delay *= 2
	}
	return &Task{
		ID:          uuid.New().String(),
		Kind:        t.Kind,
		EntityID:    t.EntityID,
		Attempt:     t.Attempt + 1,
		MaxAttempts: t.MaxAttempts,
		NotBefore:   time.Now().Add(delay),
	}
}

type HandlerFunc func(ctx context.Context, task *Task) Result

// Dispatcher accepts tasks for execution.
type Dispatcher interface {
	// Submit enqueues without blocking and fails with ErrQueueFull.
	Submit(task *Task) error
	// Schedule delivers the task once NotBefore has passed, waiting for
	// queue capacity if needed.
	Schedule(task *Task)
}

type QueueConfig struct {
	Workers       int
	QueueSize     int
	RetryBackoff  time.Duration
	HungThreshold time.Duration
	CheckInterval time.Duration
}

type TaskQueue struct {
	tasks       chan *Task
	activeTasks map[string]*Task
	timers      map[string]*time.Timer
	config      QueueConfig
	mu          sync.Mutex
	quit        chan struct{}
	closed      bool
	wg          sync.WaitGroup
	logger      *logrus.Logger
}

func NewTaskQueue(cfg QueueConfig, logger *logrus.Logger) *TaskQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	return &TaskQueue{
		tasks:       make(chan *Task, cfg.QueueSize),
		activeTasks: make(map[string]*Task),
		timers:      make(map[string]*time.Timer),
		config:      cfg,
		quit:        make(chan struct{}),
		logger:      logger,
	}
}

// Start begins processing tasks
func (q *TaskQueue) Start(handler HandlerFunc) {
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i, handler)
	}

	go q.monitorHungTasks()
}

func (q *TaskQueue) Submit(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if time.Until(task.NotBefore) > 0 {
		q.scheduleLocked(task)
		return nil
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *TaskQueue) Schedule(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.WithFields(taskFields(task)).Warn("Dropping task, queue closed")
		return
	}
	q.scheduleLocked(task)
}

func (q *TaskQueue) scheduleLocked(task *Task) {
	delay := time.Until(task.NotBefore)
	if delay < 0 {
		delay = 0
	}
	q.timers[task.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, task.ID)
		q.mu.Unlock()

		select {
		case q.tasks <- task:
		case <-q.quit:
		}
	})
	if delay > 0 {
		q.logger.WithFields(taskFields(task)).WithField("run_at", task.NotBefore).Debug("Task scheduled")
	}
}

// Pending returns the number of tasks waiting in the queue or on a timer.
func (q *TaskQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) + len(q.timers)
}

func (q *TaskQueue) worker(id int, handler HandlerFunc) {
	defer q.wg.Done()
	logger := q.logger.WithField("worker_id", id)
	logger.Debug("Starting worker")

	for {
		select {
		case <-q.quit:
			logger.Debug("Worker shutting down")
			return
		case task := <-q.tasks:
			q.run(logger, task, handler)
		}
	}
}

func (q *TaskQueue) run(logger *logrus.Entry, task *Task, handler HandlerFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task.startTime = time.Now()
	task.cancel = cancel

	q.mu.Lock()
	q.activeTasks[task.ID] = task
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.activeTasks, task.ID)
		q.mu.Unlock()
	}()

	logger = logger.WithFields(taskFields(task))
	logger.Info("Started task")

	result := q.safeRun(ctx, task, handler)
	duration := time.Since(task.startTime)
	logger = logger.WithFields(logrus.Fields{
		"outcome":     result.Outcome.String(),
		"duration_ms": duration.Milliseconds(),
	})
	if result.Err != nil {
		logger = logger.WithError(result.Err)
	}

	switch result.Outcome {
	case Retry:
		if task.Final() {
			logger.Error("Task exhausted its attempts")
			return
		}
		next := task.next(q.config.RetryBackoff)
		logger.WithField("retry_at", next.NotBefore).Warn("Task failed, retrying")
		q.Schedule(next)
	case Fatal:
		logger.Error("Task failed")
	default:
		logger.Info("Task finished")
	}
}

func (q *TaskQueue) safeRun(ctx context.Context, task *Task, handler HandlerFunc) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(taskFields(task)).WithField("panic", r).Error("Task panicked")
			result = Result{Outcome: Fatal, Err: errors.New("task panicked")}
		}
	}()
	return handler(ctx, task)
}

// Close stops the workers and pending timers and cancels running tasks.
// It waits for workers until ctx is done.
func (q *TaskQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.quit)
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	for _, task := range q.activeTasks {
		task.cancel()
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *TaskQueue) monitorHungTasks() {
	ticker := time.NewTicker(q.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.quit:
			return
		case <-ticker.C:
			q.checkHungTasks()
		}
	}
}

// checkHungTasks logs tasks that have been running too long. Step timeouts
// bound them; the monitor only reports.
func (q *TaskQueue) checkHungTasks() {
	if q.config.HungThreshold <= 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for _, task := range q.activeTasks {
		if running := now.Sub(task.startTime); running > q.config.HungThreshold {
			q.logger.WithFields(taskFields(task)).WithField("duration", running).Warn("Found hung task")
		}
	}
}

func taskFields(task *Task) logrus.Fields {
	return logrus.Fields{
		"task_id":   task.ID,
		"kind":      task.Kind,
		"entity_id": task.EntityID,
		"attempt":   task.Attempt,
	}
}
