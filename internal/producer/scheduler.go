package producer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novaos/novaos/internal/telemetry"
)

// TaskFunc performs one producer run. A nil event means there is nothing to
// announce this time.
type TaskFunc func(ctx context.Context) (*Event, error)

// Task is one periodic producer.
type Task struct {
	// Name identifies the producer in logs, status and events.
	Name string

	// Interval is the time between run starts.
	Interval time.Duration

	// Timeout bounds a whole run, store checks and publish included.
	// Zero means no timeout beyond the scheduler's own lifetime.
	Timeout time.Duration

	Run TaskFunc
}

// Stage names the step of a run that failed.
type Stage string

const (
	StageConnect Stage = "connect"
	StageRun     Stage = "run"
	StagePublish Stage = "publish"
)

// RunResult holds the outcome of a single producer run.
type RunResult struct {
	Producer  string
	StartedAt time.Time
	Duration  time.Duration

	// Event is what the task produced, nil when it had nothing to announce.
	Event *Event

	// Published is true when Event reached the channel.
	Published bool

	// FailedAt and Error are set when the run failed.
	FailedAt Stage
	Error    error
}

// Outcome classifies the result as published, skipped or failed.
func (r RunResult) Outcome() string {
	switch {
	case r.Error != nil:
		return "failed"
	case r.Published:
		return "published"
	default:
		return "skipped"
	}
}

// Status is the supervision record of one producer.
type Status struct {
	Name        string
	Interval    time.Duration
	LastRun     time.Time
	LastSuccess time.Time
	LastError   string
	Runs        int64
	Failures    int64
}

// Pinger confirms the store connection before a run.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler runs producers on their own intervals.
//
// Every producer runs once immediately on start. After that the scheduler
// ticks at the GCD of all intervals and runs only the producers that are
// due, through a bounded worker pool. A run is (1) a store ping, (2) the
// task, (3) publishing its event. A failure at any step is logged and
// recorded; the producer is not retried before its next interval.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	tasks          []Task
	maxConcurrency int
	pinger         Pinger
	publisher      *Publisher
	results        chan RunResult
	metrics        *telemetry.Metrics
	logger         *zap.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	// per-task timing for tick-and-check pattern
	lastRunAt    map[string]time.Time
	baseInterval time.Duration

	statusMu sync.RWMutex
	statuses map[string]*Status
}

// NewScheduler creates a new producer [Scheduler].
//
// Parameters:
//   - tasks: producers to run; names must be unique and intervals positive
//   - maxConcurrency: maximum number of runs in flight
//   - pinger: store connection check run before every task (may be nil)
//   - publisher: destination for produced events
//   - metrics: run counters and latency (may be nil)
//   - logger: logger for run outcomes and panic recovery
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Results are available via [Scheduler.Results].
func NewScheduler(tasks []Task, maxConcurrency int, pinger Pinger, publisher *Publisher, metrics *telemetry.Metrics, logger *zap.Logger) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if metrics == nil {
		metrics = telemetry.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	statuses := make(map[string]*Status, len(tasks))
	for _, t := range tasks {
		statuses[t.Name] = &Status{Name: t.Name, Interval: t.Interval}
	}

	return &Scheduler{
		tasks:          tasks,
		maxConcurrency: maxConcurrency,
		pinger:         pinger,
		publisher:      publisher,
		results:        make(chan RunResult, len(tasks)),
		metrics:        metrics,
		logger:         logger,
		statuses:       statuses,
	}
}

// Results returns a receive-only channel that emits one [RunResult] per run.
//
// The channel is closed when the scheduler stops. Consumers must keep
// reading until it is closed; workers wait for a reader.
func (s *Scheduler) Results() <-chan RunResult {
	return s.results
}

// Statuses returns a snapshot of every producer's supervision record, in
// task order.
func (s *Scheduler) Statuses() []Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	out := make([]Status, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *s.statuses[t.Name])
	}
	return out
}

// calculateBaseInterval determines the tick interval for the scheduler.
// Uses the GCD of all task intervals so no task is run late.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	if len(s.tasks) == 0 {
		return time.Minute
	}

	result := s.tasks[0].Interval
	for _, t := range s.tasks[1:] {
		result = gcdDuration(result, t.Interval)
	}

	// floor at 1 second to prevent CPU thrashing
	if result < time.Second {
		result = time.Second
	}

	return result
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins the scheduling loop in a background goroutine.
//
// Start is non-blocking and returns immediately. The scheduler will:
//  1. Run every producer immediately
//  2. Tick at the GCD of all producer intervals
//  3. Run only producers that are due on each tick
//  4. Continue until [Scheduler.Stop] is called or the context is cancelled
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastRunAt = make(map[string]time.Time, len(s.tasks))
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("producer scheduler started",
		zap.Int("producers", len(s.tasks)),
		zap.Duration("tick", s.baseInterval),
	)

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.runDueTasks(runCtx, true)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDueTasks(runCtx, false)
			}
		}
	}()
}

// Stop halts the scheduler and waits for all goroutines to complete.
//
// Stop cancels the scheduler's context and blocks until the scheduling loop
// exits, in-flight runs return and the results channel is closed.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// runDueTasks runs the producers whose interval has elapsed. If immediate
// is true, runs all producers regardless of timing.
//
// lastRunAt is updated when a run STARTS, so a slow producer is never run
// twice concurrently but its effective interval stretches by its run time.
func (s *Scheduler) runDueTasks(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Task, 0, len(s.tasks))

	s.mu.Lock()
	for _, t := range s.tasks {
		last, ran := s.lastRunAt[t.Name]
		if immediate || !ran || now.Sub(last) >= t.Interval {
			due = append(due, t)
			s.lastRunAt[t.Name] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	s.runTasks(ctx, due)
}

// runTasks runs a subset of producers concurrently, respecting maxConcurrency.
func (s *Scheduler) runTasks(ctx context.Context, tasks []Task) {
	jobs := make(chan Task, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				result := s.runTask(ctx, t)
				select {
				case s.results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, t := range tasks {
		select {
		case jobs <- t:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// runTask performs one run and records its outcome.
func (s *Scheduler) runTask(ctx context.Context, t Task) RunResult {
	result := s.execute(ctx, t)
	result.Duration = time.Since(result.StartedAt)
	s.record(result)
	return result
}

func (s *Scheduler) execute(ctx context.Context, t Task) RunResult {
	result := RunResult{Producer: t.Name, StartedAt: time.Now()}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	fail := func(stage Stage, err error) RunResult {
		result.FailedAt = stage
		result.Error = err
		return result
	}

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			return fail(StageConnect, fmt.Errorf("store not reachable: %w", err))
		}
	}

	ev, err := s.safeRun(ctx, t)
	if err != nil {
		return fail(StageRun, err)
	}
	if ev == nil {
		return result
	}
	if ev.Agent == "" {
		ev.Agent = t.Name
	}
	result.Event = ev

	if s.publisher == nil {
		return fail(StagePublish, errors.New("no publisher configured"))
	}
	if err := s.publisher.Publish(ctx, *ev); err != nil {
		return fail(StagePublish, err)
	}
	result.Published = true
	return result
}

// safeRun calls the task with panic recovery.
// If the task panics, it logs the full stack trace with a correlation ID
// and returns an error containing the ID.
func (s *Scheduler) safeRun(ctx context.Context, t Task) (ev *Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			stack := debug.Stack()

			// log full context server-side for debugging
			s.logger.Error("producer panic",
				zap.String("producer", t.Name),
				zap.String("correlation_id", correlationID),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", stack),
			)

			ev = nil
			err = fmt.Errorf("producer panic (correlation_id: %s)", correlationID)
		}
	}()
	if t.Run == nil {
		return nil, errors.New("producer has no run function")
	}
	return t.Run(ctx)
}

// record updates status, metrics and logs for a finished run.
func (s *Scheduler) record(r RunResult) {
	s.statusMu.Lock()
	st, ok := s.statuses[r.Producer]
	if !ok {
		st = &Status{Name: r.Producer}
		s.statuses[r.Producer] = st
	}
	st.Runs++
	st.LastRun = r.StartedAt
	if r.Error != nil {
		st.Failures++
		st.LastError = r.Error.Error()
	} else {
		st.LastSuccess = r.StartedAt
		st.LastError = ""
	}
	s.statusMu.Unlock()

	s.metrics.ProducerRuns.WithLabelValues(r.Producer, r.Outcome()).Inc()
	s.metrics.ProducerDuration.WithLabelValues(r.Producer).Observe(r.Duration.Seconds())

	fields := []zap.Field{
		zap.String("producer", r.Producer),
		zap.String("outcome", r.Outcome()),
		zap.Duration("duration", r.Duration),
	}
	switch {
	case r.Error != nil:
		s.logger.Warn("producer run failed", append(fields, zap.String("stage", string(r.FailedAt)), zap.Error(r.Error))...)
	case r.Published:
		s.logger.Info("producer published", append(fields, zap.String("text", r.Event.Text))...)
	default:
		s.logger.Debug("producer run completed", fields...)
	}
}
