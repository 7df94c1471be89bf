package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alex65536/tourney/internal/util/backoff"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var ErrNoHandler = errors.New("no handler for task kind")

type Options struct {
	Workers       int             `toml:"workers"`
	Rate          float64         `toml:"rate"`
	Burst         int             `toml:"burst"`
	TaskTimeout   time.Duration   `toml:"task-timeout"`
	DBSaveTimeout time.Duration   `toml:"db-save-timeout"`
	Retry         backoff.Options `toml:"retry"`
}

func (o Options) Clone() Options {
	return o
}

func (o *Options) FillDefaults() {
	if o.Workers == 0 {
		o.Workers = 8
	}
	if o.Rate == 0 {
		o.Rate = 20
	}
	if o.Burst == 0 {
		o.Burst = o.Workers
	}
	if o.TaskTimeout == 0 {
		o.TaskTimeout = 2 * time.Minute
	}
	if o.DBSaveTimeout == 0 {
		o.DBSaveTimeout = 10 * time.Second
	}
	if o.Retry.Min == 0 {
		o.Retry.Min = time.Second
	}
	if o.Retry.Max == 0 {
		o.Retry.Max = 5 * time.Minute
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry.MaxAttempts = 10
	}
	o.Retry.FillDefaults()
}

type Handler func(ctx context.Context, task Task) error

type seqHeap []Task

func (h seqHeap) Len() int           { return len(h) }
func (h seqHeap) Less(i, j int) bool { return h[i].Seq < h[j].Seq }
func (h seqHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *seqHeap) Push(x any)        { *h = append(*h, x.(Task)) }

func (h *seqHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

type delayHeap []Task

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if c := h[i].NotBefore.Compare(h[j].NotBefore); c != 0 {
		return c < 0
	}
	return h[i].Seq < h[j].Seq
}
func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any)   { *h = append(*h, x.(Task)) }

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Queue runs durable tasks in FIFO order with at-least-once semantics. Tasks may be inserted by
// other components inside their own store transactions. Wake must be called afterwards so the
// queue picks them up.
type Queue struct {
	o       Options
	db      DB
	log     *slog.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	handlers map[Kind]Handler
	ready    seqHeap
	delayed  delayHeap
	known    map[int64]struct{}
	notify   chan struct{}
	wake     chan struct{}
}

func New(ctx context.Context, log *slog.Logger, db DB, o Options) (*Queue, error) {
	o = o.Clone()
	o.FillDefaults()
	if err := o.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("bad retry options: %w", err)
	}
	q := &Queue{
		o:        o,
		db:       db,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(o.Rate), o.Burst),
		handlers: make(map[Kind]Handler),
		known:    make(map[int64]struct{}),
		notify:   make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
	}
	n, err := q.reload(ctx)
	if err != nil {
		log.Warn("could not load pending tasks", slogx.Err(err))
		return nil, fmt.Errorf("load pending tasks: %w", err)
	}
	log.Info("queue loaded", slog.Int("pending", n))
	return q, nil
}

// Handle registers the handler for the given task kind. It must be called before Run.
func (q *Queue) Handle(kind Kind, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.handlers[kind]; ok {
		panic(fmt.Sprintf("duplicate handler for %v", kind))
	}
	q.handlers[kind] = h
}

func (q *Queue) onUpdatedUnlocked() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) pushUnlocked(t Task, now timeutil.UTCTime) {
	q.known[t.Seq] = struct{}{}
	if t.NotBefore.After(now) {
		heap.Push(&q.delayed, t)
	} else {
		heap.Push(&q.ready, t)
	}
	q.onUpdatedUnlocked()
}

func (q *Queue) reload(ctx context.Context) (int, error) {
	tasks, err := q.db.ListLiveTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list live tasks: %w", err)
	}
	now := timeutil.NowUTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	added := 0
	for _, t := range tasks {
		if _, ok := q.known[t.Seq]; ok {
			continue
		}
		q.pushUnlocked(t, now)
		added++
	}
	return added, nil
}

// Wake makes the queue look for tasks inserted into the store since the last look.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Enqueue stores the tasks and wakes the queue. Tasks with a live dedup key are skipped.
func (q *Queue) Enqueue(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := q.db.InsertTasks(ctx, tasks); err != nil {
		return fmt.Errorf("insert tasks: %w", err)
	}
	q.Wake()
	return nil
}

// Requeue revives all dead tasks with a fresh retry budget.
func (q *Queue) Requeue(ctx context.Context) (int64, error) {
	n, err := q.db.RequeueDeadTasks(ctx, timeutil.NowUTC())
	if err != nil {
		return 0, fmt.Errorf("requeue dead tasks: %w", err)
	}
	if n != 0 {
		q.log.Info("requeued dead tasks", slog.Int64("count", n))
		q.Wake()
	}
	return n, nil
}

func (q *Queue) DeadTasks(ctx context.Context) ([]Task, error) {
	tasks, err := q.db.ListDeadTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dead tasks: %w", err)
	}
	return tasks, nil
}

// Pending returns the number of tasks known to the queue, running ones included.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.known)
}

func (q *Queue) next(ctx context.Context) (Task, error) {
	for {
		task, wait, ok := func() (Task, time.Duration, bool) {
			q.mu.Lock()
			defer q.mu.Unlock()
			now := timeutil.NowUTC()
			for len(q.delayed) != 0 && !q.delayed[0].NotBefore.After(now) {
				heap.Push(&q.ready, heap.Pop(&q.delayed))
			}
			if len(q.ready) != 0 {
				return heap.Pop(&q.ready).(Task), 0, true
			}
			if len(q.delayed) != 0 {
				return Task{}, q.delayed[0].NotBefore.Sub(now), false
			}
			return Task{}, -1, false
		}()
		if ok {
			return task, nil
		}
		if err := q.wait(ctx, wait); err != nil {
			return Task{}, err
		}
	}
}

// wait blocks until the heaps may have changed. A negative duration means no timer.
func (q *Queue) wait(ctx context.Context, d time.Duration) error {
	var timerCh <-chan time.Time
	if d >= 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timerCh = timer.C
	}
	select {
	case <-q.notify:
	case <-timerCh:
	case <-q.wake:
		if _, err := q.reload(ctx); err != nil {
			q.log.Warn("could not reload tasks", slogx.Err(err))
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (q *Queue) putBack(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.ready, t)
}

// Run executes tasks until the context is cancelled, then waits for the running ones.
func (q *Queue) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(q.o.Workers)
	for {
		task, err := q.next(ctx)
		if err != nil {
			break
		}
		if err := q.limiter.Wait(ctx); err != nil {
			q.putBack(task)
			break
		}
		g.Go(func() error {
			q.execute(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	q.log.Info("queue stopped")
	return ctx.Err()
}

func (q *Queue) saveCtx() (context.Context, func()) {
	return context.WithTimeout(context.Background(), q.o.DBSaveTimeout)
}

func (q *Queue) execute(ctx context.Context, task Task) {
	log := q.log.With(slog.Any("task", task))

	q.mu.Lock()
	h, ok := q.handlers[task.Kind]
	q.mu.Unlock()

	var err error
	if !ok {
		err = fmt.Errorf("%w %v", ErrNoHandler, task.Kind)
	} else {
		taskCtx, cancel := context.WithTimeout(ctx, q.o.TaskTimeout)
		err = h(taskCtx, task)
		cancel()
	}

	if err != nil && ctx.Err() != nil {
		// Shutting down. The task stays in the store and runs again after restart.
		log.Info("task interrupted", slogx.Err(err))
		return
	}

	saveCtx, cancel := q.saveCtx()
	defer cancel()

	if err == nil {
		if dbErr := q.db.DeleteTask(saveCtx, task.Seq); dbErr != nil {
			log.Error("could not delete finished task", slogx.Err(dbErr))
		}
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.known, task.Seq)
		log.Debug("task done")
		return
	}

	task.Attempts++
	task.LastError = err.Error()
	if q.o.Retry.Exhausted(task.Attempts) {
		task.Dead = true
		log.Error("task failed, giving up", slogx.Err(err), slog.Int64("attempts", task.Attempts))
	} else {
		task.NotBefore = timeutil.NowUTC().Add(q.o.Retry.Delay(task.Attempts))
		log.Warn("task failed, will retry", slogx.Err(err), slog.String("not_before", task.NotBefore.String()))
	}
	if dbErr := q.db.UpdateTask(saveCtx, task); dbErr != nil {
		log.Error("could not save failed task", slogx.Err(dbErr))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if task.Dead {
		delete(q.known, task.Seq)
		return
	}
	q.pushUnlocked(task, timeutil.NowUTC())
}
