package scheduler

import (
	"cmp"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alex65536/tourney/internal/util/backoff"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"golang.org/x/sync/errgroup"
)

var ErrNoHandler = errors.New("no handler for timer kind")

type Options struct {
	Workers       int             `toml:"workers"`
	FireTimeout   time.Duration   `toml:"fire-timeout"`
	DBSaveTimeout time.Duration   `toml:"db-save-timeout"`
	Retry         backoff.Options `toml:"retry"`
	Weekly        []WeeklyOptions `toml:"weekly"`
}

func (o Options) Clone() Options {
	o.Weekly = slices.Clone(o.Weekly)
	return o
}

func (o *Options) FillDefaults() {
	if o.Workers == 0 {
		o.Workers = 4
	}
	if o.FireTimeout == 0 {
		o.FireTimeout = 2 * time.Minute
	}
	if o.DBSaveTimeout == 0 {
		o.DBSaveTimeout = 10 * time.Second
	}
	if o.Retry.Min == 0 {
		o.Retry.Min = 5 * time.Second
	}
	if o.Retry.Max == 0 {
		o.Retry.Max = 10 * time.Minute
	}
	if o.Retry.MaxAttempts == 0 {
		// Lifecycle timers are never dropped.
		o.Retry.MaxAttempts = -1
	}
	o.Retry.FillDefaults()
	for i := range o.Weekly {
		o.Weekly[i].FillDefaults()
	}
}

func (o *Options) Validate() error {
	if err := o.Retry.Validate(); err != nil {
		return fmt.Errorf("bad retry options: %w", err)
	}
	seen := make(map[string]struct{})
	for i := range o.Weekly {
		w := &o.Weekly[i]
		if err := w.Validate(); err != nil {
			return fmt.Errorf("weekly #%v: %w", i+1, err)
		}
		if _, ok := seen[string(w.Region)]; ok {
			return fmt.Errorf("duplicate weekly region %v", w.Region)
		}
		seen[string(w.Region)] = struct{}{}
	}
	return nil
}

// Handler fires the timer and returns the timers that must replace it.
type Handler func(ctx context.Context, t Timer) ([]Timer, error)

type heapItem struct {
	id     string
	fireAt timeutil.UTCTime
}

type timerHeap []heapItem

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if c := h[i].fireAt.Compare(h[j].fireAt); c != 0 {
		return c < 0
	}
	return h[i].id < h[j].id
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(heapItem)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Scheduler fires durable timers at their due time. Timers overdue at startup fire right away.
// Heap entries are not removed on re-arm or disarm; stale ones are skipped when popped.
type Scheduler struct {
	o   Options
	db  DB
	log *slog.Logger

	mu       sync.Mutex
	handlers map[Kind]Handler
	timers   map[string]Timer
	running  map[string]struct{}
	heap     timerHeap
	notify   chan struct{}
	wake     chan struct{}
}

func New(ctx context.Context, log *slog.Logger, db DB, o Options) (*Scheduler, error) {
	o = o.Clone()
	o.FillDefaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		o:        o,
		db:       db,
		log:      log,
		handlers: make(map[Kind]Handler),
		timers:   make(map[string]Timer),
		running:  make(map[string]struct{}),
		notify:   make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
	}
	n, err := s.reload(ctx)
	if err != nil {
		log.Warn("could not load timers", slogx.Err(err))
		return nil, fmt.Errorf("load timers: %w", err)
	}
	overdue := 0
	now := timeutil.NowUTC()
	for _, t := range s.timers {
		if !t.FireAt.After(now) {
			overdue++
		}
	}
	log.Info("scheduler loaded", slog.Int("timers", n), slog.Int("overdue", overdue))
	return s, nil
}

func (s *Scheduler) Options() Options {
	return s.o.Clone()
}

// Handle registers the handler for the given timer kind. It must be called before Run.
func (s *Scheduler) Handle(kind Kind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[kind]; ok {
		panic(fmt.Sprintf("duplicate handler for %v", kind))
	}
	s.handlers[kind] = h
}

func (s *Scheduler) onHeapUpdatedUnlocked() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) putUnlocked(t Timer) {
	s.timers[t.ID] = t
	heap.Push(&s.heap, heapItem{id: t.ID, fireAt: t.FireAt})
	s.onHeapUpdatedUnlocked()
}

func (s *Scheduler) reload(ctx context.Context) (int, error) {
	timers, err := s.db.ListTimers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list timers: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, t := range timers {
		if old, ok := s.timers[t.ID]; ok && old.FireAt.Compare(t.FireAt) == 0 {
			continue
		}
		if _, ok := s.running[t.ID]; ok {
			continue
		}
		s.putUnlocked(t)
		added++
	}
	return added, nil
}

// Wake makes the scheduler look for timers stored by other components since the last look.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Arm stores the timers and schedules them. A timer with the same ID as an armed one replaces it.
func (s *Scheduler) Arm(ctx context.Context, timers ...Timer) error {
	if len(timers) == 0 {
		return nil
	}
	if err := s.db.PutTimers(ctx, timers); err != nil {
		return fmt.Errorf("put timers: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range timers {
		s.putUnlocked(t)
		s.log.Debug("armed timer", slog.Any("timer", t))
	}
	return nil
}

func (s *Scheduler) ArmTournament(ctx context.Context, tournamentID string, closesAt, startsAt timeutil.UTCTime) error {
	return s.Arm(ctx, ClosingTimer(tournamentID, closesAt), StartTimer(tournamentID, startsAt))
}

func (s *Scheduler) DisarmTournament(ctx context.Context, tournamentID string) error {
	if err := s.db.DeleteTournamentTimers(ctx, tournamentID); err != nil {
		return fmt.Errorf("delete tournament timers: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		if t.TournamentID == tournamentID {
			delete(s.timers, id)
		}
	}
	return nil
}

// Pending returns the armed timers ordered by fire time.
func (s *Scheduler) Pending() []Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Timer, 0, len(s.timers))
	for _, t := range s.timers {
		res = append(res, t)
	}
	slices.SortFunc(res, func(a, b Timer) int {
		if c := a.FireAt.Compare(b.FireAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return res
}

func (s *Scheduler) next(ctx context.Context) (Timer, error) {
	for {
		t, wait, ok := func() (Timer, time.Duration, bool) {
			s.mu.Lock()
			defer s.mu.Unlock()
			now := timeutil.NowUTC()
			for len(s.heap) != 0 {
				top := s.heap[0]
				cur, ok := s.timers[top.id]
				if !ok || cur.FireAt.Compare(top.fireAt) != 0 {
					heap.Pop(&s.heap)
					continue
				}
				if _, ok := s.running[top.id]; ok {
					// Re-armed while firing. It is pushed again when the current firing ends.
					heap.Pop(&s.heap)
					continue
				}
				if top.fireAt.After(now) {
					return Timer{}, top.fireAt.Sub(now), false
				}
				heap.Pop(&s.heap)
				s.running[top.id] = struct{}{}
				return cur, 0, true
			}
			return Timer{}, -1, false
		}()
		if ok {
			return t, nil
		}
		if err := s.wait(ctx, wait); err != nil {
			return Timer{}, err
		}
	}
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	var timerCh <-chan time.Time
	if d >= 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timerCh = timer.C
	}
	select {
	case <-s.notify:
	case <-timerCh:
	case <-s.wake:
		if _, err := s.reload(ctx); err != nil {
			s.log.Warn("could not reload timers", slogx.Err(err))
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Run fires timers until the context is cancelled, then waits for the running ones.
func (s *Scheduler) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(s.o.Workers)
	for {
		t, err := s.next(ctx)
		if err != nil {
			break
		}
		g.Go(func() error {
			s.fire(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) saveCtx() (context.Context, func()) {
	return context.WithTimeout(context.Background(), s.o.DBSaveTimeout)
}

func (s *Scheduler) fire(ctx context.Context, t Timer) {
	log := s.log.With(slog.Any("timer", t))

	s.mu.Lock()
	h, ok := s.handlers[t.Kind]
	s.mu.Unlock()

	var (
		next []Timer
		err  error
	)
	if !ok {
		err = fmt.Errorf("%w %v", ErrNoHandler, t.Kind)
	} else {
		fireCtx, cancel := context.WithTimeout(ctx, s.o.FireTimeout)
		next, err = h(fireCtx, t)
		cancel()
	}

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.running, t.ID)
		if cur, ok := s.timers[t.ID]; ok {
			// Either retried or re-armed while firing.
			heap.Push(&s.heap, heapItem{id: cur.ID, fireAt: cur.FireAt})
			s.onHeapUpdatedUnlocked()
		}
	}()

	if err != nil && ctx.Err() != nil {
		log.Info("timer interrupted", slogx.Err(err))
		return
	}

	saveCtx, cancel := s.saveCtx()
	defer cancel()

	if err == nil {
		if dbErr := s.db.FinishTimer(saveCtx, t.ID, t.FireAt, next); dbErr != nil {
			// The timer stays armed in the store and fires again after restart.
			log.Error("could not finish timer", slogx.Err(dbErr))
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.timers[t.ID]; ok && cur.FireAt.Compare(t.FireAt) == 0 {
			delete(s.timers, t.ID)
		}
		for _, n := range next {
			s.putUnlocked(n)
		}
		log.Info("timer fired", slog.Int("next", len(next)))
		return
	}

	t.Attempts++
	t.LastError = err.Error()
	if s.o.Retry.Exhausted(t.Attempts) {
		log.Error("timer failed, giving up", slogx.Err(err), slog.Int64("attempts", t.Attempts))
		if dbErr := s.db.FinishTimer(saveCtx, t.ID, t.FireAt, nil); dbErr != nil {
			log.Error("could not drop failed timer", slogx.Err(dbErr))
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.timers[t.ID]; ok && cur.FireAt.Compare(t.FireAt) == 0 {
			delete(s.timers, t.ID)
		}
		return
	}
	oldFireAt := t.FireAt
	t.FireAt = timeutil.NowUTC().Add(s.o.Retry.Delay(t.Attempts))
	log.Warn("timer failed, will retry", slogx.Err(err), slog.String("fire_at", t.FireAt.String()))
	s.mu.Lock()
	cur, ok := s.timers[t.ID]
	stale := !ok || cur.FireAt.Compare(oldFireAt) != 0
	if !stale {
		s.timers[t.ID] = t
	}
	s.mu.Unlock()
	if stale {
		return
	}
	if dbErr := s.db.PutTimers(saveCtx, []Timer{t}); dbErr != nil {
		log.Error("could not save failed timer", slogx.Err(dbErr))
	}
}
