package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alex65536/tourney/internal/util/backoff"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/alex65536/tourney/internal/util/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	mu      sync.Mutex
	lastSeq int64
	tasks   map[int64]Task
}

func newFakeDB() *fakeDB {
	return &fakeDB{tasks: make(map[int64]Task)}
}

func (d *fakeDB) InsertTasks(ctx context.Context, tasks []Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
outer:
	for _, t := range tasks {
		if t.DedupKey != nil {
			for _, o := range d.tasks {
				if o.DedupKey != nil && *o.DedupKey == *t.DedupKey {
					continue outer
				}
			}
		}
		d.lastSeq++
		t.Seq = d.lastSeq
		d.tasks[t.Seq] = t.Clone()
	}
	return nil
}

func (d *fakeDB) list(dead bool) []Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	var res []Task
	for _, t := range d.tasks {
		if t.Dead == dead {
			res = append(res, t.Clone())
		}
	}
	slices.SortFunc(res, func(a, b Task) int { return int(a.Seq - b.Seq) })
	return res
}

func (d *fakeDB) ListLiveTasks(ctx context.Context) ([]Task, error) { return d.list(false), nil }
func (d *fakeDB) ListDeadTasks(ctx context.Context) ([]Task, error) { return d.list(true), nil }

func (d *fakeDB) DeleteTask(ctx context.Context, seq int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tasks, seq)
	return nil
}

func (d *fakeDB) UpdateTask(ctx context.Context, task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks[task.Seq] = task.Clone()
	return nil
}

func (d *fakeDB) RequeueDeadTasks(ctx context.Context, now timeutil.UTCTime) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for seq, t := range d.tasks {
		if t.Dead {
			t.Dead = false
			t.Attempts = 0
			t.NotBefore = now
			d.tasks[seq] = t
			n++
		}
	}
	return n, nil
}

func (d *fakeDB) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

func testOptions(workers int) Options {
	return Options{
		Workers: workers,
		Rate:    1000,
		Burst:   100,
		Retry: backoff.Options{
			Min:         time.Millisecond,
			Max:         5 * time.Millisecond,
			MaxAttempts: 3,
		},
	}
}

func startQueue(t *testing.T, q *Queue) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestFIFO(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	for i := range 20 {
		require.NoError(t, db.InsertTasks(ctx, []Task{StartVetoTask("", string(rune('a' + i)))}))
	}

	q, err := New(ctx, slogx.DiscardLogger(), db, testOptions(1))
	require.NoError(t, err)
	assert.Equal(t, 20, q.Pending())

	var mu sync.Mutex
	var order []string
	q.Handle(KindStartVeto, func(ctx context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, task.Payload.MatchID)
		return nil
	})
	startQueue(t, q)

	require.Eventually(t, func() bool { return db.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, id := range order {
		assert.Equal(t, string(rune('a'+i)), id)
	}
}

func TestRetryAndDead(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	q, err := New(ctx, slogx.DiscardLogger(), db, testOptions(2))
	require.NoError(t, err)

	var mu sync.Mutex
	calls := map[string]int{}
	q.Handle(KindStartVeto, func(ctx context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		calls[task.Payload.MatchID]++
		if task.Payload.MatchID == "flaky" && calls["flaky"] < 2 {
			return errors.New("flaky")
		}
		if task.Payload.MatchID == "broken" {
			return errors.New("broken")
		}
		return nil
	})
	startQueue(t, q)

	require.NoError(t, q.Enqueue(ctx, StartVetoTask("", "flaky"), StartVetoTask("", "broken")))
	require.Eventually(t, func() bool {
		return len(db.list(false)) == 0 && len(db.list(true)) == 1
	}, 5*time.Second, 5*time.Millisecond)

	dead, err := q.DeadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "broken", dead[0].Payload.MatchID)
	assert.Equal(t, int64(3), dead[0].Attempts)
	assert.Equal(t, "broken", dead[0].LastError)

	mu.Lock()
	assert.Equal(t, 2, calls["flaky"])
	assert.Equal(t, 3, calls["broken"])
	mu.Unlock()

	n, err := q.Requeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls["broken"] == 6
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDedupAndWake(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	q, err := New(ctx, slogx.DiscardLogger(), db, testOptions(4))
	require.NoError(t, err)

	release := make(chan struct{})
	var mu sync.Mutex
	runs := 0
	q.Handle(KindCreateMatch, func(ctx context.Context, task Task) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		runs++
		return nil
	})
	startQueue(t, q)

	require.NoError(t, q.Enqueue(ctx, CreateMatchTask("t", 2, 0)))
	require.NoError(t, q.Enqueue(ctx, CreateMatchTask("t", 2, 0)))
	// Inserted behind the queue's back, as a producer transaction would do.
	require.NoError(t, db.InsertTasks(ctx, []Task{CreateMatchTask("t", 2, 0), CreateMatchTask("t", 2, 1)}))
	q.Wake()
	close(release)

	require.Eventually(t, func() bool { return db.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, runs)
}

func TestNoHandler(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	q, err := New(ctx, slogx.DiscardLogger(), db, testOptions(1))
	require.NoError(t, err)
	startQueue(t, q)
	require.NoError(t, q.Enqueue(ctx, UpdateBracketTask("t", "m", 1, 0)))
	require.Eventually(t, func() bool { return len(db.list(true)) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, db.list(true)[0].LastError, "no handler")
}

func TestTaskKeys(t *testing.T) {
	task := CreateMatchTask("t1", 2, 3)
	assert.Equal(t, "create_match:t1:2:3", *task.DedupKey)
	assert.Equal(t, KindCreateMatch, task.Kind)
	assert.Equal(t, "start_veto:m1", *StartVetoTask("t1", "m1").DedupKey)
	assert.Equal(t, "update_bracket:m1", *UpdateBracketTask("t1", "m1", 1, 0).DedupKey)
	assert.Nil(t, NewTask(KindStartVeto, Payload{}, "").DedupKey)
}
