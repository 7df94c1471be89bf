package messaging

import (
	"context"
	"time"
)

// Await waits for the first interaction accepted by pick. If the deadline passes first, ok is
// false and err is nil: a timeout is an ordinary outcome. A zero deadline waits until the
// context is done.
func Await[T any](
	ctx context.Context,
	ch <-chan Interaction,
	deadline time.Time,
	pick func(Interaction) (T, bool),
) (res T, ok bool, err error) {
	var timerCh <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timerCh = timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return res, false, ctx.Err()
		case <-timerCh:
			return res, false, nil
		case it, chOk := <-ch:
			if !chOk {
				return res, false, ErrUnsubscribed
			}
			if v, accepted := pick(it); accepted {
				return v, true, nil
			}
		}
	}
}

// AwaitOr is like Await, but resolves a timeout with the fallback. The boolean reports whether
// the fallback was used.
func AwaitOr[T any](
	ctx context.Context,
	ch <-chan Interaction,
	deadline time.Time,
	pick func(Interaction) (T, bool),
	fallback func() T,
) (T, bool, error) {
	v, ok, err := Await(ctx, ch, deadline, pick)
	if err != nil {
		return v, false, err
	}
	if !ok {
		return fallback(), true, nil
	}
	return v, false, nil
}
