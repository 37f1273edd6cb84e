package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Remaining derives whole seconds left from the absolute expiry, clamped at
// zero. The second return is false when the question has no time limit.
//
// Deriving from an absolute timestamp instead of a relative countdown means a
// client joining or refreshing mid-question computes the same value as
// everyone else; correctness depends only on clocks being reasonably close,
// not on message delivery timing.
func Remaining(expiresAt *time.Time, now time.Time) (int, bool) {
	if expiresAt == nil {
		return 0, false
	}
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0, true
	}
	return int((left + time.Second - 1) / time.Second), true
}

// StartCountdown recomputes Remaining on a 1 Hz local tick and emits each
// value, latest-wins for slow consumers. The channel closes after zero is
// emitted or cancel is called. A nil expiry closes immediately: nothing to
// count down.
//
// Reaching zero only reflects that submission eligibility ended; the state
// machine moves on only when the host explicitly reveals.
func StartCountdown(clock clockwork.Clock, expiresAt *time.Time) (<-chan int, func()) {
	out := make(chan int, 1)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	if expiresAt == nil {
		close(out)
		return out, cancel
	}
	deadline := *expiresAt

	go func() {
		defer close(out)
		remaining, _ := Remaining(&deadline, clock.Now())
		emit(out, remaining)
		if remaining == 0 {
			return
		}
		ticker := clock.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				remaining, _ = Remaining(&deadline, clock.Now())
				emit(out, remaining)
				if remaining == 0 {
					return
				}
			case <-stop:
				return
			}
		}
	}()
	return out, cancel
}

// emit replaces a stale buffered value so consumers always see the newest
// remaining count.
func emit(ch chan int, v int) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
