package client

import "time"

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback already
	// ran or was stopped.
	Stop() bool
}

// Scheduler runs callbacks on the event loop after a delay.
type Scheduler interface {
	After(d time.Duration, f func()) Timer
}

// Delays holds the user-facing display delays.
type Delays struct {
	Display       time.Duration // how long success dialogs stay before navigating
	LogoutNotice  time.Duration // from LOGOUT to the "signed out" notice
	LogoutClear   time.Duration // from the notice to clearing local state
	SessionCheck  time.Duration // how long to wait for a RE_LOGIN reply
	ExpireRequest time.Duration // how often stale correlations are dropped
}

// DefaultDelays returns the delays of the browser client.
func DefaultDelays() Delays {
	return Delays{
		Display:       2 * time.Second,
		LogoutNotice:  1500 * time.Millisecond,
		LogoutClear:   time.Second,
		SessionCheck:  2 * time.Second,
		ExpireRequest: 10 * time.Second,
	}
}

// timerSet tracks the session's pending timers so they can be cancelled
// together.
type timerSet struct {
	next   int
	timers map[int]Timer
}

func (ts *timerSet) add(s Scheduler, d time.Duration, f func()) {
	if ts.timers == nil {
		ts.timers = make(map[int]Timer)
	}
	id := ts.next
	ts.next++
	ts.timers[id] = s.After(d, func() {
		delete(ts.timers, id)
		f()
	})
}

func (ts *timerSet) stopAll() {
	for id, t := range ts.timers {
		t.Stop()
		delete(ts.timers, id)
	}
}

func (ts *timerSet) len() int {
	return len(ts.timers)
}
