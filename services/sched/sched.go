// Package sched is a small cooperative event scheduler for a single task.
//
// A task owns a 16-bit event mask. Events are posted immediately (SetEvent)
// or after a delay (ArmTimer). One goroutine delivers every pending bit in a
// single call to the task's handler, so timers that fall due together are
// coalesced into one mask. Arming a bit that already has a pending timer
// moves its deadline; there is no cancel.
package sched

import (
	"context"
	"sync"
	"time"

	"meshsense-go/x/timex"
)

// Events is a bitmask of task events.
type Events uint16

// Handler processes a delivered mask. Returned bits are posted again.
type Handler func(ev Events) Events

// Scheduler is the subset a task needs.
type Scheduler interface {
	ArmTimer(ev Events, d time.Duration)
	SetEvent(ev Events)
}

type armed struct {
	gen uint32
	t   *time.Timer
}

// Loop delivers events to a Handler from one goroutine.
type Loop struct {
	mu      sync.Mutex
	pending Events
	timers  map[Events]*armed
	gen     uint32
	stopped bool

	wake chan struct{}
}

func New() *Loop {
	return &Loop{
		timers: make(map[Events]*armed),
		wake:   make(chan struct{}, 1),
	}
}

// SetEvent posts ev for immediate delivery.
func (l *Loop) SetEvent(ev Events) {
	if ev == 0 {
		return
	}
	l.mu.Lock()
	l.pending |= ev
	l.mu.Unlock()
	l.wakeup()
}

// ArmTimer delivers ev after d. Each bit is timed independently; re-arming a
// bit replaces its previous deadline.
func (l *Loop) ArmTimer(ev Events, d time.Duration) {
	if d <= 0 {
		l.SetEvent(ev)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	for bit := Events(1); bit != 0; bit <<= 1 {
		if ev&bit == 0 {
			continue
		}
		l.gen++
		b, g := bit, l.gen
		if a := l.timers[b]; a != nil {
			a.t.Stop()
		}
		l.timers[b] = &armed{gen: g, t: time.AfterFunc(d, func() { l.fire(b, g) })}
	}
}

func (l *Loop) fire(bit Events, gen uint32) {
	l.mu.Lock()
	a := l.timers[bit]
	if a == nil || a.gen != gen || l.stopped {
		l.mu.Unlock()
		return
	}
	delete(l.timers, bit)
	l.pending |= bit
	l.mu.Unlock()
	l.wakeup()
}

// Pending reports whether any timer is armed for ev.
func (l *Loop) Pending(ev Events) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for bit, a := range l.timers {
		if ev&bit != 0 && a != nil {
			return true
		}
	}
	return l.pending&ev != 0
}

// Run delivers events to h until ctx is cancelled. Outstanding timers are
// stopped on return and later arms are ignored.
func (l *Loop) Run(ctx context.Context, h Handler) {
	idle := time.NewTimer(time.Hour)
	defer idle.Stop()
	defer l.stop()

	for {
		if ctx.Err() != nil {
			return
		}
		l.mu.Lock()
		ev := l.pending
		l.pending = 0
		l.mu.Unlock()

		if ev != 0 {
			if back := h(ev); back != 0 {
				l.SetEvent(back)
			}
			continue
		}

		timex.ResetTimer(idle, time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-idle.C:
		}
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	for bit, a := range l.timers {
		a.t.Stop()
		delete(l.timers, bit)
	}
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
