package sched

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler driven by the caller. It keeps a
// virtual clock; Advance delivers due timers in deadline order, coalescing
// timers that share a deadline into one mask.
type Manual struct {
	now     time.Duration
	pending Events
	timers  map[Events]time.Duration // bit -> absolute deadline

	Arms []Arm // every ArmTimer call, in order
	Sets []Events
}

// Arm records one ArmTimer call.
type Arm struct {
	Ev    Events
	Delay time.Duration
}

func NewManual() *Manual {
	return &Manual{timers: make(map[Events]time.Duration)}
}

func (m *Manual) SetEvent(ev Events) {
	m.Sets = append(m.Sets, ev)
	m.pending |= ev
}

func (m *Manual) ArmTimer(ev Events, d time.Duration) {
	m.Arms = append(m.Arms, Arm{Ev: ev, Delay: d})
	for bit := Events(1); bit != 0; bit <<= 1 {
		if ev&bit != 0 {
			m.timers[bit] = m.now + d
		}
	}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Duration { return m.now }

// Armed returns the delay of the pending timer for bit, if any.
func (m *Manual) Armed(bit Events) (time.Duration, bool) {
	due, ok := m.timers[bit]
	return due - m.now, ok
}

// LastArm returns the most recent ArmTimer call.
func (m *Manual) LastArm() (Arm, bool) {
	if len(m.Arms) == 0 {
		return Arm{}, false
	}
	return m.Arms[len(m.Arms)-1], true
}

// TakePending returns and clears immediately-posted events.
func (m *Manual) TakePending() Events {
	ev := m.pending
	m.pending = 0
	return ev
}

// Step delivers pending events, or if none, the next due timer group.
// It reports false when nothing is left to deliver.
func (m *Manual) Step(h Handler) bool {
	if ev := m.TakePending(); ev != 0 {
		m.pending |= h(ev)
		return true
	}
	if len(m.timers) == 0 {
		return false
	}
	type due struct {
		bit Events
		at  time.Duration
	}
	var all []due
	for bit, at := range m.timers {
		all = append(all, due{bit, at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })

	m.now = all[0].at
	var ev Events
	for _, d := range all {
		if d.at != m.now {
			break
		}
		ev |= d.bit
		delete(m.timers, d.bit)
	}
	m.pending |= h(ev)
	return true
}

// Advance moves the clock forward by d, delivering every event that falls
// due on the way.
func (m *Manual) Advance(d time.Duration, h Handler) {
	end := m.now + d
	for {
		if ev := m.TakePending(); ev != 0 {
			m.pending |= h(ev)
			continue
		}
		next, ok := m.nextDue()
		if !ok || next > end {
			break
		}
		m.Step(h)
	}
	m.now = end
}

func (m *Manual) nextDue() (time.Duration, bool) {
	var min time.Duration
	found := false
	for _, at := range m.timers {
		if !found || at < min {
			min, found = at, true
		}
	}
	return min, found
}
