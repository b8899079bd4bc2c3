package mesh

// SeqWindowSize is how far back a tid is still tracked.
const SeqWindowSize = 16

// SeqWindow filters repeated and stale tids on the receiving side. A tid
// ahead of the newest one (modular distance below 128) is new; one within
// SeqWindowSize behind it is accepted once; anything else is taken as a
// sender restart.
type SeqWindow struct {
	last  uint8
	seen  uint16 // bit i: tid last-i already accepted
	valid bool
}

// Accept reports whether tid should be processed and records it.
func (w *SeqWindow) Accept(tid uint8) bool {
	if !w.valid {
		w.last, w.seen, w.valid = tid, 1, true
		return true
	}
	if ahead := tid - w.last; ahead != 0 && ahead < 128 {
		if ahead >= SeqWindowSize {
			w.seen = 0
		} else {
			w.seen <<= ahead
		}
		w.seen |= 1
		w.last = tid
		return true
	}
	back := w.last - tid
	if back < SeqWindowSize {
		bit := uint16(1) << back
		if w.seen&bit != 0 {
			return false
		}
		w.seen |= bit
		return true
	}
	w.last, w.seen = tid, 1
	return true
}

// Last returns the newest accepted tid.
func (w *SeqWindow) Last() (uint8, bool) { return w.last, w.valid }

func (w *SeqWindow) Reset() { *w = SeqWindow{} }
