package vm

// Sentinel values for frame fields. A frame with s == noSave is a pending
// return; a frame with X == lrNone is not a left-recursion entry; lrFail
// marks a left-recursive invocation that has not produced a seed yet.
const (
	noSave = -1
	lrNone = -2
	lrFail = -1
)

// frame is one backtrack stack entry. Three logical variants share the
// layout:
//
//   - return frame:        s == noSave, p is the return address
//   - choice frame:        s is the saved position, p is the fail target,
//     caplevel the capture truncation point
//   - left-recursion frame: s is the original call position, p the return
//     address, pA the rule entry, X the best seed position so far (or lrFail)
type frame struct {
	s        int
	p        int
	pA       int
	caplevel int
	X        int
}

// isChoice reports whether the frame restores a position on failure.
func (f *frame) isChoice() bool { return f.s != noSave && f.X == lrNone }

// Default stack sizing. The maximum is the caller-configurable bound on
// recursion and pending choices; the initial arena avoids growth for
// typical patterns.
const (
	// MaxBack is the default backtrack stack limit in frames.
	MaxBack = 400

	initBack    = MaxBack
	initCapSize = 32
)

// pushFrame appends a frame, doubling the stack up to the configured
// maximum.
func (m *Machine) pushFrame(f frame) error {
	if len(m.stack) == cap(m.stack) {
		n := cap(m.stack)
		if n >= m.maxBack {
			return &StackOverflowError{Limit: m.maxBack}
		}
		size := 2 * n
		if size > m.maxBack {
			size = m.maxBack
		}
		grown := make([]frame, n, size)
		copy(grown, m.stack)
		m.stack = grown
	}
	m.stack = append(m.stack, f)
	return nil
}

// popFrame removes and returns the top frame. The bottom sentinel frame
// keeps the stack non-empty until the failure protocol pops it on the way
// to IGiveup.
func (m *Machine) popFrame() frame {
	f := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return f
}

// topFrame returns the top frame for in-place update.
func (m *Machine) topFrame() *frame {
	return &m.stack[len(m.stack)-1]
}
