package vm

// lambdaKey identifies one active left recursion: the called rule's entry
// address and the subject position of the outermost invocation.
type lambdaKey struct {
	pA int
	s  int
}

// lambdaEntry memoizes the state of one left recursion. X is the best
// subject position any iteration has reached (lrFail until the seed
// invocation succeeds); k is the precedence the recursion was entered with.
// Each successful iteration stashes its capture buffer and match-time values
// here, to be spliced into the caller's buffer once the recursion settles.
type lambdaEntry struct {
	X int
	k int

	commitCaps   []Capture
	commitCaptop int
	commitDyn    []any
}

// commit records the just-finished iteration as the recursion's best result.
// The working buffer is handed over wholesale; the caller resets it.
func (e *lambdaEntry) commit(seed int, caps []Capture, captop int, dyn []any) {
	e.X = seed
	e.commitCaps = caps
	e.commitCaptop = captop
	e.commitDyn = dyn
}

// spliceLambda appends the entry's committed captures and values to the
// working buffer. Value-stack indices inside the committed records are
// relative to an empty stack, so they are rebased onto the current one.
func (m *Machine) spliceLambda(e *lambdaEntry) error {
	base := len(m.dyn)
	if base+len(e.commitDyn) >= maxDynValues {
		return ErrTooManyResults
	}
	if e.commitCaptop > 0 {
		if err := m.growCap(e.commitCaptop); err != nil {
			return err
		}
		n := copy(m.caps[m.captop:], e.commitCaps[:e.commitCaptop])
		for i := m.captop; i < m.captop+n; i++ {
			if m.caps[i].Kind == CapRuntime {
				m.caps[i].Idx += uint16(base)
			}
		}
		m.captop += n
	}
	m.dyn = append(m.dyn, e.commitDyn...)
	return nil
}
