package vm

import "math"

// CapKind classifies a capture record. The machine itself distinguishes only
// CapClose, CapGroup and CapRuntime; the remaining kinds are carried through
// untouched for the caller's post-processing step.
type CapKind uint8

const (
	CapClose CapKind = iota
	CapPosition
	CapConst
	CapBackref
	CapArg
	CapSimple
	CapTable
	CapFunction
	CapQuery
	CapString
	CapNum
	CapSubst
	CapFold
	CapRuntime
	CapGroup
)

var capKindNames = [...]string{
	CapClose: "close", CapPosition: "position", CapConst: "constant",
	CapBackref: "backref", CapArg: "argument", CapSimple: "simple",
	CapTable: "table", CapFunction: "function", CapQuery: "query",
	CapString: "string", CapNum: "number", CapSubst: "substitution",
	CapFold: "fold", CapRuntime: "runtime", CapGroup: "group",
}

func (k CapKind) String() string {
	if int(k) < len(capKindNames) {
		return capKindNames[k]
	}
	return "unknown"
}

// Capture records a region of the subject to be materialized later.
//
// Siz encodes the record's state: 0 means the capture is still open, any
// other value means closed with a span of Siz-1 bytes. For CapRuntime
// records, Idx is the index of the associated value in the machine's
// match-time value stack; for other kinds it is an opaque identity assigned
// at compile time.
type Capture struct {
	// S is the subject offset at which the capture opens. It is -1 in the
	// terminating record written on success.
	S int

	// Idx is the capture identity, or the value-stack index for CapRuntime.
	Idx uint16

	// Kind classifies the record.
	Kind CapKind

	// Siz is 0 for an open capture, otherwise 1 + the captured byte length.
	Siz byte
}

// open reports whether the record is still waiting for its close.
func (c *Capture) open() bool { return c.Siz == 0 }

// maxCaptures bounds the capture buffer size in records.
const maxCaptures = math.MaxInt32

// growCap ensures the capture buffer can take n more records and still keep
// one free slot. Several opcodes append to the buffer, so the machine
// maintains the free slot invariant instead of checking before every write.
func (m *Machine) growCap(n int) error {
	if len(m.caps)-m.captop > n {
		return nil
	}
	need := m.captop + n + 1
	var size int
	switch {
	case need < maxCaptures/2:
		size = need * 2
	case need < maxCaptures/9*8:
		size = need + need/8
	default:
		return ErrTooManyCaptures
	}
	grown := make([]Capture, size)
	copy(grown, m.caps[:m.captop])
	m.caps = grown
	return nil
}

// pushCapture appends a record, keeping the free slot invariant.
func (m *Machine) pushCapture(c Capture) error {
	m.caps[m.captop] = c
	m.captop++
	return m.growCap(0)
}

// findOpenGroup walks the buffer backward to the group record whose
// match-time close is executing: the nearest open record once pending closes
// are balanced out. Closed full captures are skipped. Returns -1 if the
// buffer holds no open record, which means the program is corrupt.
func (m *Machine) findOpenGroup() int {
	pending := 0
	for i := m.captop - 1; i >= 0; i-- {
		c := &m.caps[i]
		if c.Kind == CapClose {
			pending++
		} else if c.open() {
			if pending == 0 {
				return i
			}
			pending--
		}
	}
	return -1
}

// capLevel snapshots the matcher's capture state when a left-recursive seed
// call begins: the working buffer, its occupancy, and the match-time values
// accumulated so far.
type capLevel struct {
	caps   []Capture
	captop int
	dyn    []any
}

// maxCapLevels bounds the capture stack depth.
const maxCapLevels = 1 << 30

// pushCapLevel saves the working capture buffer and value stack and resets
// both, so a left-recursive rule body starts from a clean slate.
func (m *Machine) pushCapLevel() error {
	if len(m.capstack) >= maxCapLevels {
		return ErrTooManyCaptureLists
	}
	m.capstack = append(m.capstack, capLevel{caps: m.caps, captop: m.captop, dyn: m.dyn})
	m.caps = make([]Capture, initCapSize)
	m.captop = 0
	m.dyn = nil
	return nil
}

// popCapLevel restores the outer capture buffer and value stack, discarding
// the working state.
func (m *Machine) popCapLevel() {
	lvl := m.capstack[len(m.capstack)-1]
	m.capstack = m.capstack[:len(m.capstack)-1]
	m.caps = lvl.caps
	m.captop = lvl.captop
	m.dyn = lvl.dyn
}

// removeDynCaps drops the match-time values recorded by captures at or above
// level, which are being discarded by a backtrack.
func (m *Machine) removeDynCaps(level int) {
	for i := level; i < m.captop; i++ {
		if m.caps[i].Kind == CapRuntime {
			m.dyn = m.dyn[:int(m.caps[i].Idx)]
			return
		}
	}
}
