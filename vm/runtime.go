package vm

// KeepPos, returned in MatchTimeResult.Pos, keeps the subject position a
// match-time capture was invoked at.
const KeepPos = -1

// maxDynValues bounds the match-time value stack so indices always fit a
// capture record.
const maxDynValues = 1 << 15

// MatchTimeResult is the outcome of a match-time capture function.
type MatchTimeResult struct {
	// Reject fails the surrounding match; the machine backtracks as if the
	// pattern had not matched.
	Reject bool

	// Pos relocates the subject cursor to an absolute offset, which must
	// lie in [current position, end of subject]. KeepPos leaves the cursor
	// where it is.
	Pos int

	// Values become new match-time captures, bracketed by an anonymous
	// group in the capture list.
	Values []any
}

// Runtime is the host-side collaborator for match-time captures. The
// machine calls MatchTime whenever an ICloseRunTime instruction executes.
//
// id is the identity the capture was compiled with (the key of its open
// group). pos is the current subject offset. caps holds the capture records
// produced inside the group and vals the match-time values backing any
// CapRuntime records among them; both slices are only valid for the
// duration of the call, and both have already been removed from the
// machine's state when the call is made.
type Runtime interface {
	MatchTime(id uint16, input []byte, pos int, caps []Capture, vals []any) MatchTimeResult
}

// MatchTimeFunc adapts a plain function to the Runtime interface, for
// patterns whose match-time captures ignore the compiled identity.
type MatchTimeFunc func(input []byte, pos int, caps []Capture, vals []any) MatchTimeResult

// MatchTime implements Runtime.
func (f MatchTimeFunc) MatchTime(_ uint16, input []byte, pos int, caps []Capture, vals []any) MatchTimeResult {
	return f(input, pos, caps, vals)
}

// closeRunTime executes ICloseRunTime at subject position s with subject end
// e. It returns the new position, or reject=true to route into the failure
// protocol.
func (m *Machine) closeRunTime(pc, s, e int, input []byte) (ns int, reject bool, err error) {
	open := m.findOpenGroup()
	if open < 0 || m.caps[open].Kind != CapGroup {
		return 0, false, &ProgramError{PC: pc, Msg: "close of match-time capture without open group"}
	}
	if m.rt == nil {
		return 0, false, &ProgramError{PC: pc, Msg: "match-time capture without runtime"}
	}

	// Detach the group's nested captures and their match-time values; the
	// function consumes both.
	nested := m.caps[open+1 : m.captop]
	rem := 0
	for i := range nested {
		if nested[i].Kind == CapRuntime {
			rem = len(m.dyn) - int(nested[i].Idx)
			break
		}
	}
	vals := m.dyn[len(m.dyn)-rem:]
	m.captop = open + 1
	m.dyn = m.dyn[:len(m.dyn)-rem]

	res := m.rt.MatchTime(m.caps[open].Idx, input, s, nested, vals)
	if res.Reject {
		return 0, true, nil
	}
	ns = s
	if res.Pos != KeepPos {
		if res.Pos < s || res.Pos > e {
			return 0, false, ErrBadPosition
		}
		ns = res.Pos
	}

	n := len(res.Values)
	if n == 0 {
		// Nothing came back: the group leaves no trace.
		m.captop--
		return ns, false, nil
	}
	if len(m.dyn)+n >= maxDynValues {
		return 0, false, ErrTooManyResults
	}
	if err := m.growCap(n + 1); err != nil {
		return 0, false, err
	}
	m.caps[open].Idx = 0 // the group becomes anonymous
	base := len(m.dyn)
	for i := range res.Values {
		m.caps[m.captop] = Capture{S: ns, Idx: uint16(base + i), Kind: CapRuntime, Siz: 1}
		m.captop++
	}
	m.caps[m.captop] = Capture{S: ns, Kind: CapClose, Siz: 1}
	m.captop++
	m.dyn = append(m.dyn, res.Values...)
	return ns, false, nil
}
