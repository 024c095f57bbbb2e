package vm

// NoMatch is returned by Match when the pattern does not match. It is a
// result, not an error: Match returns a nil error alongside it.
const NoMatch = -1

// Machine executes one compiled program. A Machine is not safe for
// concurrent use; create one per goroutine. Buffers are retained between
// calls to Match, so reusing a Machine amortizes allocation.
type Machine struct {
	prog    *Program
	rt      Runtime
	maxBack int

	stack    []frame
	caps     []Capture
	captop   int
	dyn      []any
	capstack []capLevel
	lambda   map[lambdaKey]*lambdaEntry
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxBacktrack bounds the backtrack stack. Exceeding the bound aborts
// the match with a StackOverflowError.
func WithMaxBacktrack(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxBack = n
		}
	}
}

// WithRuntime installs the match-time capture collaborator. Programs that
// execute ICloseRunTime without one fail with a ProgramError.
func WithRuntime(rt Runtime) Option {
	return func(m *Machine) { m.rt = rt }
}

// NewMachine creates a machine for the given program.
func NewMachine(prog *Program, opts ...Option) (*Machine, error) {
	if prog == nil || len(prog.code) == 0 {
		return nil, ErrEmptyProgram
	}
	if prog.code[len(prog.code)-1].Code() != IGiveup {
		return nil, ErrNoSentinel
	}
	m := &Machine{
		prog:    prog,
		maxBack: MaxBack,
	}
	for _, opt := range opts {
		opt(m)
	}
	initial := initBack
	if initial > m.maxBack {
		initial = m.maxBack
	}
	m.stack = make([]frame, 0, initial)
	m.caps = make([]Capture, initCapSize)
	return m, nil
}

// Captures returns the records of the last successful Match, terminated by
// a CapClose record with S == -1. The slice is valid until the next call to
// Match.
func (m *Machine) Captures() []Capture {
	return m.caps[:m.captop+1]
}

// Values returns the match-time values produced by the last successful
// Match, in the order CapRuntime records index them.
func (m *Machine) Values() []any { return m.dyn }

// reset prepares the machine for a new match starting at s.
func (m *Machine) reset(s int) {
	m.stack = m.stack[:0]
	m.captop = 0
	if len(m.caps) < initCapSize {
		m.caps = make([]Capture, initCapSize)
	}
	m.dyn = nil
	m.capstack = m.capstack[:0]
	if len(m.lambda) > 0 || m.lambda == nil {
		m.lambda = make(map[lambdaKey]*lambdaEntry)
	}
	// The bottom frame is an ordinary choice entry whose fail target is the
	// trailing IGiveup word, so overall failure needs no special casing in
	// the failure protocol.
	m.stack = append(m.stack, frame{s: s, p: len(m.prog.code) - 1, caplevel: 0, X: lrNone})
}

// Match runs the program against input[s:e], anchored at s. It returns the
// subject offset one past the matched prefix, or NoMatch. The error is
// non-nil only for fatal conditions: resource exhaustion, a contract
// violation by a match-time capture, or a corrupt program.
func (m *Machine) Match(input []byte, s, e int) (int, error) {
	if s < 0 || s > e || e > len(input) {
		return NoMatch, &ProgramError{PC: 0, Msg: "match bounds outside subject"}
	}
	m.reset(s)
	code := m.prog.code
	pc := 0

	for {
		inst := code[pc]
		switch inst.Code() {
		case IEnd:
			if len(m.stack) != 1 {
				return NoMatch, &ProgramError{PC: pc, Msg: "end with pending backtrack entries"}
			}
			m.caps[m.captop] = Capture{S: -1, Kind: CapClose, Siz: 1}
			return s, nil

		case IGiveup:
			if len(m.stack) != 0 {
				return NoMatch, &ProgramError{PC: pc, Msg: "giveup with pending backtrack entries"}
			}
			return NoMatch, nil

		case IRet:
			fr := m.topFrame()
			if fr.X == lrNone {
				pc = fr.p
				m.popFrame()
				continue
			}
			if fr.X == lrFail || s > fr.X {
				// The iteration advanced the seed: commit it and rerun the
				// rule body from the original position.
				ent := m.lambda[lambdaKey{pA: fr.pA, s: fr.s}]
				if ent == nil {
					return NoMatch, &ProgramError{PC: pc, Msg: "left recursion without memo entry"}
				}
				fr.X = s
				fr.caplevel = m.captop
				ent.commit(s, m.caps, m.captop, m.dyn)
				pc = fr.pA
				s = fr.s
				m.caps = make([]Capture, initCapSize)
				m.captop = 0
				m.dyn = nil
				continue
			}
			// No further progress: the recursion has settled on fr.X.
			fr2 := m.popFrame()
			pc = fr2.p
			s = fr2.X
			m.popCapLevel()
			key := lambdaKey{pA: fr2.pA, s: fr2.s}
			ent := m.lambda[key]
			if ent == nil {
				return NoMatch, &ProgramError{PC: pc, Msg: "left recursion without memo entry"}
			}
			if err := m.spliceLambda(ent); err != nil {
				return NoMatch, err
			}
			delete(m.lambda, key)
			continue

		case IAny:
			if s < e {
				pc++
				s++
				continue
			}

		case IChar:
			if s < e && input[s] == inst.Aux() {
				pc++
				s++
				continue
			}

		case ISet:
			if s < e && hasByte(code, pc+1, input[s]) {
				pc += CharsetInstSize
				s++
				continue
			}

		case ITestAny:
			if s < e {
				pc += 2
			} else {
				pc += code[pc+1].Offset()
			}
			continue

		case ITestChar:
			if s < e && input[s] == inst.Aux() {
				pc += 2
			} else {
				pc += code[pc+1].Offset()
			}
			continue

		case ITestSet:
			if s < e && hasByte(code, pc+2, input[s]) {
				pc += 1 + CharsetInstSize
			} else {
				pc += code[pc+1].Offset()
			}
			continue

		case ISpan:
			for s < e && hasByte(code, pc+1, input[s]) {
				s++
			}
			pc += CharsetInstSize
			continue

		case IUTFR:
			if s < e {
				cp, size, ok := utf8Decode(input[s:e])
				if ok && int32(code[pc+1].Offset()) <= cp && cp <= inst.utfTo() {
					pc += 2
					s += size
					continue
				}
			}

		case IBehind:
			n := int(inst.Aux())
			if n <= s {
				s -= n
				pc++
				continue
			}

		case IJmp:
			pc += code[pc+1].Offset()
			continue

		case IChoice:
			f := frame{s: s, p: pc + code[pc+1].Offset(), caplevel: m.captop, X: lrNone}
			if err := m.pushFrame(f); err != nil {
				return NoMatch, err
			}
			pc += 2
			continue

		case ICall:
			k := int(inst.Aux())
			if k == 0 {
				if err := m.pushFrame(frame{s: noSave, p: pc + 2, X: lrNone}); err != nil {
					return NoMatch, err
				}
				pc += code[pc+1].Offset()
				continue
			}
			// Left-recursive call at precedence k.
			pA := pc + code[pc+1].Offset()
			key := lambdaKey{pA: pA, s: s}
			ent, seen := m.lambda[key]
			switch {
			case !seen:
				// Seed invocation: remember the recursion, shelve the
				// caller's captures, and run the rule on a fresh buffer.
				m.lambda[key] = &lambdaEntry{X: lrFail, k: k}
				if err := m.pushCapLevel(); err != nil {
					return NoMatch, err
				}
				f := frame{s: s, p: pc + 2, pA: pA, caplevel: 0, X: lrFail}
				if err := m.pushFrame(f); err != nil {
					return NoMatch, err
				}
				pc = pA
				continue
			case ent.X == lrFail || k < ent.k:
				// Re-entry before any seed, or at lower precedence: the
				// call fails outright.
			default:
				// Reuse the memoized result.
				if err := m.spliceLambda(ent); err != nil {
					return NoMatch, err
				}
				pc += 2
				s = ent.X
				continue
			}

		case ICommit:
			m.popFrame()
			pc += code[pc+1].Offset()
			continue

		case IPartialCommit:
			fr := m.topFrame()
			fr.s = s
			fr.caplevel = m.captop
			pc += code[pc+1].Offset()
			continue

		case IBackCommit:
			fr := m.popFrame()
			s = fr.s
			m.captop = fr.caplevel
			pc += code[pc+1].Offset()
			continue

		case IFailTwice:
			fr := m.popFrame()
			if !fr.isChoice() {
				return NoMatch, &ProgramError{PC: pc, Msg: "failtwice over non-choice entry"}
			}

		case IFail:
			// handled by the failure protocol below

		case ICloseRunTime:
			ns, rejected, err := m.closeRunTime(pc, s, e, input)
			if err != nil {
				return NoMatch, err
			}
			if !rejected {
				s = ns
				pc++
				continue
			}

		case ICloseCapture:
			if m.captop == 0 {
				return NoMatch, &ProgramError{PC: pc, Msg: "close without open capture"}
			}
			last := &m.caps[m.captop-1]
			if last.open() && s-last.S < 255 {
				// Coalesce the open record into a full capture.
				last.Siz = byte(s - last.S + 1)
				pc++
				continue
			}
			if err := m.pushCapture(Capture{S: s, Idx: inst.Key(), Kind: inst.capKind(), Siz: 1}); err != nil {
				return NoMatch, err
			}
			pc++
			continue

		case IOpenCapture:
			if err := m.pushCapture(Capture{S: s, Idx: inst.Key(), Kind: inst.capKind(), Siz: 0}); err != nil {
				return NoMatch, err
			}
			pc++
			continue

		case IFullCapture:
			off := inst.capOff()
			c := Capture{S: s - off, Idx: inst.Key(), Kind: inst.capKind(), Siz: byte(off + 1)}
			if err := m.pushCapture(c); err != nil {
				return NoMatch, err
			}
			pc++
			continue

		case IEmpty:
			pc++
			continue

		default:
			return NoMatch, &ProgramError{PC: pc, Msg: "unexpected opcode " + inst.Code().String()}
		}

		// Every branch that falls out of the switch has failed.
		var err error
		pc, s, err = m.fail()
		if err != nil {
			return NoMatch, err
		}
	}
}

// fail is the failure protocol: unwind the backtrack stack to the nearest
// entry that can restore a position, undoing left-recursion bookkeeping on
// the way, and resume there.
func (m *Machine) fail() (pc, s int, err error) {
	var fr frame
	for {
		fr = m.popFrame()
		if fr.X == lrFail {
			// A left-recursive call failed before producing any seed: put
			// the caller's captures back and forget the recursion.
			m.popCapLevel()
			delete(m.lambda, lambdaKey{pA: fr.pA, s: fr.s})
			continue
		}
		if fr.s != noSave {
			break
		}
	}
	s = fr.s
	if len(m.dyn) > 0 {
		m.removeDynCaps(fr.caplevel)
	}
	pc = fr.p
	if fr.X != lrNone {
		// A left recursion with at least one committed iteration has run
		// out of progress: its best seed is the result.
		s = fr.X
		m.popCapLevel()
		key := lambdaKey{pA: fr.pA, s: fr.s}
		ent := m.lambda[key]
		if ent == nil {
			return 0, 0, &ProgramError{PC: pc, Msg: "left recursion without memo entry"}
		}
		if err := m.spliceLambda(ent); err != nil {
			return 0, 0, err
		}
		delete(m.lambda, key)
		return pc, s, nil
	}
	m.captop = fr.caplevel
	return pc, s, nil
}
