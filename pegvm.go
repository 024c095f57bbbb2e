// Package pegvm is a virtual-machine based matching engine for Parsing
// Expression Grammars.
//
// A pattern is a precompiled instruction stream (built with the prog
// package) executed by a backtracking machine (the vm package). The engine
// supports ordered choice, rule calls, bounded left recursion, UTF-8
// codepoint ranges, character classes, and match-time captures that call
// back into user code.
//
// Basic usage:
//
//	b := prog.NewBuilder()
//	// ... emit instructions for the grammar ...
//	program, err := b.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p, err := pegvm.New(program)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	end, err := p.Match([]byte("subject"))
//	if end != pegvm.NoMatch {
//	    // input[:end] matched
//	}
//
// Matching is anchored: Match reports whether the pattern matches a prefix
// of the input. Find scans for the first position where the pattern
// matches, skipping impossible positions with a literal prefilter when the
// pattern allows one.
package pegvm

import (
	"github.com/coregx/pegvm/prefilter"
	"github.com/coregx/pegvm/vm"
)

// NoMatch is the position result of an unsuccessful match.
const NoMatch = vm.NoMatch

// Pattern is a compiled PEG pattern ready for matching.
//
// A Pattern is immutable and safe for concurrent use; each matching call
// runs on its own machine.
type Pattern struct {
	prog    *vm.Program
	pf      prefilter.Prefilter
	maxBack int
	rt      vm.Runtime
}

// Option configures a Pattern.
type Option func(*Pattern)

// WithMaxBacktrack bounds the machine's backtrack stack. Patterns that
// exceed the bound fail with a vm.StackOverflowError.
func WithMaxBacktrack(n int) Option {
	return func(p *Pattern) { p.maxBack = n }
}

// WithRuntime installs the match-time capture collaborator.
func WithRuntime(rt vm.Runtime) Option {
	return func(p *Pattern) { p.rt = rt }
}

// WithoutPrefilter disables literal prefix skipping in Find.
func WithoutPrefilter() Option {
	return func(p *Pattern) { p.pf = nil }
}

// New creates a Pattern from a built program.
func New(program *vm.Program, opts ...Option) (*Pattern, error) {
	if program == nil {
		return nil, vm.ErrEmptyProgram
	}
	p := &Pattern{
		prog:    program,
		pf:      prefilter.FromProgram(program),
		maxBack: vm.MaxBack,
	}
	for _, opt := range opts {
		opt(p)
	}
	// Build a machine once to validate the program and options up front.
	if _, err := p.machine(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pattern) machine() (*vm.Machine, error) {
	return vm.NewMachine(p.prog,
		vm.WithMaxBacktrack(p.maxBack),
		vm.WithRuntime(p.rt))
}

// Match runs the pattern anchored at the start of input. It returns the
// offset one past the matched prefix, or NoMatch. The error is non-nil only
// for fatal conditions (resource exhaustion, match-time contract
// violations, corrupt programs).
func (p *Pattern) Match(input []byte) (int, error) {
	return p.MatchAt(input, 0)
}

// MatchAt runs the pattern anchored at position at.
func (p *Pattern) MatchAt(input []byte, at int) (int, error) {
	m, err := p.machine()
	if err != nil {
		return NoMatch, err
	}
	return m.Match(input, at, len(input))
}

// MatchCaptures is Match, additionally returning the capture records and
// any match-time values of a successful match.
func (p *Pattern) MatchCaptures(input []byte) (int, []vm.Capture, []any, error) {
	m, err := p.machine()
	if err != nil {
		return NoMatch, nil, nil, err
	}
	end, err := m.Match(input, 0, len(input))
	if err != nil || end == NoMatch {
		return end, nil, nil, err
	}
	return end, m.Captures(), m.Values(), nil
}

// Find scans input for the first position where the pattern matches,
// returning the match bounds or (NoMatch, NoMatch). When the pattern opens
// with literal alternatives, a prefilter skips positions that cannot start
// a match.
func (p *Pattern) Find(input []byte) (start, end int, err error) {
	m, merr := p.machine()
	if merr != nil {
		return NoMatch, NoMatch, merr
	}
	for at := 0; at <= len(input); at++ {
		if p.pf != nil {
			at = p.pf.Find(input, at)
			if at < 0 {
				break
			}
		}
		end, err := m.Match(input, at, len(input))
		if err != nil {
			return NoMatch, NoMatch, err
		}
		if end != NoMatch {
			return at, end, nil
		}
	}
	return NoMatch, NoMatch, nil
}
