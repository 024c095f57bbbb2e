// Package prefilter provides fast candidate filtering for unanchored
// pattern search.
//
// A PEG program is anchored: it either matches at a given position or it
// does not. Unanchored search therefore tries successive start positions,
// and most of them fail on the first byte. When the program's entry
// instructions pin the match to a set of literal prefixes, a prefilter can
// skip the positions that cannot possibly match: single candidate bytes are
// found with SWAR byte search, and larger prefix sets with an Aho-Corasick
// automaton.
//
// A prefilter only proposes candidates. The caller must verify each one by
// running the program at that position.
package prefilter

import (
	"github.com/coregx/ahocorasick"

	"github.com/coregx/pegvm/simd"
	"github.com/coregx/pegvm/vm"
)

// Extraction bounds. Longer prefixes make the automaton more selective but
// cost more to extract and build; more alternatives than maxPrefixes means
// the pattern is unlikely to be literal-led at all.
const (
	maxPrefixLen = 8
	maxPrefixes  = 32
)

// Prefilter proposes candidate start positions for an unanchored search.
type Prefilter interface {
	// Find returns the index of the first candidate at or after start, or
	// -1 if no candidate exists. A candidate is a position where one of the
	// pattern's literal prefixes occurs; the caller must still verify it.
	Find(haystack []byte, start int) int
}

// FromProgram inspects a program's entry instructions and builds a
// prefilter for it, or returns nil when the program is not literal-led and
// every position must be tried.
func FromProgram(p *vm.Program) Prefilter {
	lits, ok := literalPrefixes(p.Code())
	if !ok {
		return nil
	}
	if allSingleBytes(lits) {
		switch len(lits) {
		case 1:
			return &memchrPrefilter{b: lits[0][0]}
		case 2:
			return &memchr2Prefilter{b1: lits[0][0], b2: lits[1][0]}
		case 3:
			return &memchr3Prefilter{b1: lits[0][0], b2: lits[1][0], b3: lits[2][0]}
		}
	}
	builder := ahocorasick.NewBuilder()
	for _, lit := range lits {
		builder.AddPattern(lit)
	}
	auto, err := builder.Build()
	if err != nil {
		return nil
	}
	return &ahoPrefilter{auto: auto}
}

// literalPrefixes walks the head of the program, collecting the literal
// prefix of every ordered-choice alternative. It reports ok == false when
// any alternative does not start with a literal, in which case no prefilter
// can be built.
func literalPrefixes(code []vm.Instruction) ([][]byte, bool) {
	var out [][]byte
	pc := 0
	for {
		if len(out) >= maxPrefixes {
			return nil, false
		}
		if code[pc].Code() == vm.IChoice {
			lit := literalRun(code, pc+2)
			if len(lit) == 0 {
				return nil, false
			}
			out = append(out, lit)
			off := code[pc+1].Offset()
			if off <= 0 || pc+off >= len(code) {
				return nil, false
			}
			pc += off
			continue
		}
		lit := literalRun(code, pc)
		if len(lit) == 0 {
			return nil, false
		}
		return append(out, lit), true
	}
}

// literalRun collects the run of bytes the program unconditionally consumes
// starting at pc. Capture opens do not consume input and are skipped.
func literalRun(code []vm.Instruction, pc int) []byte {
	var lit []byte
	for pc < len(code) && len(lit) < maxPrefixLen {
		switch code[pc].Code() {
		case vm.IChar:
			lit = append(lit, code[pc].Aux())
			pc++
		case vm.IOpenCapture:
			pc++
		default:
			return lit
		}
	}
	return lit
}

func allSingleBytes(lits [][]byte) bool {
	for _, lit := range lits {
		if len(lit) != 1 {
			return false
		}
	}
	return true
}

// memchrPrefilter finds a single candidate byte.
type memchrPrefilter struct {
	b byte
}

func (p *memchrPrefilter) Find(haystack []byte, start int) int {
	if start < 0 || start >= len(haystack) {
		return -1
	}
	i := simd.Memchr(haystack[start:], p.b)
	if i < 0 {
		return -1
	}
	return start + i
}

// memchr2Prefilter finds either of two candidate bytes in one pass.
type memchr2Prefilter struct {
	b1, b2 byte
}

func (p *memchr2Prefilter) Find(haystack []byte, start int) int {
	if start < 0 || start >= len(haystack) {
		return -1
	}
	i := simd.Memchr2(haystack[start:], p.b1, p.b2)
	if i < 0 {
		return -1
	}
	return start + i
}

// memchr3Prefilter finds any of three candidate bytes in one pass.
type memchr3Prefilter struct {
	b1, b2, b3 byte
}

func (p *memchr3Prefilter) Find(haystack []byte, start int) int {
	if start < 0 || start >= len(haystack) {
		return -1
	}
	i := simd.Memchr3(haystack[start:], p.b1, p.b2, p.b3)
	if i < 0 {
		return -1
	}
	return start + i
}

// ahoPrefilter finds any of the extracted literal prefixes with an
// Aho-Corasick automaton.
type ahoPrefilter struct {
	auto *ahocorasick.Automaton
}

func (p *ahoPrefilter) Find(haystack []byte, start int) int {
	if start < 0 || start >= len(haystack) {
		return -1
	}
	m := p.auto.Find(haystack, start)
	if m == nil {
		return -1
	}
	return m.Start
}
