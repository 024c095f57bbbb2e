// Package vm implements a stack-based virtual machine for Parsing Expression
// Grammars. A compiled pattern is a dense array of 32-bit instruction words;
// the machine executes it against a byte slice, producing either a no-match
// result or an end position together with an ordered list of capture records.
//
// The machine supports ordered choice with backtracking, subroutine-style
// rule calls, bounded left recursion (seed-and-grow), UTF-8 codepoint range
// tests, 256-bit character classes, and match-time captures that call back
// into user code.
//
// Producing instruction streams is the job of the prog package; turning the
// capture records into user-visible values is left to the caller.
package vm

// Opcode identifies one VM instruction.
type Opcode uint8

const (
	IAny           Opcode = iota // consume one byte, fail at end of input
	IChar                        // consume one byte equal to aux
	ISet                         // consume one byte contained in the set bitmap
	ITestAny                     // lookahead: jump by offset at end of input
	ITestChar                    // lookahead: jump by offset unless byte equals aux
	ITestSet                     // lookahead: jump by offset unless byte in set
	ISpan                        // consume the longest run of bytes in the set
	IUTFR                        // consume one UTF-8 sequence in [offset, key<<8|aux]
	IBehind                      // move aux bytes backward, fail if not possible
	IRet                         // return from a rule
	IEnd                         // successful end of pattern
	IChoice                      // push a backtrack entry; failure resumes at offset
	IJmp                         // jump by offset
	ICall                        // call rule at offset; aux > 0 marks a left-recursive call
	IOpenCall                    // unresolved rule reference; must not reach the machine
	ICommit                      // pop the backtrack entry and jump by offset
	IPartialCommit               // update the top backtrack entry and jump by offset
	IBackCommit                  // restore the top backtrack entry and jump by offset
	IFailTwice                   // pop one backtrack entry, then fail
	IFail                        // backtrack
	IGiveup                      // bottom-of-stack sentinel: overall match failure
	IFullCapture                 // capture the last aux>>4 bytes
	IOpenCapture                 // start a capture
	ICloseCapture                // close the innermost open capture
	ICloseRunTime                // close a match-time capture, calling user code
	IEmpty                       // padding left by pattern optimizations
)

var opcodeNames = [...]string{
	IAny: "any", IChar: "char", ISet: "set", ITestAny: "testany",
	ITestChar: "testchar", ITestSet: "testset", ISpan: "span", IUTFR: "utfr",
	IBehind: "behind", IRet: "ret", IEnd: "end", IChoice: "choice",
	IJmp: "jmp", ICall: "call", IOpenCall: "opencall", ICommit: "commit",
	IPartialCommit: "partialcommit", IBackCommit: "backcommit",
	IFailTwice: "failtwice", IFail: "fail", IGiveup: "giveup",
	IFullCapture: "fullcapture", IOpenCapture: "opencapture",
	ICloseCapture: "closecapture", ICloseRunTime: "closeruntime",
	IEmpty: "empty",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "unknown"
}

// Instruction is one 32-bit word of a compiled program.
//
// An opcode word packs code (bits 0-7), aux (bits 8-15) and key (bits 16-31).
// The word after a jumping opcode is reinterpreted as a signed displacement
// in words, relative to the opcode. The eight words after ISet/ISpan (or the
// offset word of ITestSet) are reinterpreted as a 256-bit character bitmap.
type Instruction uint32

// Encode builds an opcode word.
func Encode(code Opcode, aux byte, key uint16) Instruction {
	return Instruction(code) | Instruction(aux)<<8 | Instruction(key)<<16
}

// EncodeOffset builds a displacement word.
func EncodeOffset(off int32) Instruction { return Instruction(uint32(off)) }

// Code returns the opcode of an opcode word.
func (i Instruction) Code() Opcode { return Opcode(i & 0xff) }

// Aux returns the 8-bit operand of an opcode word.
func (i Instruction) Aux() byte { return byte(i >> 8) }

// Key returns the 16-bit operand of an opcode word.
func (i Instruction) Key() uint16 { return uint16(i >> 16) }

// Offset reinterprets the word as a signed displacement.
func (i Instruction) Offset() int { return int(int32(uint32(i))) }

// Capture instructions pack the capture kind in the low nibble of aux and,
// for IFullCapture, the byte offset in the high nibble.

func (i Instruction) capKind() CapKind { return CapKind(i.Aux() & 0x0f) }
func (i Instruction) capOff() int      { return int(i.Aux() >> 4) }

// utfTo returns the 24-bit upper bound of an IUTFR instruction.
func (i Instruction) utfTo() int32 { return int32(i.Key())<<8 | int32(i.Aux()) }

const (
	// charsetWords is the number of bitmap words in a character set.
	charsetWords = 256 / 32

	// CharsetInstSize is the number of instruction words occupied by an
	// ISet or ISpan: the opcode word plus the bitmap.
	CharsetInstSize = 1 + charsetWords
)

// Charset is a set of byte values, stored as a 256-bit bitmap in the same
// word layout the instruction stream uses.
type Charset [charsetWords]uint32

// Add adds a single byte to the set.
func (c *Charset) Add(b byte) { c[b>>5] |= 1 << (b & 31) }

// AddRange adds every byte in [lo, hi] to the set.
func (c *Charset) AddRange(lo, hi byte) {
	for b := int(lo); b <= int(hi); b++ {
		c.Add(byte(b))
	}
}

// Has reports whether b is in the set.
func (c *Charset) Has(b byte) bool { return c[b>>5]&(1<<(b&31)) != 0 }

// Words returns the bitmap as instruction words, ready for emission.
func (c *Charset) Words() [charsetWords]Instruction {
	var w [charsetWords]Instruction
	for i, v := range c {
		w[i] = Instruction(v)
	}
	return w
}

// hasByte tests a byte against the bitmap stored at code[base:].
func hasByte(code []Instruction, base int, b byte) bool {
	return code[base+int(b>>5)]&(1<<(b&31)) != 0
}

// Program is a validated instruction stream. The last word is always the
// IGiveup sentinel the machine's bottom backtrack entry points at.
type Program struct {
	code []Instruction
}

// NewProgram wraps an instruction stream. The stream must be non-empty and
// terminated by an IGiveup word; the prog package emits this form.
func NewProgram(code []Instruction) (*Program, error) {
	if len(code) == 0 {
		return nil, ErrEmptyProgram
	}
	if code[len(code)-1].Code() != IGiveup {
		return nil, ErrNoSentinel
	}
	return &Program{code: code}, nil
}

// Code returns the raw instruction stream. Callers must not modify it.
func (p *Program) Code() []Instruction { return p.code }

// Len returns the number of instruction words, excluding the sentinel.
func (p *Program) Len() int { return len(p.code) - 1 }
