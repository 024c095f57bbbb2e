// Package prog constructs instruction streams for the pegvm virtual
// machine. It is a low-level assembler: callers emit opcodes one by one,
// using labels for jump targets and rule entries, and Build resolves every
// displacement and validates the result.
//
// The package does not compile PEG syntax; it is the layer a pattern
// compiler (or a test) sits on top of.
package prog

import (
	"fmt"

	"github.com/coregx/pegvm/internal/conv"
	"github.com/coregx/pegvm/vm"
)

// Label names a position in the program being built. Labels are created
// with Builder.Label and bound with Builder.Mark; a label may be referenced
// before it is bound.
type Label int

const unbound = -1

// BuildError reports an invalid program at Build time.
type BuildError struct {
	Message string
	Label   Label
}

// Error implements the error interface
func (e *BuildError) Error() string {
	if e.Label >= 0 {
		return fmt.Sprintf("program build error at label %d: %s", e.Label, e.Message)
	}
	return fmt.Sprintf("program build error: %s", e.Message)
}

// fixup records a displacement word waiting for its label to be bound.
// The displacement is relative to the opcode word at base.
type fixup struct {
	base  int
	word  int
	label Label
}

// Builder accumulates instruction words.
type Builder struct {
	code   []vm.Instruction
	labels []int
	fixups []fixup
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{code: make([]vm.Instruction, 0, 16)}
}

// Here returns the current emission position, in words.
func (b *Builder) Here() int { return len(b.code) }

// Label creates a fresh, unbound label.
func (b *Builder) Label() Label {
	b.labels = append(b.labels, unbound)
	return Label(len(b.labels) - 1)
}

// Mark binds l to the current emission position.
func (b *Builder) Mark(l Label) {
	b.labels[l] = len(b.code)
}

func (b *Builder) emit(code vm.Opcode, aux byte, key uint16) {
	b.code = append(b.code, vm.Encode(code, aux, key))
}

// emitJump emits an opcode word followed by a displacement word targeting l.
func (b *Builder) emitJump(code vm.Opcode, aux byte, key uint16, l Label) {
	base := len(b.code)
	b.emit(code, aux, key)
	b.code = append(b.code, 0)
	b.fixups = append(b.fixups, fixup{base: base, word: base + 1, label: l})
}

func (b *Builder) emitCharset(code vm.Opcode, cs vm.Charset) {
	b.emit(code, 0, 0)
	for _, w := range cs.Words() {
		b.code = append(b.code, w)
	}
}

// Any emits IAny.
func (b *Builder) Any() { b.emit(vm.IAny, 0, 0) }

// Char emits IChar, matching the single byte c.
func (b *Builder) Char(c byte) { b.emit(vm.IChar, c, 0) }

// Set emits ISet with the given byte set.
func (b *Builder) Set(cs vm.Charset) { b.emitCharset(vm.ISet, cs) }

// Span emits ISpan, consuming the longest run of bytes in cs.
func (b *Builder) Span(cs vm.Charset) { b.emitCharset(vm.ISpan, cs) }

// TestAny emits ITestAny; at end of input, control jumps to l without
// consuming.
func (b *Builder) TestAny(l Label) { b.emitJump(vm.ITestAny, 0, 0, l) }

// TestChar emits ITestChar; if the next byte is not c, control jumps to l.
func (b *Builder) TestChar(c byte, l Label) { b.emitJump(vm.ITestChar, c, 0, l) }

// TestSet emits ITestSet; if the next byte is not in cs, control jumps to l.
func (b *Builder) TestSet(cs vm.Charset, l Label) {
	base := len(b.code)
	b.emit(vm.ITestSet, 0, 0)
	b.code = append(b.code, 0)
	b.fixups = append(b.fixups, fixup{base: base, word: base + 1, label: l})
	for _, w := range cs.Words() {
		b.code = append(b.code, w)
	}
}

// UTFRange emits IUTFR, matching one UTF-8 encoded codepoint in [lo, hi].
// hi must fit 24 bits.
func (b *Builder) UTFRange(lo, hi rune) {
	b.emit(vm.IUTFR, byte(hi), conv.IntToUint16(int(hi>>8)))
	b.code = append(b.code, vm.EncodeOffset(conv.IntToInt32(int(lo))))
}

// Behind emits IBehind, moving the cursor n bytes backward. n must fit a
// byte.
func (b *Builder) Behind(n int) { b.emit(vm.IBehind, conv.IntToUint8(n), 0) }

// Ret emits IRet.
func (b *Builder) Ret() { b.emit(vm.IRet, 0, 0) }

// End emits IEnd, the success exit of the program.
func (b *Builder) End() { b.emit(vm.IEnd, 0, 0) }

// Choice emits IChoice; on failure, control resumes at l.
func (b *Builder) Choice(l Label) { b.emitJump(vm.IChoice, 0, 0, l) }

// Jmp emits IJmp to l.
func (b *Builder) Jmp(l Label) { b.emitJump(vm.IJmp, 0, 0, l) }

// Call emits ICall to the rule bound at l.
func (b *Builder) Call(l Label) { b.emitJump(vm.ICall, 0, 0, l) }

// CallPrec emits a left-recursive ICall to the rule bound at l, entered at
// precedence k (1..255).
func (b *Builder) CallPrec(l Label, k int) {
	b.emitJump(vm.ICall, conv.IntToUint8(k), 0, l)
}

// Commit emits ICommit to l.
func (b *Builder) Commit(l Label) { b.emitJump(vm.ICommit, 0, 0, l) }

// PartialCommit emits IPartialCommit to l.
func (b *Builder) PartialCommit(l Label) { b.emitJump(vm.IPartialCommit, 0, 0, l) }

// BackCommit emits IBackCommit to l.
func (b *Builder) BackCommit(l Label) { b.emitJump(vm.IBackCommit, 0, 0, l) }

// FailTwice emits IFailTwice.
func (b *Builder) FailTwice() { b.emit(vm.IFailTwice, 0, 0) }

// Fail emits IFail.
func (b *Builder) Fail() { b.emit(vm.IFail, 0, 0) }

// Empty emits an IEmpty padding word.
func (b *Builder) Empty() { b.emit(vm.IEmpty, 0, 0) }

func capAux(kind vm.CapKind, off int) byte {
	return byte(kind)&0x0f | byte(off)<<4
}

// OpenCapture emits IOpenCapture for a capture of the given kind and
// identity.
func (b *Builder) OpenCapture(kind vm.CapKind, key uint16) {
	b.emit(vm.IOpenCapture, capAux(kind, 0), key)
}

// CloseCapture emits ICloseCapture.
func (b *Builder) CloseCapture(kind vm.CapKind, key uint16) {
	b.emit(vm.ICloseCapture, capAux(kind, 0), key)
}

// CloseRunTime emits ICloseRunTime, closing a match-time capture group.
func (b *Builder) CloseRunTime() {
	b.emit(vm.ICloseRunTime, capAux(vm.CapClose, 0), 0)
}

// FullCapture emits IFullCapture for the last off bytes (0..15).
func (b *Builder) FullCapture(kind vm.CapKind, key uint16, off int) {
	if off < 0 || off > 15 {
		// Out-of-range offsets are a caller bug; clamp detection to Build
		// would lose the call site, so fail loudly here.
		panic(fmt.Sprintf("prog: full capture offset %d out of range", off))
	}
	b.emit(vm.IFullCapture, capAux(kind, off), key)
}

// Build resolves all pending jumps, appends the IGiveup sentinel and
// returns the validated program. The builder must not be reused afterwards.
func (b *Builder) Build() (*vm.Program, error) {
	if len(b.code) == 0 {
		return nil, &BuildError{Message: "no instructions emitted", Label: unbound}
	}
	for _, f := range b.fixups {
		target := b.labels[f.label]
		if target == unbound {
			return nil, &BuildError{Message: "unbound label", Label: f.label}
		}
		disp := target - f.base
		b.code[f.word] = vm.EncodeOffset(conv.IntToInt32(disp))
	}
	b.code = append(b.code, vm.Encode(vm.IGiveup, 0, 0))
	return vm.NewProgram(b.code)
}
