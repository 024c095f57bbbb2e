package prog

import (
	"testing"

	"github.com/coregx/pegvm/vm"
)

func TestBuilderEmitsSentinel(t *testing.T) {
	b := NewBuilder()
	b.Char('a')
	b.End()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	code := p.Code()
	if len(code) != 3 {
		t.Fatalf("len(code) = %d, want 3", len(code))
	}
	if code[0].Code() != vm.IChar || code[0].Aux() != 'a' {
		t.Errorf("code[0] = %v", code[0].Code())
	}
	if code[2].Code() != vm.IGiveup {
		t.Errorf("last word = %v, want giveup", code[2].Code())
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestBuilderResolvesForwardAndBackwardJumps(t *testing.T) {
	b := NewBuilder()
	back := b.Label()
	fwd := b.Label()
	b.Mark(back)   // 0
	b.Choice(fwd)  // 0,1
	b.Jmp(back)    // 2,3
	b.Mark(fwd)    // 4
	b.End()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	code := p.Code()
	if got := code[1].Offset(); got != 4 {
		t.Errorf("choice displacement = %d, want 4", got)
	}
	if got := code[3].Offset(); got != -2 {
		t.Errorf("jmp displacement = %d, want -2", got)
	}
}

func TestBuilderUnboundLabel(t *testing.T) {
	b := NewBuilder()
	l := b.Label()
	b.Jmp(l)
	b.End()
	if _, err := b.Build(); err == nil {
		t.Fatal("Build succeeded with unbound label")
	}
}

func TestBuilderEmptyProgram(t *testing.T) {
	if _, err := NewBuilder().Build(); err == nil {
		t.Fatal("Build succeeded with no instructions")
	}
}

func TestBuilderCharsetLayout(t *testing.T) {
	var cs vm.Charset
	cs.Add('a')
	cs.Add('z')

	b := NewBuilder()
	b.Set(cs)
	b.End()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	code := p.Code()
	if len(code) != vm.CharsetInstSize+2 {
		t.Fatalf("len(code) = %d, want %d", len(code), vm.CharsetInstSize+2)
	}
	if code[0].Code() != vm.ISet {
		t.Fatalf("code[0] = %v, want set", code[0].Code())
	}
	// 'a' = 0x61: word 3, bit 1. 'z' = 0x7A: word 3, bit 26.
	if got := uint32(code[1+3]); got != 1<<1|1<<26 {
		t.Errorf("bitmap word 3 = %#x, want %#x", got, uint32(1<<1|1<<26))
	}
}

func TestBuilderTestSetLayout(t *testing.T) {
	var cs vm.Charset
	cs.Add('x')

	b := NewBuilder()
	miss := b.Label()
	b.TestSet(cs, miss) // 0: opcode, 1: displacement, 2..9: bitmap
	b.Any()             // 10
	b.Mark(miss)        // 11
	b.End()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	code := p.Code()
	if got := code[1].Offset(); got != 11 {
		t.Errorf("testset displacement = %d, want 11", got)
	}
}

func TestBuilderUTFRangeEncoding(t *testing.T) {
	b := NewBuilder()
	b.UTFRange(0x80, 0x10FFFF)
	b.End()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	code := p.Code()
	if code[0].Code() != vm.IUTFR {
		t.Fatalf("code[0] = %v", code[0].Code())
	}
	to := int32(code[0].Key())<<8 | int32(code[0].Aux())
	if to != 0x10FFFF {
		t.Errorf("upper bound = %#x, want 0x10FFFF", to)
	}
	if got := code[1].Offset(); got != 0x80 {
		t.Errorf("lower bound = %#x, want 0x80", got)
	}
}

func TestBuilderCaptureEncoding(t *testing.T) {
	b := NewBuilder()
	b.OpenCapture(vm.CapGroup, 9)
	b.FullCapture(vm.CapSimple, 2, 5)
	b.End()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	code := p.Code()
	if code[0].Key() != 9 || code[0].Aux() != byte(vm.CapGroup) {
		t.Errorf("open capture word = aux %d key %d", code[0].Aux(), code[0].Key())
	}
	if code[1].Aux() != byte(vm.CapSimple)|5<<4 || code[1].Key() != 2 {
		t.Errorf("full capture word = aux %#x key %d", code[1].Aux(), code[1].Key())
	}
}

func TestBuilderFullCaptureOffsetRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("FullCapture(16) did not panic")
		}
	}()
	NewBuilder().FullCapture(vm.CapSimple, 0, 16)
}

func TestBuilderProgramRuns(t *testing.T) {
	// "ab" / "cd", assembled and executed end to end.
	b := NewBuilder()
	alt2 := b.Label()
	done := b.Label()
	b.Choice(alt2)
	b.Char('a')
	b.Char('b')
	b.Commit(done)
	b.Mark(alt2)
	b.Char('c')
	b.Char('d')
	b.Mark(done)
	b.End()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	m, err := vm.NewMachine(p)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}

	for _, tt := range []struct {
		input string
		want  int
	}{
		{"ab", 2}, {"cd", 2}, {"ad", vm.NoMatch}, {"", vm.NoMatch},
	} {
		end, err := m.Match([]byte(tt.input), 0, len(tt.input))
		if err != nil {
			t.Fatalf("Match(%q) failed: %v", tt.input, err)
		}
		if end != tt.want {
			t.Errorf("Match(%q) = %d, want %d", tt.input, end, tt.want)
		}
	}
}
