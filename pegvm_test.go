package pegvm

import (
	"errors"
	"testing"

	"github.com/coregx/pegvm/prog"
	"github.com/coregx/pegvm/vm"
)

func literalPattern(t *testing.T, lit string) *Pattern {
	t.Helper()
	b := prog.NewBuilder()
	for i := 0; i < len(lit); i++ {
		b.Char(lit[i])
	}
	b.End()
	program, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(program)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPatternMatch(t *testing.T) {
	p := literalPattern(t, "abc")

	end, err := p.Match([]byte("abcdef"))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if end != 3 {
		t.Errorf("Match = %d, want 3", end)
	}

	end, err = p.Match([]byte("xabc"))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if end != NoMatch {
		t.Errorf("Match = %d, want no match", end)
	}
}

func TestPatternMatchAt(t *testing.T) {
	p := literalPattern(t, "abc")
	end, err := p.MatchAt([]byte("xabc"), 1)
	if err != nil {
		t.Fatalf("MatchAt failed: %v", err)
	}
	if end != 4 {
		t.Errorf("MatchAt = %d, want 4", end)
	}
}

func TestPatternFind(t *testing.T) {
	p := literalPattern(t, "abc")

	tests := []struct {
		input      string
		start, end int
	}{
		{"abc", 0, 3},
		{"xxabcxx", 2, 5},
		{"ababc", 2, 5},
		{"xyz", NoMatch, NoMatch},
		{"", NoMatch, NoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			start, end, err := p.Find([]byte(tt.input))
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if start != tt.start || end != tt.end {
				t.Errorf("Find(%q) = (%d, %d), want (%d, %d)",
					tt.input, start, end, tt.start, tt.end)
			}
		})
	}
}

func TestPatternFindWithoutPrefilter(t *testing.T) {
	b := prog.NewBuilder()
	for i := 0; i < 3; i++ {
		b.Char("abc"[i])
	}
	b.End()
	program, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(program, WithoutPrefilter())
	if err != nil {
		t.Fatal(err)
	}

	start, end, err := p.Find([]byte("xxabc"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if start != 2 || end != 5 {
		t.Errorf("Find = (%d, %d), want (2, 5)", start, end)
	}
}

func TestPatternFindEmptyMatch(t *testing.T) {
	// A pattern that matches the empty string finds it at position 0.
	b := prog.NewBuilder()
	out := b.Label()
	l := b.Label()
	b.Choice(out)
	b.Mark(l)
	b.Char('a')
	b.PartialCommit(l)
	b.Mark(out)
	b.End()
	program, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(program)
	if err != nil {
		t.Fatal(err)
	}

	start, end, err := p.Find([]byte("bbb"))
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if start != 0 || end != 0 {
		t.Errorf("Find = (%d, %d), want (0, 0)", start, end)
	}
}

func TestPatternMatchCaptures(t *testing.T) {
	b := prog.NewBuilder()
	b.OpenCapture(vm.CapSimple, 1)
	b.Char('h')
	b.Char('i')
	b.CloseCapture(vm.CapSimple, 1)
	b.End()
	program, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(program)
	if err != nil {
		t.Fatal(err)
	}

	end, caps, vals, err := p.MatchCaptures([]byte("hi!"))
	if err != nil {
		t.Fatalf("MatchCaptures failed: %v", err)
	}
	if end != 2 {
		t.Fatalf("end = %d, want 2", end)
	}
	if len(vals) != 0 {
		t.Errorf("values = %v, want none", vals)
	}
	if len(caps) != 2 || caps[0].S != 0 || caps[0].Siz != 3 {
		t.Errorf("captures = %v", caps)
	}
}

func TestPatternWithRuntime(t *testing.T) {
	b := prog.NewBuilder()
	b.OpenCapture(vm.CapGroup, 0)
	b.Char('(')
	b.CloseRunTime()
	b.Char(')')
	b.End()
	program, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	accept := false
	rt := vm.MatchTimeFunc(func(_ []byte, _ int, _ []vm.Capture, _ []any) vm.MatchTimeResult {
		if !accept {
			return vm.MatchTimeResult{Reject: true}
		}
		return vm.MatchTimeResult{Pos: vm.KeepPos}
	})
	p, err := New(program, WithRuntime(rt))
	if err != nil {
		t.Fatal(err)
	}

	end, err := p.Match([]byte("()"))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if end != NoMatch {
		t.Errorf("rejecting runtime: Match = %d, want no match", end)
	}

	accept = true
	end, err = p.Match([]byte("()"))
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if end != 2 {
		t.Errorf("accepting runtime: Match = %d, want 2", end)
	}
}

func TestPatternWithMaxBacktrack(t *testing.T) {
	b := prog.NewBuilder()
	loop := b.Label()
	never := b.Label()
	b.Mark(loop)
	b.Choice(never)
	b.Jmp(loop)
	b.Mark(never)
	b.End()
	program, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(program, WithMaxBacktrack(16))
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Match([]byte("x"))
	var soe *vm.StackOverflowError
	if !errors.As(err, &soe) {
		t.Fatalf("error = %v, want StackOverflowError", err)
	}
	if soe.Limit != 16 {
		t.Errorf("Limit = %d, want 16", soe.Limit)
	}
}

func TestPatternConcurrent(t *testing.T) {
	p := literalPattern(t, "abc")
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				end, err := p.Match([]byte("abc"))
				if err != nil {
					done <- err
					return
				}
				if end != 3 {
					done <- errors.New("wrong end position")
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
