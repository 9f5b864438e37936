package render

import (
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/crucible/internal/sandbox"
)

func TestNeutralizeFences(t *testing.T) {
	got := NeutralizeFences("before ``` after")
	if strings.Contains(got, "```") {
		t.Errorf("output still contains a live fence: %q", got)
	}
	if !strings.Contains(got, "`") {
		t.Errorf("backtick glyphs should survive: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	if got := Truncate(short); got != short {
		t.Errorf("short input modified: %q", got)
	}

	long := strings.Repeat("x", 5000)
	got := Truncate(long)
	if len(got)+fenceOverhead > DisplayBudget {
		t.Errorf("truncated output is %d chars, over budget", len(got))
	}
	if !strings.HasSuffix(got, " ...") {
		t.Errorf("truncation marker missing: %q", got[len(got)-10:])
	}
}

func TestTruncateDoesNotSplitRunes(t *testing.T) {
	long := strings.Repeat("é", 3000)
	got := Truncate(long)
	if !strings.HasSuffix(got, " ...") {
		t.Fatal("expected truncation")
	}
	body := strings.TrimSuffix(got, " ...")
	for _, r := range body {
		if r == '�' {
			t.Fatal("rune split during truncation")
		}
	}
}

func TestTextEmptyRendersBlankBlock(t *testing.T) {
	if got := Text(""); got != " " {
		t.Errorf("Text(\"\") = %q, want a single space", got)
	}
}

func TestError(t *testing.T) {
	f := &sandbox.Failure{Kind: "ExecutionError", Args: []string{"boom", "twice"}}
	if got := Error(f); got != "ExecutionError: boom, twice" {
		t.Errorf("Error = %q", got)
	}

	bare := &sandbox.Failure{Kind: "TimeoutError"}
	if got := Error(bare); got != "TimeoutError" {
		t.Errorf("Error = %q", got)
	}
}

func TestErrorNeutralizesAdversarialKind(t *testing.T) {
	f := &sandbox.Failure{Kind: "```", Args: []string{"```exploit```"}}
	if got := Error(f); strings.Contains(got, "```") {
		t.Errorf("adversarial fence survived: %q", got)
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5000 s"},
		{2 * time.Millisecond, "2.0000 ms"},
		{3 * time.Microsecond, "3.0000 µs"},
		{40 * time.Nanosecond, "40.0000 ns"},
		{0, "0 s"},
	}
	for _, tt := range tests {
		if got := Duration(tt.d); got != tt.want {
			t.Errorf("Duration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
