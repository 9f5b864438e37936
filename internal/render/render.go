// Package render formats sandbox results for a chat-style display surface:
// a 2,048-character code block whose fencing must survive adversarial
// content. Everything here operates on text that traveled from untrusted
// input, so fence sequences are neutralized before display.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/michaelbrown/crucible/internal/sandbox"
)

// DisplayBudget is the collaborator's per-message character limit.
const DisplayBudget = 2048

// fenceOverhead is the room the surrounding "```\n" and "```" take up.
const fenceOverhead = 7

// neutralized replaces a literal triple backtick: zero-width marks between
// the backticks keep the glyphs visible without terminating the code block.
const neutralized = "‎`‎`‎`‎"

// NeutralizeFences makes a string safe to embed inside a code block.
func NeutralizeFences(s string) string {
	return strings.ReplaceAll(s, "```", neutralized)
}

// Truncate cuts s to fit the display budget alongside its fencing, marking
// the cut with " ...". Multi-byte runes are never split.
func Truncate(s string) string {
	if len(s)+fenceOverhead <= DisplayBudget {
		return s
	}
	cut := DisplayBudget - fenceOverhead - len(" ...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + " ..."
}

// Text renders a successful result's output. An empty result renders as a
// single space so the display still shows a (deliberately blank) code block.
func Text(s string) string {
	if s == "" {
		s = " "
	}
	return Truncate(NeutralizeFences(s))
}

// Error renders a captured failure as "<Kind>: <arg1>, <arg2>, ...".
func Error(f *sandbox.Failure) string {
	line := NeutralizeFences(f.Kind)
	if len(f.Args) > 0 {
		line += ": " + NeutralizeFences(strings.Join(f.Args, ", "))
	}
	return Truncate(line)
}

// Duration formats an execution time with an SI prefix, the way the bot
// frontend reports "code executed in 1.2340 ms".
func Duration(d time.Duration) string {
	seconds := d.Seconds()
	for _, u := range []struct {
		fraction float64
		unit     string
	}{
		{1.0, "s"},
		{1e-3, "ms"},
		{1e-6, "µs"},
		{1e-9, "ns"},
	} {
		if seconds >= u.fraction {
			return fmt.Sprintf("%.4f %s", seconds/u.fraction, u.unit)
		}
	}
	return "0 s"
}
