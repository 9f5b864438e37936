package sandbox

import (
	"strings"
	"unicode/utf8"
)

// capture is the output channel handed to the restricted context. It is an
// append-only sink: writes land in the exact order the snippet performed
// them, and the trailing expression value, if any, is appended last.
//
// The sink is logically unbounded within a run but caps retained bytes the
// same way the pack caps child-process output; excess is silently discarded.
// Display-level truncation (the 2,048-char budget) is the renderer's job,
// not this channel's.
type capture struct {
	buf       strings.Builder
	remaining int
	trailing  string
	hasValue  bool
}

func newCapture(maxBytes int) *capture {
	return &capture{remaining: maxBytes}
}

// Write appends s verbatim, in call order.
func (c *capture) Write(s string) {
	if c.remaining <= 0 {
		return
	}
	if len(s) > c.remaining {
		// Back off to a rune boundary so the cap never leaves a split rune
		// at the tail.
		cut := c.remaining
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
		c.remaining = 0
		c.buf.WriteString(s)
		return
	}
	c.buf.WriteString(s)
	c.remaining -= len(s)
}

// Print appends one print call's message plus a newline.
func (c *capture) Print(msg string) {
	c.Write(msg)
	c.Write("\n")
}

// SetTrailing records the display form of the run's final value.
// An empty string is a valid value, distinct from no value at all.
func (c *capture) SetTrailing(s string) {
	c.trailing = s
	c.hasValue = true
}

// Text returns the full captured output: writes first, trailing value last.
func (c *capture) Text() string {
	if !c.hasValue {
		return c.buf.String()
	}
	return c.buf.String() + c.trailing
}
