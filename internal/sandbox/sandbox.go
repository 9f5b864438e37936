// Package sandbox executes untrusted snippets under strict resource limits.
// Snippets run inside a capability-restricted Starlark interpreter: only an
// explicit allow-list of names exists, so filesystem, network and process
// primitives are unreachable rather than merely forbidden.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// ErrEmptySource is returned when a request carries no code at all.
// It is the only way Execute fails outright; everything a snippet does
// wrong is reported inside the Result instead.
var ErrEmptySource = errors.New("empty source")

// Error kinds reported in Failure.Kind.
const (
	KindTimeout    = "TimeoutError"
	KindExecution  = "ExecutionError"
	KindCapability = "CapabilityError"
	KindSyntax     = "SyntaxError"
	KindStepLimit  = "StepLimitError"
	KindCanceled   = "CanceledError"
)

// Request is one snippet-execution request. Budget bounds wall-clock time;
// zero means the policy default.
type Request struct {
	Source string
	Budget time.Duration
}

// Failure is a captured snippet fault: an error-kind name plus the ordered
// argument values associated with it. Values travel verbatim from untrusted
// input; callers must sanitize them before display (see the render package).
type Failure struct {
	Kind string   `json:"kind"`
	Args []string `json:"args"`
}

// Result is the outcome of one execution. Exactly one of the two holds:
// Err is set and Text/Image are empty, or Err is nil and Text/Image reflect
// a completed run.
type Result struct {
	// Duration is the wall-clock time of the snippet's own execution,
	// excluding setup and teardown. On timeout it reports the full budget.
	Duration time.Duration

	// Text is the captured output: writes in call order, then the display
	// form of the trailing value if any. Empty string is a valid result.
	Text string

	// Image is a PNG-encoded drawing, present only when the snippet
	// constructed exactly one canvas.
	Image []byte

	// Err is the captured failure, nil on success.
	Err *Failure
}

// Failed reports whether the run ended in a captured fault.
func (r *Result) Failed() bool { return r.Err != nil }

// Engine is the caller-facing execution contract.
type Engine interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}
