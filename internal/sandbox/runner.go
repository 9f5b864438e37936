package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.starlark.net/starlark"
)

// Runner drives one end-to-end execution: normalize the source, spawn an
// execution unit under the deadline guard with the capture channel attached,
// and fold whatever happens into a Result. Execute is total: the only error
// it ever returns is ErrEmptySource, a caller bug rather than a runtime
// condition. Runner holds no state across runs and is safe for concurrent
// use.
type Runner struct {
	policy Policy
	logger *slog.Logger
}

// NewRunner creates a Runner with the given policy.
func NewRunner(policy Policy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{policy: policy.normalized(), logger: logger}
}

// Policy returns the runner's effective policy.
func (r *Runner) Policy() Policy { return r.policy }

// Execute runs one snippet to completion, forced termination, or failure.
func (r *Runner) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, ErrEmptySource
	}

	src := Normalize(req.Source)
	budget := r.policy.Budget(req.Budget)

	out := newCapture(r.policy.MaxOutputBytes)
	env := newEnviron(r.policy, out)

	thread := &starlark.Thread{
		Name: "snippet",
		Print: func(_ *starlark.Thread, msg string) {
			out.Print(msg)
		},
	}
	if r.policy.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(r.policy.MaxSteps)
	}

	r.logger.Debug("sandbox executing",
		slog.Int("source_bytes", len(src)),
		slog.Duration("budget", budget),
	)

	done := make(chan error, 1)
	guard := enforce(ctx, thread, budget)
	defer guard.release()

	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("interpreter panic: %v", p)
			}
		}()
		done <- env.run(thread, src)
	}()

	// Wait for the execution unit unconditionally. The guard's interrupt is
	// honored by the interpreter at every evaluation step, and every
	// allow-listed builtin bounds its own work (drawing primitives clip to
	// the canvas before iterating), so the unit is guaranteed to have fully
	// stopped before Execute returns; the next request can never race a
	// leftover one.
	runErr := <-done
	elapsed := time.Since(start)
	guard.release()

	switch {
	case guard.timedOut():
		r.logger.Warn("sandbox timed out", slog.Duration("budget", budget))
		return &Result{
			Duration: budget,
			Err: &Failure{
				Kind: KindTimeout,
				Args: []string{fmt.Sprintf("execution exceeded the %s budget", budget)},
			},
		}, nil

	case guard.canceled():
		return &Result{
			Duration: elapsed,
			Err:      &Failure{Kind: KindCanceled, Args: []string{"execution canceled by caller"}},
		}, nil

	case runErr != nil:
		failure := classify(runErr)
		r.logger.Debug("sandbox failed",
			slog.String("kind", failure.Kind),
			slog.Duration("duration", elapsed),
		)
		return &Result{Duration: elapsed, Err: failure}, nil
	}

	img, err := env.Image()
	if err != nil {
		// Host-side encoding fault, not the snippet's doing; the textual
		// result is still valid.
		r.logger.Warn("artifact encoding failed", slog.String("error", err.Error()))
		img = nil
	}

	r.logger.Debug("sandbox completed",
		slog.Duration("duration", elapsed),
		slog.Int("text_bytes", len(out.Text())),
		slog.Bool("image", img != nil),
	)

	return &Result{
		Duration: elapsed,
		Text:     out.Text(),
		Image:    img,
	}, nil
}

// Normalize strips the display-formatting wrapper callers commonly paste
// around code: surrounding whitespace, a single triple-backtick fence with
// an optional language tag, or a single-backtick inline wrapper.
func Normalize(source string) string {
	s := strings.TrimSpace(source)

	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = s[3 : len(s)-3]
		s = stripLanguageTag(s)
		s = strings.TrimPrefix(s, "\n")
		return s
	}

	if strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") && len(s) >= 2 {
		return s[1 : len(s)-1]
	}

	return s
}

// stripLanguageTag drops a short alphanumeric annotation on the fence line,
// e.g. "py" or "python".
func stripLanguageTag(s string) string {
	nl := strings.IndexByte(s, '\n')
	if nl <= 0 || nl > 12 {
		return s
	}
	tag := s[:nl]
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '+' || r == '-') {
			return s
		}
	}
	return s[nl+1:]
}
