package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/lib/json"
	smath "go.starlark.net/lib/math"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// environ is one run's capability-restricted execution context. The
// predeclared dictionary is the complete universe a snippet can reach:
// anything not listed here resolves to "undefined", so there is no
// filesystem, network, process or host-reflection surface to deny.
type environ struct {
	policy      Policy
	capture     *capture
	predeclared starlark.StringDict
	canvases    []*Canvas
}

func newEnviron(policy Policy, out *capture) *environ {
	e := &environ{policy: policy, capture: out}
	e.predeclared = starlark.StringDict{
		"math":   smath.Module,
		"json":   json.Module,
		"canvas": NewCanvasModule(policy.MaxCanvasDim, e.recordCanvas),
	}
	return e
}

func (e *environ) recordCanvas(c *Canvas) {
	e.canvases = append(e.canvases, c)
}

// Image returns the PNG-encoded artifact if the run constructed exactly one
// canvas, nil otherwise.
func (e *environ) Image() ([]byte, error) {
	if len(e.canvases) != 1 {
		return nil, nil
	}
	return e.canvases[0].EncodePNG()
}

// fileOptions permits the full imperative dialect: top-level control flow,
// while loops, recursion, sets and global reassignment. The deadline guard
// and step ceiling are what bound runaway loops, not the grammar.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// run evaluates src inside the restricted context. Source parsing as a
// single expression is evaluated for its value; anything else executes as a
// statement sequence where a module global named `result`, if bound, is the
// designated trailing value.
func (e *environ) run(thread *starlark.Thread, src string) error {
	opts := fileOptions

	if expr, err := opts.ParseExpr("<snippet>", src, 0); err == nil {
		v, err := starlark.EvalExprOptions(opts, thread, expr, e.predeclared)
		if err != nil {
			return err
		}
		if v != starlark.None {
			e.capture.SetTrailing(displayValue(v))
		}
		return nil
	}

	globals, err := starlark.ExecFileOptions(opts, thread, "<snippet>", src, e.predeclared)
	if err != nil {
		return err
	}
	if v, ok := globals["result"]; ok && v != starlark.None {
		e.capture.SetTrailing(displayValue(v))
	}
	return nil
}

// displayValue is the textual form of a snippet value: strings appear
// unquoted, everything else uses its Starlark representation.
func displayValue(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

// classify converts an interpreter error into a captured Failure. It is
// only consulted when the deadline guard did not fire; timeouts are
// classified by the runner itself.
func classify(err error) *Failure {
	if err == nil {
		return nil
	}

	var rerrs resolve.ErrorList
	if errors.As(err, &rerrs) && len(rerrs) > 0 {
		return classifyResolve(rerrs[0].Msg)
	}
	var rerr resolve.Error
	if errors.As(err, &rerr) {
		return classifyResolve(rerr.Msg)
	}

	var serr syntax.Error
	if errors.As(err, &serr) {
		return &Failure{Kind: KindSyntax, Args: []string{serr.Msg}}
	}

	var ee *starlark.EvalError
	if errors.As(err, &ee) {
		if strings.Contains(ee.Msg, "too many steps") {
			return &Failure{Kind: KindStepLimit, Args: []string{"execution step budget exhausted"}}
		}
		return &Failure{Kind: KindExecution, Args: []string{ee.Msg}}
	}

	return &Failure{Kind: KindExecution, Args: []string{err.Error()}}
}

// classifyResolve maps static resolver errors. An undefined name in a
// deny-by-default universe is an attempted capability, not a typo the
// engine can distinguish.
func classifyResolve(msg string) *Failure {
	if name, ok := strings.CutPrefix(msg, "undefined: "); ok {
		return &Failure{
			Kind: KindCapability,
			Args: []string{fmt.Sprintf("name %q is not available in the sandbox", name)},
		}
	}
	return &Failure{Kind: KindSyntax, Args: []string{msg}}
}
