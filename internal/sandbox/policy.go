package sandbox

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy defines resource limits for sandbox execution.
type Policy struct {
	// DefaultBudget is the wall-clock budget for unprivileged callers.
	DefaultBudget time.Duration `yaml:"default_budget"`

	// PrivilegedBudget is the extended budget for privileged callers.
	// Privilege itself is decided by the calling layer, not here.
	PrivilegedBudget time.Duration `yaml:"privileged_budget"`

	// MaxBudget caps any caller-supplied budget.
	MaxBudget time.Duration `yaml:"max_budget"`

	// MaxSteps bounds interpreter execution steps per run; a CPU proxy
	// that catches tight loops even before the wall clock does.
	MaxSteps uint64 `yaml:"max_steps"`

	// MaxOutputBytes caps captured output to prevent OOM from chatty snippets.
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// MaxCanvasDim bounds canvas width and height in pixels.
	MaxCanvasDim int `yaml:"max_canvas_dim"`
}

// DefaultPolicy returns safe defaults for snippet execution. The budget
// tiers match the bot frontend this engine was built for: two seconds for
// everyone, five for privileged callers.
func DefaultPolicy() Policy {
	return Policy{
		DefaultBudget:    2 * time.Second,
		PrivilegedBudget: 5 * time.Second,
		MaxBudget:        30 * time.Second,
		MaxSteps:         50_000_000,
		MaxOutputBytes:   1 << 20, // 1 MB
		MaxCanvasDim:     2048,
	}
}

// LoadPolicy reads a policy from a YAML file. Zero-valued fields fall back
// to the defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy %s: %w", path, err)
	}

	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	return p.normalized(), nil
}

// UnmarshalYAML decodes durations from "2s"-style strings and leaves any
// field the file omits untouched, so a pre-seeded Policy keeps its defaults.
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		DefaultBudget    string `yaml:"default_budget"`
		PrivilegedBudget string `yaml:"privileged_budget"`
		MaxBudget        string `yaml:"max_budget"`
		MaxSteps         uint64 `yaml:"max_steps"`
		MaxOutputBytes   int    `yaml:"max_output_bytes"`
		MaxCanvasDim     int    `yaml:"max_canvas_dim"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	for _, d := range []struct {
		src string
		dst *time.Duration
	}{
		{raw.DefaultBudget, &p.DefaultBudget},
		{raw.PrivilegedBudget, &p.PrivilegedBudget},
		{raw.MaxBudget, &p.MaxBudget},
	} {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d.src, err)
		}
		*d.dst = v
	}

	if raw.MaxSteps != 0 {
		p.MaxSteps = raw.MaxSteps
	}
	if raw.MaxOutputBytes != 0 {
		p.MaxOutputBytes = raw.MaxOutputBytes
	}
	if raw.MaxCanvasDim != 0 {
		p.MaxCanvasDim = raw.MaxCanvasDim
	}
	return nil
}

// Budget resolves a caller-supplied budget against the policy: zero means
// the default tier, anything above the cap is clamped.
func (p Policy) Budget(requested time.Duration) time.Duration {
	if requested <= 0 {
		return p.DefaultBudget
	}
	if p.MaxBudget > 0 && requested > p.MaxBudget {
		return p.MaxBudget
	}
	return requested
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.DefaultBudget <= 0 {
		p.DefaultBudget = def.DefaultBudget
	}
	if p.PrivilegedBudget <= 0 {
		p.PrivilegedBudget = def.PrivilegedBudget
	}
	if p.MaxBudget <= 0 {
		p.MaxBudget = def.MaxBudget
	}
	if p.MaxSteps == 0 {
		p.MaxSteps = def.MaxSteps
	}
	if p.MaxOutputBytes <= 0 {
		p.MaxOutputBytes = def.MaxOutputBytes
	}
	if p.MaxCanvasDim <= 0 {
		p.MaxCanvasDim = def.MaxCanvasDim
	}
	return p
}
