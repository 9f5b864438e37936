package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPolicyBudget(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		requested time.Duration
		want      time.Duration
	}{
		{"zero means default tier", 0, p.DefaultBudget},
		{"explicit budget kept", 5 * time.Second, 5 * time.Second},
		{"over the cap is clamped", time.Hour, p.MaxBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Budget(tt.requested); got != tt.want {
				t.Errorf("Budget(%s) = %s, want %s", tt.requested, got, tt.want)
			}
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := []byte("default_budget: 1s\nprivileged_budget: 10s\nmax_canvas_dim: 512\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing policy: %v", err)
	}

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	if p.DefaultBudget != time.Second {
		t.Errorf("default budget = %s, want 1s", p.DefaultBudget)
	}
	if p.PrivilegedBudget != 10*time.Second {
		t.Errorf("privileged budget = %s, want 10s", p.PrivilegedBudget)
	}
	if p.MaxCanvasDim != 512 {
		t.Errorf("max canvas dim = %d, want 512", p.MaxCanvasDim)
	}
	// Unspecified fields fall back to defaults.
	if p.MaxSteps != DefaultPolicy().MaxSteps {
		t.Errorf("max steps = %d, want default", p.MaxSteps)
	}
}

func TestLoadPolicyMissingFile(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
