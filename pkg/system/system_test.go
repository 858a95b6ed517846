package system

import (
	"context"
	"errors"
	"testing"

	"github.com/macup/macup/pkg/backends"
)

// Mock runner for testing
type mockRunner struct {
	exitCodes map[string]int
	errs      map[string]error
	ran       []string
}

func (m *mockRunner) Run(ctx context.Context, cmd backends.Command) (*backends.Result, error) {
	m.ran = append(m.ran, cmd.Name)
	if !cmd.Shell {
		return nil, errors.New("expected shell command")
	}
	if err, ok := m.errs[cmd.Name]; ok {
		return nil, err
	}
	return &backends.Result{ExitCode: m.exitCodes[cmd.Name]}, nil
}

func (m *mockRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func TestApplier_Apply(t *testing.T) {
	runner := &mockRunner{
		exitCodes: map[string]int{"false": 1},
		errs:      map[string]error{"broken": errors.New("exec failed")},
	}
	a := NewApplier(runner, nil)

	results, err := a.Apply(context.Background(), []string{"true", "false", "broken", "echo done"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(runner.ran) != 4 {
		t.Fatalf("Expected every command to run, got %v", runner.ran)
	}

	tests := []struct {
		command  string
		ok       bool
		exitCode int
	}{
		{"true", true, 0},
		{"false", false, 1},
		{"broken", false, -1},
		{"echo done", true, 0},
	}
	for i, tt := range tests {
		r := results[i]
		if r.Command != tt.command {
			t.Errorf("Expected command %q, got %q", tt.command, r.Command)
		}
		if r.Succeeded() != tt.ok {
			t.Errorf("%s: expected success %v, got %v", tt.command, tt.ok, r.Succeeded())
		}
		if r.ExitCode != tt.exitCode {
			t.Errorf("%s: expected exit code %d, got %d", tt.command, tt.exitCode, r.ExitCode)
		}
	}
}

func TestApplier_CancelledContext(t *testing.T) {
	runner := &mockRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewApplier(runner, nil).Apply(ctx, []string{"true"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(results) != 0 || len(runner.ran) != 0 {
		t.Errorf("Expected nothing to run, got %v", runner.ran)
	}
}

func TestApplier_RealShell(t *testing.T) {
	a := NewApplier(backends.NewExecRunner(nil), nil)
	results, err := a.Apply(context.Background(), []string{"exit 0", "exit 2"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !results[0].Succeeded() || results[1].ExitCode != 2 {
		t.Errorf("Unexpected results: %+v", results)
	}
}
