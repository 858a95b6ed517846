package backends

import (
	"context"
	"fmt"

	"github.com/macup/macup/pkg/engine"
)

// Script is an ad-hoc install command.
type Script struct {
	// Name identifies the script; it is the section item.
	Name string

	// Command installs the tool.
	Command string

	// Check exits zero when the tool is already present. Scripts without a
	// check always run.
	Check string

	// Required scripts fail the run when they fail.
	Required bool
}

// ScriptRunner runs install scripts through the shell.
type ScriptRunner struct {
	tool
	scripts map[string]Script
	order   []string
	env     map[string]string
}

// NewScriptRunner creates the script backend. env is exported to every
// script.
func NewScriptRunner(runner Runner, scripts []Script, env map[string]string) *ScriptRunner {
	s := &ScriptRunner{
		tool:    newTool(NameScript, runner),
		scripts: make(map[string]Script, len(scripts)),
		order:   make([]string, 0, len(scripts)),
		env:     env,
	}
	for _, script := range scripts {
		if _, dup := s.scripts[script.Name]; !dup {
			s.order = append(s.order, script.Name)
		}
		s.scripts[script.Name] = script
	}
	return s
}

// ListInstalled runs every check command and returns the scripts whose
// check passes.
func (s *ScriptRunner) ListInstalled(ctx context.Context) (engine.ItemSet, error) {
	set := engine.NewItemSet()
	for _, name := range s.order {
		ok, err := s.check(ctx, s.scripts[name])
		if err != nil {
			return nil, err
		}
		if ok {
			set.Add(name)
		}
	}
	return set, nil
}

// IsInstalled runs the check of one script.
func (s *ScriptRunner) IsInstalled(ctx context.Context, item string) (bool, error) {
	script, ok := s.scripts[item]
	if !ok {
		return false, fmt.Errorf("unknown script %q", item)
	}
	return s.check(ctx, script)
}

// Install runs the script and verifies it with its check.
func (s *ScriptRunner) Install(ctx context.Context, item string) error {
	script, ok := s.scripts[item]
	if !ok {
		return fmt.Errorf("unknown script %q", item)
	}

	if _, err := Check(ctx, s.runner, s.command(script.Command)); err != nil {
		return err
	}

	if script.Check == "" {
		return nil
	}
	verified, err := s.check(ctx, script)
	if err != nil {
		return err
	}
	if !verified {
		return fmt.Errorf("%s installed but verification failed", script.Name)
	}
	return nil
}

// Optional returns the names of scripts that may fail.
func (s *ScriptRunner) Optional() []string {
	out := make([]string, 0)
	for _, name := range s.order {
		if !s.scripts[name].Required {
			out = append(out, name)
		}
	}
	return out
}

func (s *ScriptRunner) check(ctx context.Context, script Script) (bool, error) {
	if script.Check == "" {
		return false, nil
	}
	res, err := s.runner.Run(ctx, s.command(script.Check))
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

func (s *ScriptRunner) command(line string) Command {
	return Command{Name: line, Shell: true, Env: s.env}
}
