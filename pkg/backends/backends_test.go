package backends

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/macup/macup/pkg/engine"
)

// Fake runner for testing
type fakeRunner struct {
	mu        sync.Mutex
	paths     map[string]bool
	responses map[string]*Result
	errs      map[string]error
	calls     []Command
}

func newFakeRunner(paths ...string) *fakeRunner {
	f := &fakeRunner{
		paths:     make(map[string]bool),
		responses: make(map[string]*Result),
		errs:      make(map[string]error),
		calls:     make([]Command, 0),
	}
	for _, p := range paths {
		f.paths[p] = true
	}
	return f
}

func (f *fakeRunner) on(cmdline string, res *Result) *fakeRunner {
	f.responses[cmdline] = res
	return f
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, cmd)
	key := cmd.String()
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if res, ok := f.responses[key]; ok {
		copied := *res
		return &copied, nil
	}
	return &Result{}, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.paths[name] {
		return "/usr/local/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

func (f *fakeRunner) commandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

func assertItems(t *testing.T, set engine.ItemSet, want ...string) {
	t.Helper()
	got := set.Sorted()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected items %v, got %v", want, got)
	}
}

func TestBrew_ListInstalled(t *testing.T) {
	runner := newFakeRunner("brew").
		on("brew list --formula", &Result{Stdout: "git\n  jq \n\nnode\n"})

	set, err := NewBrew(runner).ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertItems(t, set, "git", "jq", "node")

	if runner.calls[0].Env["HOMEBREW_NO_AUTO_UPDATE"] != "1" {
		t.Error("Expected brew auto-update disabled")
	}
}

func TestBrew_ListInstalled_Failure(t *testing.T) {
	runner := newFakeRunner("brew").
		on("brew list --cask", &Result{ExitCode: 1, Stderr: "Error: something broke\n"})

	_, err := NewBrewCask(runner).ListInstalled(context.Background())
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected *ExitError, got %v", err)
	}
	if !strings.Contains(err.Error(), "Error: something broke") {
		t.Errorf("Expected stderr in error, got %q", err.Error())
	}
}

func TestBrew_InstallCommands(t *testing.T) {
	tests := []struct {
		name    string
		backend func(Runner) engine.Backend
		item    string
		want    string
	}{
		{
			name:    "formula",
			backend: func(r Runner) engine.Backend { return NewBrew(r) },
			item:    "git",
			want:    "brew install git",
		},
		{
			name:    "cask",
			backend: func(r Runner) engine.Backend { return NewBrewCask(r) },
			item:    "firefox",
			want:    "brew install --cask firefox",
		},
		{
			name:    "tap",
			backend: func(r Runner) engine.Backend { return NewBrewTap(r) },
			item:    "hashicorp/tap",
			want:    "brew tap hashicorp/tap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			if err := tt.backend(runner).Install(context.Background(), tt.item); err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if lines := runner.commandLines(); len(lines) != 1 || lines[0] != tt.want {
				t.Errorf("Expected %q, got %v", tt.want, lines)
			}
		})
	}
}

func TestBrew_InstallRuntime(t *testing.T) {
	runner := newFakeRunner()
	b := NewBrew(runner)

	if b.RuntimeAvailable(context.Background()) {
		t.Error("Expected brew unavailable")
	}

	var installer engine.RuntimeInstaller = b
	if err := installer.InstallRuntime(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cmd := runner.calls[0]
	if !cmd.Shell || cmd.Name != HomebrewInstallScript {
		t.Errorf("Expected Homebrew install script, got %s", cmd.String())
	}
	if cmd.Env["NONINTERACTIVE"] != "1" {
		t.Error("Expected non-interactive install")
	}
}

func TestNpm_ListInstalled(t *testing.T) {
	runner := newFakeRunner("npm", "tsc").
		on("npm list -g --depth=0 --parseable", &Result{Stdout: strings.Join([]string{
			"/opt/homebrew/lib",
			"/opt/homebrew/lib/node_modules/npm",
			"/opt/homebrew/lib/node_modules/@anthropic-ai/sdk",
			"/opt/homebrew/lib/node_modules/prettier",
		}, "\n")})

	npm := NewNpm(runner, map[string]string{"typescript": "tsc", "eslint": "eslint"})

	set, err := npm.ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	// typescript is present through its binary, eslint is not
	assertItems(t, set, "@anthropic-ai/sdk", "npm", "prettier", "typescript")
}

func TestNpm_InstallRuntime(t *testing.T) {
	tests := []struct {
		name    string
		paths   []string
		wantErr bool
		want    []string
	}{
		{name: "through brew", paths: []string{"brew"}, want: []string{"brew install node"}},
		{name: "without brew", wantErr: true, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner(tt.paths...)
			err := NewNpm(runner, nil).InstallRuntime(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got: %v", tt.wantErr, err)
			}
			if strings.Join(runner.commandLines(), ";") != strings.Join(tt.want, ";") {
				t.Errorf("Expected calls %v, got %v", tt.want, runner.commandLines())
			}
		})
	}

	if name := NewNpm(newFakeRunner(), nil).RuntimeName(); name != "node" {
		t.Errorf("Expected runtime node, got %s", name)
	}
}

func TestCargo_ListInstalled(t *testing.T) {
	runner := newFakeRunner("cargo", "rg").
		on("cargo install --list", &Result{Stdout: strings.Join([]string{
			"bat v0.24.0:",
			"    bat",
			"fd-find v9.0.0:",
			"    fd",
			"",
		}, "\n")})

	set, err := NewCargo(runner, map[string]string{"ripgrep": "rg", "bat": "bat"}).ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertItems(t, set, "bat", "fd-find", "ripgrep")
}

func TestCargo_InstallRuntime_PrefersRustup(t *testing.T) {
	runner := newFakeRunner("rustup", "brew")

	if err := NewCargo(runner, nil).InstallRuntime(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if lines := runner.commandLines(); len(lines) != 1 || lines[0] != "rustup toolchain install stable" {
		t.Errorf("Expected rustup install, got %v", lines)
	}
}

func TestMas_ListInstalled(t *testing.T) {
	runner := newFakeRunner("mas").
		on("mas list", &Result{Stdout: "497799835  Xcode (15.0)\n1333542190  1Password 7 (7.9.11)\n"})

	m := NewMas(runner)
	set, err := m.ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertItems(t, set, "1333542190", "497799835")

	ok, err := m.IsInstalled(context.Background(), "497799835")
	if err != nil || !ok {
		t.Errorf("Expected Xcode installed, got %v (%v)", ok, err)
	}
}

func TestScriptRunner(t *testing.T) {
	scripts := []Script{
		{Name: "rustup", Command: "curl https://sh.rustup.rs | sh", Check: "command -v rustup", Required: true},
		{Name: "ohmyzsh", Command: "install-omz", Check: "test -d ~/.oh-my-zsh"},
		{Name: "always", Command: "echo hi", Required: true},
	}

	runner := newFakeRunner().
		on("sh -c command -v rustup", &Result{ExitCode: 0}).
		on("sh -c test -d ~/.oh-my-zsh", &Result{ExitCode: 1})

	s := NewScriptRunner(runner, scripts, map[string]string{"GITHUB_TOKEN": "abc"})

	set, err := s.ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertItems(t, set, "rustup")

	if opt := s.Optional(); len(opt) != 1 || opt[0] != "ohmyzsh" {
		t.Errorf("Expected ohmyzsh optional, got %v", opt)
	}

	// The check still fails after install
	err = s.Install(context.Background(), "ohmyzsh")
	if err == nil || !strings.Contains(err.Error(), "verification failed") {
		t.Errorf("Expected verification failure, got: %v", err)
	}

	if err := s.Install(context.Background(), "always"); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	last := runner.calls[len(runner.calls)-1]
	if last.Env["GITHUB_TOKEN"] != "abc" {
		t.Error("Expected env exported to scripts")
	}

	if err := s.Install(context.Background(), "missing"); err == nil {
		t.Error("Expected error for unknown script")
	}
}

func TestScriptRunner_CommandFailure(t *testing.T) {
	runner := newFakeRunner().
		on("sh -c exit 2", &Result{ExitCode: 2, Stderr: "boom"})

	s := NewScriptRunner(runner, []Script{{Name: "bad", Command: "exit 2"}}, nil)

	err := s.Install(context.Background(), "bad")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode != 2 {
		t.Errorf("Expected exit code 2, got %v", err)
	}
}

func TestSysPkg_DetectAndList(t *testing.T) {
	runner := newFakeRunner("dnf", "yum").
		on("rpm -qa --queryformat %{NAME}\n", &Result{Stdout: "bash\ncurl\n"})

	p := NewSysPkg(runner, "", false)
	if p.Manager() != "dnf" {
		t.Errorf("Expected dnf detected, got %q", p.Manager())
	}
	if !p.RuntimeAvailable(context.Background()) {
		t.Error("Expected runtime available")
	}

	set, err := p.ListInstalled(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	assertItems(t, set, "bash", "curl")
}

func TestSysPkg_NoManager(t *testing.T) {
	p := NewSysPkg(newFakeRunner(), "", false)

	if p.RuntimeAvailable(context.Background()) {
		t.Error("Expected runtime unavailable")
	}
	if _, err := p.ListInstalled(context.Background()); err == nil {
		t.Error("Expected error without a package manager")
	}
}

func TestSysPkg_InstallBatch(t *testing.T) {
	runner := newFakeRunner("apt")
	p := NewSysPkg(runner, "apt", true)

	if err := p.InstallBatch(context.Background(), []string{"curl", "jq"}); err != nil {
		t.Fatalf("Expected batch installed, got %v", err)
	}
	if lines := runner.commandLines(); len(lines) != 1 || lines[0] != "sudo apt install -y curl jq" {
		t.Errorf("Expected one batch install, got %v", lines)
	}
	if runner.calls[0].Env["DEBIAN_FRONTEND"] != "noninteractive" {
		t.Error("Expected non-interactive apt")
	}
}

func TestSysPkg_BatchFallbackThroughEngine(t *testing.T) {
	tests := []struct {
		name     string
		failFast bool
		installs []string
		want     map[string]engine.OutcomeKind
	}{
		{
			name:     "continue",
			installs: []string{"apt install -y a b c", "apt install -y a", "apt install -y b", "apt install -y c"},
			want: map[string]engine.OutcomeKind{
				"a": engine.OutcomeFailed, "b": engine.OutcomeSucceeded, "c": engine.OutcomeSucceeded,
			},
		},
		{
			name:     "fail fast",
			failFast: true,
			installs: []string{"apt install -y a b c", "apt install -y a"},
			want: map[string]engine.OutcomeKind{
				"a": engine.OutcomeFailed, "b": engine.OutcomeCancelled, "c": engine.OutcomeCancelled,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner("apt").
				on("apt install -y a b c", &Result{ExitCode: 100}).
				on("apt install -y a", &Result{ExitCode: 100, Stderr: "E: Unable to locate package a"})

			registry := engine.NewRegistry(NewSysPkg(runner, "apt", false))
			settings := engine.Settings{FailFast: tt.failFast, MaxParallel: 4}
			sections := []engine.Section{{ID: "packages", Backend: NameSysPkg, Items: []string{"a", "b", "c"}}}

			report, err := engine.NewEngine(registry, settings).Run(context.Background(), sections, engine.RunOptions{})
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			installs := make([]string, 0)
			for _, line := range runner.commandLines() {
				if strings.HasPrefix(line, "apt install") {
					installs = append(installs, line)
				}
			}
			if strings.Join(installs, "|") != strings.Join(tt.installs, "|") {
				t.Errorf("Expected installs %v, got %v", tt.installs, installs)
			}

			sr := report.Section("packages")
			for item, want := range tt.want {
				o, ok := sr.Outcome(item)
				if !ok || o.Kind != want {
					t.Errorf("Expected %s %s, got %+v", item, want, o)
				}
			}
			if sr.Status != engine.SectionStatusFailed {
				t.Errorf("Expected section failed, got %s", sr.Status)
			}
		})
	}
}

func TestSplitBinary(t *testing.T) {
	tests := []struct {
		spec, pkg, bin string
	}{
		{"typescript:tsc", "typescript", "tsc"},
		{"prettier", "prettier", "prettier"},
		{" ripgrep : rg ", "ripgrep", "rg"},
	}

	for _, tt := range tests {
		pkg, bin := SplitBinary(tt.spec)
		if pkg != tt.pkg || bin != tt.bin {
			t.Errorf("SplitBinary(%q) = %q, %q; want %q, %q", tt.spec, pkg, bin, tt.pkg, tt.bin)
		}
	}
}

func TestMetadata(t *testing.T) {
	m, ok := Lookup(NameNpm)
	if !ok {
		t.Fatal("Expected npm metadata")
	}
	if m.RuntimeName != "node" || m.BrewFormula != "node" {
		t.Errorf("Unexpected npm metadata: %+v", m)
	}
	if _, ok := Lookup("pip"); ok {
		t.Error("Expected no metadata for pip")
	}
	if len(All()) != 8 {
		t.Errorf("Expected 8 backends, got %d", len(All()))
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry(Options{Runner: newFakeRunner()})

	want := []string{NameBrew, NameBrewCask, NameBrewTap, NameCargo, NameMas, NameNpm, NameScript, NameSysPkg}
	got := registry.Names()
	if len(got) != len(want) {
		t.Fatalf("Expected %d backends, got %v", len(want), got)
	}

	for _, name := range want {
		if _, err := registry.Get(name); err != nil {
			t.Errorf("Expected backend %s registered: %v", name, err)
		}
	}

	b, _ := registry.Get(NameSysPkg)
	if _, ok := b.(engine.BatchInstaller); !ok {
		t.Error("Expected syspkg to be a batch installer")
	}
	b, _ = registry.Get(NameCargo)
	if _, ok := b.(engine.RuntimeInstaller); !ok {
		t.Error("Expected cargo to install its runtime")
	}
}
