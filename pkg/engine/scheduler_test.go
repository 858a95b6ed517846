package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/macup/macup/pkg/telemetry"
)

// Mock backend for testing
type mockBackend struct {
	mu           sync.Mutex
	name         string
	available    bool
	installed    map[string]bool
	failItems    map[string]bool
	listErr      error
	delay        time.Duration
	listCalls    int
	installCalls []string
	inFlight     int
	maxInFlight  int
}

func newMockBackend(name string, installed ...string) *mockBackend {
	m := &mockBackend{
		name:         name,
		available:    true,
		installed:    make(map[string]bool),
		failItems:    make(map[string]bool),
		installCalls: make([]string, 0),
	}
	for _, item := range installed {
		m.installed[item] = true
	}
	return m
}

func (m *mockBackend) Name() string {
	return m.name
}

func (m *mockBackend) RuntimeAvailable(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *mockBackend) ListInstalled(ctx context.Context) (ItemSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	set := NewItemSet()
	for item := range m.installed {
		set.Add(item)
	}
	return set, nil
}

func (m *mockBackend) IsInstalled(ctx context.Context, item string) (bool, error) {
	return IsInstalledVia(ctx, m, item)
}

func (m *mockBackend) Install(ctx context.Context, item string) error {
	m.mu.Lock()
	m.installCalls = append(m.installCalls, item)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	shouldFail := m.failItems[item]
	m.mu.Unlock()

	// Simulate install time
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--

	if shouldFail {
		return fmt.Errorf("mock failure for %s", item)
	}
	m.installed[item] = true
	return nil
}

func (m *mockBackend) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.installCalls...)
}

// runtimeBackend can install its own runtime.
type runtimeBackend struct {
	*mockBackend
	runtimeErr error
}

func (r *runtimeBackend) RuntimeName() string {
	return "node"
}

func (r *runtimeBackend) InstallRuntime(ctx context.Context) error {
	if r.runtimeErr != nil {
		return r.runtimeErr
	}
	r.mu.Lock()
	r.available = true
	r.mu.Unlock()
	return nil
}

// batchBackend installs everything in one call. The batch fails if any item
// would fail on its own.
type batchBackend struct {
	*mockBackend
	batches [][]string
}

func (b *batchBackend) InstallBatch(ctx context.Context, items []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.batches = append(b.batches, append([]string{}, items...))
	for _, item := range items {
		if b.failItems[item] {
			return fmt.Errorf("batch failed on %s", item)
		}
	}
	for _, item := range items {
		b.installed[item] = true
	}
	return nil
}

func newTestEngine(settings Settings, backends ...Backend) *Engine {
	return NewEngine(NewRegistry(backends...), settings)
}

func outcomeKind(t *testing.T, report *RunReport, section, item string) OutcomeKind {
	t.Helper()
	sr := report.Section(section)
	if sr == nil {
		t.Fatalf("Expected section %s in report", section)
	}
	o, ok := sr.Outcome(item)
	if !ok {
		t.Fatalf("Expected outcome for %s/%s", section, item)
	}
	return o.Kind
}

func TestEngine_Run_DiffSkipsInstalledItems(t *testing.T) {
	brew := newMockBackend("brew")
	cargo := newMockBackend("cargo", "x")

	sections := []Section{
		{ID: "brew", Backend: "brew", Items: []string{}},
		{ID: "cargo", Backend: "cargo", Items: []string{"x", "y"}, DependsOn: []string{"brew"}},
	}

	report, err := newTestEngine(DefaultSettings(), brew, cargo).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if cargo.listCalls != 1 {
		t.Errorf("Expected exactly 1 ListInstalled call for cargo, got %d", cargo.listCalls)
	}

	calls := cargo.calls()
	if len(calls) != 1 || calls[0] != "y" {
		t.Errorf("Expected install calls [y], got %v", calls)
	}

	if k := outcomeKind(t, report, "cargo", "x"); k != OutcomeSkipped {
		t.Errorf("Expected x skipped, got %s", k)
	}
	if k := outcomeKind(t, report, "cargo", "y"); k != OutcomeSucceeded {
		t.Errorf("Expected y succeeded, got %s", k)
	}

	// brew has a dependent, so it runs even without items
	if status := report.Section("brew").Status; status != SectionStatusSucceeded {
		t.Errorf("Expected brew succeeded, got %s", status)
	}
	if brew.listCalls != 1 {
		t.Errorf("Expected brew to be queried once, got %d", brew.listCalls)
	}

	if report.Status != RunStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", report.Status)
	}
}

func TestEngine_Run_InstallFailureFromMock(t *testing.T) {
	cargo := newMockBackend("cargo", "x")
	cargo.failItems["y"] = true

	sections := []Section{
		{ID: "brew", Backend: "brew"},
		{ID: "cargo", Backend: "cargo", Items: []string{"x", "y"}, DependsOn: []string{"brew"}},
	}

	report, err := newTestEngine(DefaultSettings(), newMockBackend("brew"), cargo).
		Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if k := outcomeKind(t, report, "cargo", "y"); k != OutcomeFailed {
		t.Errorf("Expected y failed, got %s", k)
	}
	o, _ := report.Section("cargo").Outcome("y")
	if o.ErrorKind != ErrorKindInstall {
		t.Errorf("Expected install error kind, got %s", o.ErrorKind)
	}
	var ee *EngineError
	if !errors.As(o.Err, &ee) || ee.Item != "y" {
		t.Errorf("Expected EngineError for item y, got %v", o.Err)
	}
	if report.Status != RunStatusFailed {
		t.Errorf("Expected status failed, got %s", report.Status)
	}
}

func TestEngine_Run_CycleMakesNoBackendCalls(t *testing.T) {
	a := newMockBackend("a")
	b := newMockBackend("b")

	sections := []Section{
		{ID: "a", Backend: "a", Items: []string{"one"}, DependsOn: []string{"b"}},
		{ID: "b", Backend: "b", Items: []string{"two"}, DependsOn: []string{"a"}},
	}

	report, err := newTestEngine(DefaultSettings(), a, b).Run(context.Background(), sections, RunOptions{})
	if err == nil {
		t.Fatal("Expected cyclic dependency error")
	}
	if !IsCyclicDependency(err) {
		t.Errorf("Expected cyclic dependency error, got: %v", err)
	}
	if report != nil {
		t.Error("Expected no report for a cyclic graph")
	}

	if a.listCalls+b.listCalls != 0 {
		t.Errorf("Expected no ListInstalled calls, got %d", a.listCalls+b.listCalls)
	}
	if len(a.calls())+len(b.calls()) != 0 {
		t.Error("Expected no install calls")
	}
}

func TestEngine_Run_ConfigValidationIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		sections []Section
		settings Settings
	}{
		{
			name:     "unknown dependency",
			sections: []Section{{ID: "npm", Backend: "npm", DependsOn: []string{"brew"}}},
			settings: DefaultSettings(),
		},
		{
			name:     "unknown backend",
			sections: []Section{{ID: "pip", Backend: "pip", Items: []string{"x"}}},
			settings: DefaultSettings(),
		},
		{
			name:     "zero max parallel",
			sections: []Section{{ID: "npm", Backend: "npm"}},
			settings: Settings{MaxParallel: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			npm := newMockBackend("npm")
			_, err := newTestEngine(tt.settings, npm).Run(context.Background(), tt.sections, RunOptions{})
			if !IsConfigValidation(err) {
				t.Errorf("Expected config validation error, got: %v", err)
			}
			if npm.listCalls != 0 {
				t.Error("Expected no backend calls")
			}
		})
	}
}

func TestEngine_Run_RespectsMaxParallel(t *testing.T) {
	npm := newMockBackend("npm")
	npm.delay = 20 * time.Millisecond

	items := make([]string, 12)
	for i := range items {
		items[i] = fmt.Sprintf("pkg%d", i)
	}

	settings := DefaultSettings()
	settings.MaxParallel = 3
	sections := []Section{{ID: "npm", Backend: "npm", Items: items}}

	report, err := newTestEngine(settings, npm).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if npm.maxInFlight > 3 {
		t.Errorf("Expected at most 3 concurrent installs, got %d", npm.maxInFlight)
	}
	if got := report.Section("npm").Count(OutcomeSucceeded); got != len(items) {
		t.Errorf("Expected %d succeeded, got %d", len(items), got)
	}
}

func TestEngine_Run_SectionMaxParallelOverride(t *testing.T) {
	taps := newMockBackend("brew-tap")
	taps.delay = 10 * time.Millisecond

	sections := []Section{{
		ID:          "taps",
		Backend:     "brew-tap",
		Items:       []string{"a/b", "c/d", "e/f", "g/h"},
		MaxParallel: 1,
	}}

	if _, err := newTestEngine(DefaultSettings(), taps).Run(context.Background(), sections, RunOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if taps.maxInFlight != 1 {
		t.Errorf("Expected sequential installs, got %d in flight", taps.maxInFlight)
	}
	calls := taps.calls()
	for i, want := range []string{"a/b", "c/d", "e/f", "g/h"} {
		if calls[i] != want {
			t.Errorf("Expected call %d to be %s, got %s", i, want, calls[i])
		}
	}
}

func TestEngine_Run_Idempotent(t *testing.T) {
	npm := newMockBackend("npm")
	cargo := newMockBackend("cargo")

	sections := []Section{
		{ID: "npm", Backend: "npm", Items: []string{"typescript", "prettier"}},
		{ID: "cargo", Backend: "cargo", Items: []string{"ripgrep"}},
	}
	eng := newTestEngine(DefaultSettings(), npm, cargo)

	if _, err := eng.Run(context.Background(), sections, RunOptions{}); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	firstCalls := len(npm.calls()) + len(cargo.calls())

	report, err := eng.Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if got := len(npm.calls()) + len(cargo.calls()); got != firstCalls {
		t.Errorf("Expected no installs on second run, got %d", got-firstCalls)
	}
	if report.Summary.Skipped != 3 || report.Summary.Total != 3 {
		t.Errorf("Expected all 3 items skipped, got %+v", report.Summary)
	}
	if report.Status != RunStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", report.Status)
	}
}

func TestEngine_Run_ContinuePolicy(t *testing.T) {
	a := newMockBackend("a")
	b := newMockBackend("b")
	c := newMockBackend("c")
	d := newMockBackend("d")
	b.failItems["b2"] = true

	sections := []Section{
		{ID: "A", Backend: "a", Items: []string{"a1"}},
		{ID: "B", Backend: "b", Items: []string{"b1", "b2", "b3"}, DependsOn: []string{"A"}},
		{ID: "C", Backend: "c", Items: []string{"c1", "c2"}, DependsOn: []string{"A"}},
		{ID: "D", Backend: "d", Items: []string{"d1"}, DependsOn: []string{"B"}},
	}

	report, err := newTestEngine(DefaultSettings(), a, b, c, d).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := len(b.calls()); got != 3 {
		t.Errorf("Expected all 3 B items attempted, got %d", got)
	}
	if got := len(c.calls()); got != 2 {
		t.Errorf("Expected all 2 C items attempted, got %d", got)
	}

	if k := outcomeKind(t, report, "B", "b2"); k != OutcomeFailed {
		t.Errorf("Expected b2 failed, got %s", k)
	}
	if got := report.Section("C").Count(OutcomeSucceeded); got != 2 {
		t.Errorf("Expected C fully succeeded, got %d", got)
	}

	sb := report.Section("B")
	if sb.Status != SectionStatusFailed || sb.ErrorKind != ErrorKindInstall {
		t.Errorf("Expected B failed with install kind, got %s/%s", sb.Status, sb.ErrorKind)
	}
	if status := report.Section("C").Status; status != SectionStatusSucceeded {
		t.Errorf("Expected C succeeded, got %s", status)
	}

	// item failures in B do not gate D
	if k := outcomeKind(t, report, "D", "d1"); k != OutcomeSucceeded {
		t.Errorf("Expected d1 succeeded, got %s", k)
	}

	failures := report.Failures()
	if len(failures) != 1 || failures[0].Section != "B" || failures[0].Item != "b2" {
		t.Errorf("Expected one failure for B/b2, got %+v", failures)
	}
	if report.Status != RunStatusFailed {
		t.Errorf("Expected status failed, got %s", report.Status)
	}
	if report.Aborted() {
		t.Error("Expected run not aborted in continue mode")
	}
}

func TestEngine_Run_FailFast(t *testing.T) {
	first := newMockBackend("first")
	second := newMockBackend("second")
	first.failItems["a"] = true

	settings := Settings{FailFast: true, MaxParallel: 1}
	sections := []Section{
		{ID: "first", Backend: "first", Items: []string{"a", "b", "c", "d"}},
		{ID: "second", Backend: "second", Items: []string{"x"}},
	}

	report, err := newTestEngine(settings, first, second).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	calls := first.calls()
	if len(calls) != 1 || calls[0] != "a" {
		t.Errorf("Expected only a to be started, got %v", calls)
	}

	for _, item := range []string{"b", "c", "d"} {
		if k := outcomeKind(t, report, "first", item); k != OutcomeCancelled {
			t.Errorf("Expected %s cancelled, got %s", item, k)
		}
	}
	if status := report.Section("first").Status; status != SectionStatusFailed {
		t.Errorf("Expected first failed, got %s", status)
	}

	if second.listCalls != 0 {
		t.Error("Expected second section not to be entered")
	}
	if status := report.Section("second").Status; status != SectionStatusNotAttempted {
		t.Errorf("Expected second not attempted, got %s", status)
	}
	if k := outcomeKind(t, report, "second", "x"); k != OutcomeNotAttempted {
		t.Errorf("Expected x not attempted, got %s", k)
	}

	if !report.Aborted() {
		t.Error("Expected run aborted")
	}
	if report.Status != RunStatusFailed {
		t.Errorf("Expected status failed, got %s", report.Status)
	}
}

func TestEngine_Run_FailFastIgnoresOptionalFailures(t *testing.T) {
	npm := newMockBackend("npm")
	npm.failItems["flaky"] = true

	settings := Settings{FailFast: true, MaxParallel: 1}
	sections := []Section{
		{ID: "npm", Backend: "npm", Items: []string{"flaky", "stable"}, Optional: []string{"flaky"}},
	}

	report, err := newTestEngine(settings, npm).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if k := outcomeKind(t, report, "npm", "stable"); k != OutcomeSucceeded {
		t.Errorf("Expected stable succeeded, got %s", k)
	}
	if report.Status != RunStatusSucceededWithSkips {
		t.Errorf("Expected succeeded_with_skips, got %s", report.Status)
	}
}

func TestEngine_Run_BackendQueryFailure(t *testing.T) {
	brew := newMockBackend("brew")
	brew.listErr = errors.New("brew list exploded")
	npm := newMockBackend("npm")
	cargo := newMockBackend("cargo")

	sections := []Section{
		{ID: "brew", Backend: "brew", Items: []string{"git", "jq"}},
		{ID: "npm", Backend: "npm", Items: []string{"typescript"}, DependsOn: []string{"brew"}},
		{ID: "cargo", Backend: "cargo", Items: []string{"ripgrep"}},
	}

	report, err := newTestEngine(DefaultSettings(), brew, npm, cargo).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sr := report.Section("brew")
	if sr.Status != SectionStatusFailed || sr.ErrorKind != ErrorKindBackendQuery {
		t.Errorf("Expected brew failed with backend query error, got %s/%s", sr.Status, sr.ErrorKind)
	}
	if len(brew.calls()) != 0 {
		t.Error("Expected no brew installs after query failure")
	}
	if got := sr.Count(OutcomeNotAttempted); got != 2 {
		t.Errorf("Expected 2 not attempted brew items, got %d", got)
	}

	if status := report.Section("npm").Status; status != SectionStatusSkippedEntirely {
		t.Errorf("Expected npm skipped entirely, got %s", status)
	}
	if npm.listCalls != 0 {
		t.Error("Expected npm backend untouched")
	}

	if k := outcomeKind(t, report, "cargo", "ripgrep"); k != OutcomeSucceeded {
		t.Errorf("Expected independent section to run, got %s", k)
	}
	if report.Status != RunStatusFailed {
		t.Errorf("Expected status failed, got %s", report.Status)
	}
}

func TestEngine_Run_RuntimeUnavailable(t *testing.T) {
	mas := newMockBackend("mas")
	mas.available = false

	sections := []Section{{ID: "mas", Backend: "mas", Items: []string{"497799835"}}}

	report, err := newTestEngine(DefaultSettings(), mas).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sr := report.Section("mas")
	if sr.Status != SectionStatusFailed || sr.ErrorKind != ErrorKindRuntimeUnavailable {
		t.Errorf("Expected runtime unavailable failure, got %s/%s", sr.Status, sr.ErrorKind)
	}
	if mas.listCalls != 0 {
		t.Error("Expected no query without runtime")
	}
}

func TestEngine_Run_RuntimePrerequisite(t *testing.T) {
	npm := &runtimeBackend{mockBackend: newMockBackend("npm")}
	npm.available = false

	sections := []Section{{ID: "npm", Backend: "npm", Items: []string{"typescript"}}}

	report, err := newTestEngine(DefaultSettings(), npm).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sr := report.Section("npm")
	if len(sr.Outcomes) != 2 {
		t.Fatalf("Expected prerequisite and item outcomes, got %d", len(sr.Outcomes))
	}
	pre := sr.Outcomes[0]
	if !pre.Prerequisite || pre.Item != "node" || pre.Kind != OutcomeSucceeded {
		t.Errorf("Expected succeeded node prerequisite, got %+v", pre)
	}
	if k := outcomeKind(t, report, "npm", "typescript"); k != OutcomeSucceeded {
		t.Errorf("Expected typescript succeeded, got %s", k)
	}
	if report.Summary.Total != 1 {
		t.Errorf("Expected prerequisite excluded from summary, got %d", report.Summary.Total)
	}
}

func TestEngine_Run_RuntimePrerequisiteFailure(t *testing.T) {
	npm := &runtimeBackend{mockBackend: newMockBackend("npm"), runtimeErr: errors.New("brew missing")}
	npm.available = false

	sections := []Section{{ID: "npm", Backend: "npm", Items: []string{"typescript"}}}

	report, err := newTestEngine(DefaultSettings(), npm).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sr := report.Section("npm")
	if sr.Status != SectionStatusFailed || sr.ErrorKind != ErrorKindRuntimeUnavailable {
		t.Errorf("Expected runtime unavailable failure, got %s/%s", sr.Status, sr.ErrorKind)
	}
	if k := outcomeKind(t, report, "npm", "typescript"); k != OutcomeNotAttempted {
		t.Errorf("Expected typescript not attempted, got %s", k)
	}
}

func TestEngine_Run_EmptySectionWithoutDependents(t *testing.T) {
	npm := newMockBackend("npm")

	sections := []Section{{ID: "npm", Backend: "npm"}}

	report, err := newTestEngine(DefaultSettings(), npm).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sr := report.Section("npm")
	if sr.Status != SectionStatusSkippedEntirely || !sr.Empty {
		t.Errorf("Expected empty section skipped, got %s (empty=%v)", sr.Status, sr.Empty)
	}
	if npm.listCalls != 0 {
		t.Error("Expected no query for an empty section")
	}
	if report.Status != RunStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", report.Status)
	}
}

func TestEngine_Run_DuplicateItemsCollapsed(t *testing.T) {
	npm := newMockBackend("npm")

	sections := []Section{{ID: "npm", Backend: "npm", Items: []string{"eslint", "eslint", "prettier"}}}

	report, err := newTestEngine(DefaultSettings(), npm).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := len(npm.calls()); got != 2 {
		t.Errorf("Expected 2 installs, got %d", got)
	}
	if report.Summary.Total != 2 {
		t.Errorf("Expected 2 outcomes, got %d", report.Summary.Total)
	}
}

func TestEngine_Run_OnlySelectedSections(t *testing.T) {
	brew := newMockBackend("brew")
	npm := newMockBackend("npm")

	sections := []Section{
		{ID: "brew", Backend: "brew", Items: []string{"node"}},
		{ID: "npm", Backend: "npm", Items: []string{"typescript"}, DependsOn: []string{"brew"}},
	}

	report, err := newTestEngine(DefaultSettings(), brew, npm).
		Run(context.Background(), sections, RunOptions{Only: []string{"npm"}})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if brew.listCalls != 0 {
		t.Error("Expected unselected section untouched")
	}
	if len(report.Sections) != 1 {
		t.Errorf("Expected 1 section in report, got %d", len(report.Sections))
	}
	if k := outcomeKind(t, report, "npm", "typescript"); k != OutcomeSucceeded {
		t.Errorf("Expected typescript succeeded, got %s", k)
	}
}

func TestEngine_Run_BatchInstaller(t *testing.T) {
	brew := &batchBackend{mockBackend: newMockBackend("brew", "git")}

	sections := []Section{{ID: "brew", Backend: "brew", Items: []string{"git", "jq", "fd"}}}

	report, err := newTestEngine(DefaultSettings(), brew).Run(context.Background(), sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(brew.batches) != 1 {
		t.Fatalf("Expected one batch, got %d", len(brew.batches))
	}
	if got := brew.batches[0]; len(got) != 2 || got[0] != "jq" || got[1] != "fd" {
		t.Errorf("Expected batch [jq fd], got %v", got)
	}
	if calls := brew.calls(); len(calls) != 0 {
		t.Errorf("Expected no single installs, got %v", calls)
	}
	if k := outcomeKind(t, report, "brew", "jq"); k != OutcomeSucceeded {
		t.Errorf("Expected jq succeeded, got %s", k)
	}
	if k := outcomeKind(t, report, "brew", "git"); k != OutcomeSkipped {
		t.Errorf("Expected git skipped, got %s", k)
	}
	if report.Status != RunStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", report.Status)
	}
}

func TestEngine_Run_BatchFallback(t *testing.T) {
	tests := []struct {
		name     string
		failFast bool
		calls    []string
		want     map[string]OutcomeKind
	}{
		{
			name:  "continue installs every item alone",
			calls: []string{"a", "b", "c"},
			want:  map[string]OutcomeKind{"a": OutcomeFailed, "b": OutcomeSucceeded, "c": OutcomeSucceeded},
		},
		{
			name:     "fail fast stops after the first failure",
			failFast: true,
			calls:    []string{"a"},
			want:     map[string]OutcomeKind{"a": OutcomeFailed, "b": OutcomeCancelled, "c": OutcomeCancelled},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkgs := &batchBackend{mockBackend: newMockBackend("syspkg")}
			pkgs.failItems["a"] = true

			settings := Settings{FailFast: tt.failFast, MaxParallel: 4}
			sections := []Section{{ID: "packages", Backend: "syspkg", Items: []string{"a", "b", "c"}}}

			report, err := newTestEngine(settings, pkgs).Run(context.Background(), sections, RunOptions{})
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}

			if len(pkgs.batches) != 1 {
				t.Errorf("Expected one batch attempt, got %d", len(pkgs.batches))
			}
			if got := fmt.Sprint(pkgs.calls()); got != fmt.Sprint(tt.calls) {
				t.Errorf("Expected single installs %v, got %s", tt.calls, got)
			}
			for item, want := range tt.want {
				if k := outcomeKind(t, report, "packages", item); k != want {
					t.Errorf("Expected %s %s, got %s", item, want, k)
				}
			}
			if status := report.Section("packages").Status; status != SectionStatusFailed {
				t.Errorf("Expected section failed, got %s", status)
			}
			if report.Aborted() != tt.failFast {
				t.Errorf("Expected aborted=%v, got %v", tt.failFast, report.Aborted())
			}
		})
	}
}

func TestEngine_Run_CancelledContextAborts(t *testing.T) {
	npm := newMockBackend("npm")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sections := []Section{{ID: "npm", Backend: "npm", Items: []string{"typescript"}}}

	report, err := newTestEngine(DefaultSettings(), npm).Run(ctx, sections, RunOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !report.Aborted() {
		t.Error("Expected run aborted")
	}
	if report.AbortReason != "interrupted" {
		t.Errorf("Expected interrupted abort reason, got %q", report.AbortReason)
	}
	if len(npm.calls()) != 0 {
		t.Error("Expected no installs")
	}
	if k := outcomeKind(t, report, "npm", "typescript"); k != OutcomeNotAttempted {
		t.Errorf("Expected typescript not attempted, got %s", k)
	}
	if report.Status != RunStatusFailed {
		t.Errorf("Expected status failed, got %s", report.Status)
	}
}

func TestEngine_Run_PublishesPhaseTransitions(t *testing.T) {
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}

	tel := telemetry.Nop()
	tel.Events = events

	var mu sync.Mutex
	phases := make([]string, 0)
	events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, fmt.Sprintf("%v->%v", e.Data["from"], e.Data["to"]))
	}, telemetry.FilterByType(telemetry.EventTypePhaseChanged))

	npm := newMockBackend("npm")
	eng := NewEngine(NewRegistry(npm), DefaultSettings(), WithTelemetry(tel))

	sections := []Section{{ID: "npm", Backend: "npm", Items: []string{"typescript"}}}
	if _, err := eng.Run(context.Background(), sections, RunOptions{}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"planning->executing", "executing->done"}
	if len(phases) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("Expected transition %s, got %s", want[i], phases[i])
		}
	}
}
