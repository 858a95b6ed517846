package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/macup/macup/pkg/telemetry"
)

// RunOptions are per-invocation options of Engine.Run.
type RunOptions struct {
	// Only restricts the run to the named sections.
	Only []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithTelemetry sets the telemetry bundle used for logs, spans, metrics and
// events.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) {
		if t != nil {
			e.tel = t
		}
	}
}

// Engine turns a set of inter-dependent sections into an ordered, bounded
// parallel, idempotent run. Sections run strictly one after another; items
// within a section run through a worker pool.
type Engine struct {
	registry *Registry
	settings Settings
	planner  *Planner
	differ   *Differ
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
}

// NewEngine creates an engine. Settings are passed explicitly and never read
// from globals.
func NewEngine(registry *Registry, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		settings: settings,
		planner:  NewPlanner(registry),
		differ:   NewDiffer(registry),
		tel:      telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.tel.Logger.NewComponentLogger("engine")
	return e
}

// Settings returns the engine settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Plan validates sections and computes the execution order without touching
// any backend.
func (e *Engine) Plan(sections []Section, opts RunOptions) (*Plan, error) {
	return e.planner.Plan(sections, e.settings, PlanOptions{Only: opts.Only})
}

// Run plans and executes sections. Config validation and cycle errors are
// returned before any backend is called; every other failure is recorded in
// the report.
func (e *Engine) Run(ctx context.Context, sections []Section, opts RunOptions) (*RunReport, error) {
	plan, err := e.Plan(sections, opts)
	if err != nil {
		e.logger.WithError(err).Error("Planning failed")
		_ = e.tel.Events.PublishRunAborted("", err.Error())
		return nil, err
	}
	return e.Execute(ctx, plan), nil
}

// runState is the mutable state of one execution.
type runState struct {
	id     string
	plan   *Plan
	agg    *Aggregator
	phase  RunPhase
	logger *telemetry.Logger
}

// Execute runs a validated plan and returns the finalized report.
func (e *Engine) Execute(ctx context.Context, plan *Plan) *RunReport {
	rs := &runState{
		id:    uuid.New().String(),
		plan:  plan,
		phase: RunPhasePlanning,
	}
	rs.logger = e.logger.WithRunID(rs.id)
	rs.agg = NewAggregator(rs.id, plan.Settings.Policy(), plan.Ordered())

	ctx, span := e.tel.Tracer.StartRunSpan(ctx, rs.id, plan.Settings.Policy())
	ctx = rs.logger.WithContext(ctx)

	rs.logger.Infof("Starting run: %d sections, %d items, policy %s, max_parallel %d",
		len(plan.Order), plan.TotalItems(), plan.Settings.Policy(), plan.Settings.MaxParallel)
	_ = e.tel.Events.PublishRunStarted(rs.id, plan.Settings.Policy(), len(plan.Order))

	for i, section := range plan.Ordered() {
		if err := ctx.Err(); err != nil {
			e.abort(rs, "interrupted")
			break
		}

		e.transition(rs, RunPhaseExecuting)
		rs.logger.Debugf("Executing section %d/%d: %s", i+1, len(plan.Order), section.ID)

		if halt := e.executeSection(ctx, rs, section); halt {
			reason := fmt.Sprintf("fail_fast: section %s failed", section.ID)
			if ctx.Err() != nil {
				reason = "interrupted"
			}
			e.abort(rs, reason)
			break
		}
	}

	if rs.phase != RunPhaseAborted && ctx.Err() != nil {
		e.abort(rs, "interrupted")
	}
	if rs.phase == RunPhaseAborted {
		e.markUnentered(rs)
	} else {
		e.transition(rs, RunPhaseDone)
	}

	report := rs.agg.Finalize()

	e.tel.Metrics.RecordRunCompleted(string(report.Status), report.Duration)
	_ = e.tel.Events.PublishRunCompleted(rs.id, string(report.Status), report.Duration)
	span.SetAttributes(telemetry.AttrRunStatus.String(string(report.Status)))

	var runErr error
	if !report.Status.IsSuccess() {
		runErr = fmt.Errorf("run %s", report.Status)
	}
	telemetry.EndSpan(span, runErr)

	rs.logger.Infof("Run finished: %s (%d installed, %d skipped, %d failed, %d cancelled, %d not attempted)",
		report.Status, report.Summary.Succeeded, report.Summary.Skipped, report.Summary.Failed,
		report.Summary.Cancelled, report.Summary.NotAttempted)

	return report
}

// transition moves the run state machine, publishing the change.
func (e *Engine) transition(rs *runState, next RunPhase) {
	if rs.phase == next && next == RunPhaseExecuting {
		rs.agg.SetPhase(next)
		return
	}
	if !rs.phase.CanTransitionTo(next) {
		rs.logger.Errorf("Invalid run phase transition %s -> %s", rs.phase, next)
		return
	}
	_ = e.tel.Events.PublishPhaseChanged(rs.id, string(rs.phase), string(next))
	rs.phase = next
	rs.agg.SetPhase(next)
}

// abort moves the run to the Aborted phase.
func (e *Engine) abort(rs *runState, reason string) {
	if rs.phase == RunPhaseAborted {
		return
	}
	e.transition(rs, RunPhaseAborted)
	rs.agg.Abort(reason)
	rs.logger.Warnf("Run aborted: %s", reason)
	_ = e.tel.Events.PublishRunAborted(rs.id, reason)
}

// markUnentered records NotAttempted outcomes for sections the run never
// entered.
func (e *Engine) markUnentered(rs *runState) {
	for _, section := range rs.plan.Ordered() {
		if rs.agg.SectionStatus(section.ID) != SectionStatusNotAttempted {
			continue
		}
		e.notAttempted(rs, section, "run aborted before section started")
		rs.agg.CompleteSection(section.ID, SectionStatusNotAttempted, "run aborted before section started", "")
	}
}

// executeSection runs one section and returns true if the run must halt.
func (e *Engine) executeSection(ctx context.Context, rs *runState, section *Section) bool {
	logger := rs.logger.WithSection(section.ID, section.Backend)
	declared := dedupe(section.Items)

	rs.agg.StartSection(section.ID)
	_ = e.tel.Events.PublishSectionStarted(rs.id, section.ID, section.Backend, len(declared))

	ctx, span := e.tel.Tracer.StartSectionSpan(ctx, section.ID, section.Backend)
	timer := telemetry.NewTimer()

	complete := func(status SectionStatus, reason string, err error) {
		var kind ErrorKind
		if err != nil {
			kind = KindOf(err)
		}
		rs.agg.CompleteSection(section.ID, status, reason, kind)
		e.tel.Metrics.RecordSectionCompleted(section.Backend, string(status), timer.Duration())
		_ = e.tel.Events.PublishSectionCompleted(rs.id, section.ID, string(status), reason)
		telemetry.EndSpan(span, err)

		switch status {
		case SectionStatusFailed:
			logger.WithError(err).Error("Section failed")
		case SectionStatusSkippedEntirely:
			logger.Infof("Section skipped: %s", reason)
		default:
			logger.Debug("Section finished")
		}
	}

	if len(declared) == 0 && !rs.plan.Graph.HasDependents(section.ID) {
		rs.agg.MarkEmpty(section.ID)
		complete(SectionStatusSkippedEntirely, "no items declared", nil)
		return false
	}

	if dep, status, gated := e.gatingDependency(rs, section); gated {
		reason := fmt.Sprintf("dependency %s %s", dep, strings.ReplaceAll(string(status), "_", " "))
		e.notAttempted(rs, section, reason)
		complete(SectionStatusSkippedEntirely, reason, nil)
		return false
	}

	backend, err := e.registry.Get(section.Backend)
	if err != nil {
		e.notAttempted(rs, section, err.Error())
		complete(SectionStatusFailed, err.Error(), err)
		return rs.plan.Settings.FailFast
	}

	if err := e.ensureRuntime(ctx, rs, section, backend); err != nil {
		e.notAttempted(rs, section, "runtime unavailable")
		complete(SectionStatusFailed, err.Error(), err)
		return rs.plan.Settings.FailFast
	}

	diff, err := e.differ.query(ctx, section, backend)
	if err != nil {
		e.tel.Metrics.RecordBackendQueryError(backend.Name())
		e.notAttempted(rs, section, "installed state unknown")
		complete(SectionStatusFailed, err.Error(), err)
		return rs.plan.Settings.FailFast
	}

	for _, item := range diff.Installed {
		e.record(rs, section, TaskOutcome{
			Section:  section.ID,
			Item:     item,
			Kind:     OutcomeSkipped,
			Reason:   "already installed",
			Optional: section.IsOptional(item),
		})
	}
	logger.Debugf("Diff: %d installed, %d to install", len(diff.Installed), len(diff.Missing))

	if len(diff.Missing) == 0 {
		complete(SectionStatusSucceeded, "", nil)
		return false
	}

	var failures int
	if batch, ok := backend.(BatchInstaller); ok {
		failures = e.installBatch(ctx, rs, section, backend, batch, diff.Missing)
	} else {
		failures = e.installPooled(ctx, rs, section, backend, diff.Missing, rs.plan.MaxParallelFor(section))
	}

	switch {
	case failures > 0:
		reason := fmt.Sprintf("%d item(s) failed to install", failures)
		complete(SectionStatusFailed, reason, NewInstallError(reason, nil).WithSection(section.ID))
		return rs.plan.Settings.FailFast || ctx.Err() != nil
	case ctx.Err() != nil:
		complete(SectionStatusFailed, "interrupted", newError(ErrorKindCancelled, "interrupted", ctx.Err()))
		return true
	default:
		complete(SectionStatusSucceeded, "", nil)
		return false
	}
}

// gatingDependency returns the first dependency whose result skips section.
func (e *Engine) gatingDependency(rs *runState, section *Section) (string, SectionStatus, bool) {
	node, ok := rs.plan.Graph.Nodes[section.ID]
	if !ok {
		return "", "", false
	}
	for _, dep := range node.Dependencies {
		status := rs.agg.SectionStatus(dep)
		if status.GatesDependents(rs.agg.SectionErrorKind(dep)) {
			return dep, status, true
		}
	}
	return "", "", false
}

// ensureRuntime checks that the backend tool is callable, installing it as a
// prerequisite task when the backend knows how.
func (e *Engine) ensureRuntime(ctx context.Context, rs *runState, section *Section, backend Backend) error {
	if backend.RuntimeAvailable(ctx) {
		return nil
	}

	installer, ok := backend.(RuntimeInstaller)
	if !ok {
		return NewRuntimeUnavailableError(
			fmt.Sprintf("%s is not available", backend.Name()), nil).WithSection(section.ID)
	}

	runtime := installer.RuntimeName()
	rs.logger.WithSection(section.ID, section.Backend).Infof("Installing runtime %s", runtime)
	_ = e.tel.Events.PublishItemStarted(rs.id, section.ID, runtime)

	timer := telemetry.NewTimer()
	err := installer.InstallRuntime(ctx)
	if err == nil && !backend.RuntimeAvailable(ctx) {
		err = fmt.Errorf("%s still not available after install", runtime)
	}

	outcome := TaskOutcome{
		Section:      section.ID,
		Item:         runtime,
		Kind:         OutcomeSucceeded,
		Prerequisite: true,
		Duration:     timer.Duration(),
	}
	status := "succeeded"
	if err != nil {
		outcome.Kind = OutcomeFailed
		outcome.Reason = err.Error()
		outcome.ErrorKind = ErrorKindRuntimeUnavailable
		outcome.Err = err
		status = "failed"
	}
	e.tel.Metrics.RecordRuntimeInstall(backend.Name(), status)
	e.record(rs, section, outcome)

	if err != nil {
		return NewRuntimeUnavailableError(
			fmt.Sprintf("failed to install %s runtime %s", backend.Name(), runtime), err).WithSection(section.ID)
	}
	return nil
}

// installPooled installs missing items through a bounded worker pool and
// returns the number of required items that failed.
func (e *Engine) installPooled(ctx context.Context, rs *runState, section *Section, backend Backend, missing []string, limit int) int {
	tasks := make([]InstallTask, 0, len(missing))
	for _, item := range missing {
		tasks = append(tasks, InstallTask{Section: section.ID, Item: item})
	}

	var mu sync.Mutex
	failures := 0

	pool := newWorkerPool(limit, rs.plan.Settings.FailFast)
	pool.tolerated = func(task InstallTask) bool {
		return section.IsOptional(task.Item)
	}
	pool.onStart = func(task InstallTask) {
		e.tel.Metrics.InstallStarted()
		_ = e.tel.Events.PublishItemStarted(rs.id, section.ID, task.Item)
	}
	pool.onDone = func(res poolResult) {
		if !res.Cancelled {
			e.tel.Metrics.InstallFinished()
		}
		outcome := e.outcomeFor(ctx, section, res)
		if outcome.Kind.IsFailure() && !outcome.Optional {
			mu.Lock()
			failures++
			mu.Unlock()
		}
		e.record(rs, section, outcome)
	}

	pool.Run(ctx, tasks, func(ctx context.Context, task InstallTask) error {
		ctx, span := e.tel.Tracer.StartItemSpan(ctx, section.ID, section.Backend, task.Item)
		err := backend.Install(ctx, task.Item)
		telemetry.EndSpan(span, err)
		return err
	})

	mu.Lock()
	defer mu.Unlock()
	return failures
}

// installBatch hands the whole list to a batch-native backend in one call.
// When the batch fails the items are retried one at a time through the pool,
// so outcomes are per item and fail_fast stops at the first failure. It
// returns the number of required items that failed.
func (e *Engine) installBatch(ctx context.Context, rs *runState, section *Section, backend Backend, batch BatchInstaller, missing []string) int {
	batchCtx, span := e.tel.Tracer.StartItemSpan(ctx, section.ID, section.Backend, strings.Join(missing, ","))
	for _, item := range missing {
		_ = e.tel.Events.PublishItemStarted(rs.id, section.ID, item)
	}

	e.tel.Metrics.InstallStarted()
	timer := telemetry.NewTimer()
	err := batch.InstallBatch(batchCtx, missing)
	duration := timer.Duration()
	e.tel.Metrics.InstallFinished()
	telemetry.EndSpan(span, err)

	if err == nil || ctx.Err() != nil {
		for _, item := range missing {
			e.record(rs, section, e.outcomeFor(ctx, section, poolResult{
				Task:     InstallTask{Section: section.ID, Item: item},
				Err:      err,
				Duration: duration,
			}))
		}
		return 0
	}

	// Batch tools hold a global lock, so the retry is sequential
	rs.logger.WithSection(section.ID, section.Backend).WithError(err).
		Warn("Batch install failed, installing items one at a time")
	return e.installPooled(ctx, rs, section, backend, missing, 1)
}

// outcomeFor converts a pool result into a task outcome.
func (e *Engine) outcomeFor(ctx context.Context, section *Section, res poolResult) TaskOutcome {
	outcome := TaskOutcome{
		Section:  section.ID,
		Item:     res.Task.Item,
		Optional: section.IsOptional(res.Task.Item),
		Duration: res.Duration,
	}

	switch {
	case res.Cancelled:
		outcome.Kind = OutcomeCancelled
		outcome.Reason = res.Reason
		outcome.Duration = 0
	case res.Err == nil:
		outcome.Kind = OutcomeSucceeded
	case ctx.Err() != nil:
		outcome.Kind = OutcomeCancelled
		outcome.Reason = "interrupted"
		outcome.Err = res.Err
	default:
		ierr := NewInstallError(fmt.Sprintf("failed to install %s", res.Task.Item), res.Err).
			WithSection(section.ID).WithItem(res.Task.Item)
		outcome.Kind = OutcomeFailed
		outcome.Reason = res.Err.Error()
		outcome.ErrorKind = ErrorKindInstall
		outcome.Err = ierr
	}

	return outcome
}

// notAttempted records NotAttempted outcomes for every declared item.
func (e *Engine) notAttempted(rs *runState, section *Section, reason string) {
	for _, item := range dedupe(section.Items) {
		e.record(rs, section, TaskOutcome{
			Section:  section.ID,
			Item:     item,
			Kind:     OutcomeNotAttempted,
			Reason:   reason,
			Optional: section.IsOptional(item),
		})
	}
}

// record stores an outcome and reports it to telemetry.
func (e *Engine) record(rs *runState, section *Section, outcome TaskOutcome) {
	rs.agg.Record(outcome)

	if !outcome.Prerequisite {
		e.tel.Metrics.RecordItemOutcome(section.Backend, string(outcome.Kind), outcome.Duration)
	}
	_ = e.tel.Events.PublishItemCompleted(rs.id, section.ID, outcome.Item, string(outcome.Kind), outcome.Reason)

	logger := rs.logger.WithSection(section.ID, section.Backend).WithItem(outcome.Item)
	switch outcome.Kind {
	case OutcomeFailed:
		if outcome.Optional {
			logger.Warnf("Optional item failed: %s", outcome.Reason)
		} else {
			logger.Errorf("Item failed: %s", outcome.Reason)
		}
	case OutcomeSucceeded:
		logger.Info("Installed")
	default:
		logger.Debugf("Item %s", outcome.Kind)
	}
}
