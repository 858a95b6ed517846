// Package engine provides the execution engine of macup.
//
// # Overview
//
// The engine turns a declared set of named, inter-dependent sections into an
// ordered, bounded-parallel, idempotent run. A run goes through these steps:
//
//  1. Plan - Validate sections and settings, resolve backends (Planner)
//  2. Graph - Detect cycles and compute a stable topological order (DAGBuilder)
//  3. Diff - Query each backend once for installed items (Differ)
//  4. Install - Install missing items through a bounded worker pool (Engine)
//  5. Report - Aggregate outcomes and derive the overall status (Aggregator)
//
// # Backends
//
// Package managers are reached through the Backend interface:
//
//	type Backend interface {
//	    Name() string
//	    RuntimeAvailable(ctx context.Context) bool
//	    ListInstalled(ctx context.Context) (ItemSet, error)
//	    IsInstalled(ctx context.Context, item string) (bool, error)
//	    Install(ctx context.Context, item string) error
//	}
//
// Backends whose tool installs many items at once implement BatchInstaller.
// Backends that can install their own tool implement RuntimeInstaller; the
// engine runs that installation as a prerequisite task before the section.
//
// # Execution Model
//
// Sections run strictly one after another in plan order. Within a section,
// missing items are submitted in declaration order to a pool of
// max_parallel workers. A section is skipped entirely when it has no items
// and no dependents, or when a dependency ended with a section-level failure.
// Item failures inside a dependency do not skip dependents.
//
// # Recovery Policies
//
//   - continue: failures never stop other items or later sections
//   - fail_fast: the first failure cancels items not yet started and no later
//     section is entered
//
// Cancelling the context behaves like fail_fast and ends the run aborted.
//
// # Error Handling
//
// Errors are classified with EngineError. Only config validation and cyclic
// dependency errors are returned from Run; backend query, runtime and install
// errors are recorded in the RunReport.
//
//	report, err := eng.Run(ctx, sections, engine.RunOptions{})
//	if engine.IsCyclicDependency(err) {
//	    // nothing was installed
//	}
//	for _, f := range report.Failures() {
//	    fmt.Printf("%s/%s: %s\n", f.Section, f.Item, f.Reason)
//	}
package engine
