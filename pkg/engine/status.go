package engine

import (
	"fmt"
)

// OutcomeKind is the result of one (section, item) pair.
type OutcomeKind string

const (
	// OutcomeSkipped indicates the item was already installed.
	OutcomeSkipped OutcomeKind = "skipped"

	// OutcomeSucceeded indicates the item was installed.
	OutcomeSucceeded OutcomeKind = "succeeded"

	// OutcomeFailed indicates the install attempt failed.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeCancelled indicates the item was dropped from the pool queue
	// before it started.
	OutcomeCancelled OutcomeKind = "cancelled"

	// OutcomeNotAttempted indicates the section was never entered or failed
	// before installs were dispatched.
	OutcomeNotAttempted OutcomeKind = "not_attempted"
)

// IsFailure returns true if the outcome counts as a failure.
func (k OutcomeKind) IsFailure() bool {
	return k == OutcomeFailed
}

// Validate checks if the outcome kind is valid.
func (k OutcomeKind) Validate() error {
	switch k {
	case OutcomeSkipped, OutcomeSucceeded, OutcomeFailed,
		OutcomeCancelled, OutcomeNotAttempted:
		return nil
	default:
		return fmt.Errorf("invalid outcome kind: %s", k)
	}
}

// SectionStatus is the final status of a section.
type SectionStatus string

const (
	// SectionStatusSucceeded indicates every required item is installed.
	SectionStatusSucceeded SectionStatus = "succeeded"

	// SectionStatusFailed indicates a section-level failure (runtime unavailable
	// or backend query failure) or a failed required item.
	SectionStatusFailed SectionStatus = "failed"

	// SectionStatusSkippedEntirely indicates the section was skipped because it
	// had nothing to do or a dependency failed.
	SectionStatusSkippedEntirely SectionStatus = "skipped_entirely"

	// SectionStatusNotAttempted indicates the run stopped before the section.
	SectionStatusNotAttempted SectionStatus = "not_attempted"
)

// GatesDependents returns true if sections depending on a section with this
// status and error kind must be skipped. Item install failures never gate.
func (s SectionStatus) GatesDependents(kind ErrorKind) bool {
	switch s {
	case SectionStatusFailed:
		return kind != ErrorKindInstall
	case SectionStatusSkippedEntirely, SectionStatusNotAttempted:
		return true
	default:
		return false
	}
}

// Validate checks if the section status is valid.
func (s SectionStatus) Validate() error {
	switch s {
	case SectionStatusSucceeded, SectionStatusFailed,
		SectionStatusSkippedEntirely, SectionStatusNotAttempted:
		return nil
	default:
		return fmt.Errorf("invalid section status: %s", s)
	}
}

// RunStatus is the overall status of a run.
type RunStatus string

const (
	// RunStatusSucceeded indicates every section and item succeeded or was skipped.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusSucceededWithSkips indicates no failures, but a section was
	// skipped entirely or an optional item failed.
	RunStatusSucceededWithSkips RunStatus = "succeeded_with_skips"

	// RunStatusFailed indicates a required item or a section failed, or the
	// run aborted.
	RunStatusFailed RunStatus = "failed"
)

// IsSuccess returns true if the run counts as successful.
func (s RunStatus) IsSuccess() bool {
	return s == RunStatusSucceeded || s == RunStatusSucceededWithSkips
}

// ExitCode maps the status to a process exit code.
func (s RunStatus) ExitCode() int {
	if s.IsSuccess() {
		return 0
	}
	return 1
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSucceeded, RunStatusSucceededWithSkips, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// RunPhase is a state of the run state machine.
type RunPhase string

const (
	// RunPhasePlanning validates sections and builds the graph.
	RunPhasePlanning RunPhase = "planning"

	// RunPhaseExecuting runs one section at a time.
	RunPhaseExecuting RunPhase = "executing"

	// RunPhaseDone indicates every section has a final status.
	RunPhaseDone RunPhase = "done"

	// RunPhaseAborted indicates the run stopped early.
	RunPhaseAborted RunPhase = "aborted"
)

// IsTerminal returns true if no transition leaves the phase.
func (p RunPhase) IsTerminal() bool {
	return p == RunPhaseDone || p == RunPhaseAborted
}

// CanTransitionTo reports whether moving from p to next is allowed.
func (p RunPhase) CanTransitionTo(next RunPhase) bool {
	switch p {
	case RunPhasePlanning:
		return next == RunPhaseExecuting || next == RunPhaseDone || next == RunPhaseAborted
	case RunPhaseExecuting:
		return next == RunPhaseExecuting || next == RunPhaseDone || next == RunPhaseAborted
	default:
		return false
	}
}
