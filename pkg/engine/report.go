package engine

import (
	"sync"
	"time"
)

// TaskOutcome is the recorded result of one (section, item) pair.
type TaskOutcome struct {
	Section string      `json:"section"`
	Item    string      `json:"item"`
	Kind    OutcomeKind `json:"kind"`

	// Reason explains a failure, cancellation or non-attempt.
	Reason string `json:"reason,omitempty"`

	// ErrorKind classifies a failure.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Optional marks items whose failure is tolerated.
	Optional bool `json:"optional,omitempty"`

	// Prerequisite marks the runtime auto-installation task of a section.
	Prerequisite bool `json:"prerequisite,omitempty"`

	// Duration is how long the install took; zero for items never started.
	Duration time.Duration `json:"duration,omitempty"`

	// Err is the underlying error of a failure.
	Err error `json:"-"`
}

// SectionReport is the result of one section.
type SectionReport struct {
	ID      string        `json:"id"`
	Backend string        `json:"backend"`
	Status  SectionStatus `json:"status"`

	// Reason explains a skip or a section-level failure.
	Reason string `json:"reason,omitempty"`

	// ErrorKind classifies a section-level failure.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Empty is set when the section was skipped for having nothing to do.
	Empty bool `json:"empty,omitempty"`

	// Outcomes are the item outcomes in completion order.
	Outcomes []TaskOutcome `json:"outcomes"`

	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Count returns the number of item outcomes of kind k.
func (s *SectionReport) Count(k OutcomeKind) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Kind == k && !o.Prerequisite {
			n++
		}
	}
	return n
}

// Outcome returns the outcome recorded for item, if any.
func (s *SectionReport) Outcome(item string) (TaskOutcome, bool) {
	for _, o := range s.Outcomes {
		if o.Item == item && !o.Prerequisite {
			return o, true
		}
	}
	return TaskOutcome{}, false
}

// ReportSummary counts item outcomes across the run.
type ReportSummary struct {
	Total        int `json:"total"`
	Skipped      int `json:"skipped"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Cancelled    int `json:"cancelled"`
	NotAttempted int `json:"not_attempted"`
}

// Failure is one failure listed in the run report.
type Failure struct {
	Section string    `json:"section"`
	Item    string    `json:"item,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Reason  string    `json:"reason"`

	// Optional marks tolerated item failures.
	Optional bool `json:"optional,omitempty"`
}

// RunReport is the per-invocation result. It is never persisted.
type RunReport struct {
	RunID  string    `json:"run_id"`
	Policy string    `json:"policy"`
	Status RunStatus `json:"status"`
	Phase  RunPhase  `json:"phase"`

	// AbortReason is set when the run stopped early.
	AbortReason string `json:"abort_reason,omitempty"`

	// Sections are the section reports in execution order.
	Sections []*SectionReport `json:"sections"`

	Summary ReportSummary `json:"summary"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// Section returns the report of the section with the given id.
func (r *RunReport) Section(id string) *SectionReport {
	for _, s := range r.Sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Aborted returns true if the run stopped early.
func (r *RunReport) Aborted() bool {
	return r.Phase == RunPhaseAborted
}

// Failures lists every section-level and item-level failure. Sections failed
// by their items are listed through those items only.
func (r *RunReport) Failures() []Failure {
	out := make([]Failure, 0)
	for _, s := range r.Sections {
		if s.Status == SectionStatusFailed && s.ErrorKind != ErrorKindInstall {
			out = append(out, Failure{
				Section: s.ID,
				Kind:    s.ErrorKind,
				Reason:  s.Reason,
			})
		}
		for _, o := range s.Outcomes {
			if !o.Kind.IsFailure() || o.Prerequisite {
				continue
			}
			out = append(out, Failure{
				Section:  s.ID,
				Item:     o.Item,
				Kind:     o.ErrorKind,
				Reason:   o.Reason,
				Optional: o.Optional,
			})
		}
	}
	return out
}

// Aggregator exclusively owns a RunReport while the run executes. All writes
// go through its mutex.
type Aggregator struct {
	mu        sync.Mutex
	report    *RunReport
	index     map[string]*SectionReport
	finalized bool
}

// NewAggregator creates an aggregator with one NotAttempted section report per
// section, in execution order.
func NewAggregator(runID, policy string, sections []*Section) *Aggregator {
	a := &Aggregator{
		report: &RunReport{
			RunID:     runID,
			Policy:    policy,
			Phase:     RunPhasePlanning,
			Sections:  make([]*SectionReport, 0, len(sections)),
			StartedAt: time.Now(),
		},
		index: make(map[string]*SectionReport, len(sections)),
	}

	for _, s := range sections {
		sr := &SectionReport{
			ID:       s.ID,
			Backend:  s.Backend,
			Status:   SectionStatusNotAttempted,
			Outcomes: make([]TaskOutcome, 0, len(s.Items)),
		}
		a.report.Sections = append(a.report.Sections, sr)
		a.index[s.ID] = sr
	}

	return a
}

// Record appends an item outcome to its section.
func (a *Aggregator) Record(outcome TaskOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return
	}
	if sr, ok := a.index[outcome.Section]; ok {
		sr.Outcomes = append(sr.Outcomes, outcome)
	}
}

// StartSection marks a section as entered.
func (a *Aggregator) StartSection(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sr, ok := a.index[id]; ok && !a.finalized {
		sr.StartedAt = time.Now()
	}
}

// CompleteSection sets the final status of a section.
func (a *Aggregator) CompleteSection(id string, status SectionStatus, reason string, kind ErrorKind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sr, ok := a.index[id]
	if !ok || a.finalized {
		return
	}
	sr.Status = status
	sr.Reason = reason
	sr.ErrorKind = kind
	sr.CompletedAt = time.Now()
	if !sr.StartedAt.IsZero() {
		sr.Duration = sr.CompletedAt.Sub(sr.StartedAt)
	}
}

// MarkEmpty flags a section as skipped for having nothing to do.
func (a *Aggregator) MarkEmpty(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sr, ok := a.index[id]; ok && !a.finalized {
		sr.Empty = true
	}
}

// SectionStatus returns the current status of a section.
func (a *Aggregator) SectionStatus(id string) SectionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sr, ok := a.index[id]; ok {
		return sr.Status
	}
	return SectionStatusNotAttempted
}

// SectionErrorKind returns the error kind a section completed with.
func (a *Aggregator) SectionErrorKind(id string) ErrorKind {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sr, ok := a.index[id]; ok {
		return sr.ErrorKind
	}
	return ""
}

// SetPhase records the current run phase.
func (a *Aggregator) SetPhase(phase RunPhase) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.finalized {
		a.report.Phase = phase
	}
}

// Abort records why the run stopped early.
func (a *Aggregator) Abort(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return
	}
	a.report.Phase = RunPhaseAborted
	if a.report.AbortReason == "" {
		a.report.AbortReason = reason
	}
}

// Finalize computes the summary and overall status and returns the report.
// Later writes are ignored.
func (a *Aggregator) Finalize() *RunReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return a.report
	}
	a.finalized = true

	r := a.report
	if !r.Phase.IsTerminal() {
		r.Phase = RunPhaseDone
	}
	r.CompletedAt = time.Now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
	r.Summary = summarize(r.Sections)
	r.Status = deriveStatus(r)

	return r
}

// summarize counts item outcomes, excluding prerequisite tasks.
func summarize(sections []*SectionReport) ReportSummary {
	var sum ReportSummary
	for _, s := range sections {
		for _, o := range s.Outcomes {
			if o.Prerequisite {
				continue
			}
			sum.Total++
			switch o.Kind {
			case OutcomeSkipped:
				sum.Skipped++
			case OutcomeSucceeded:
				sum.Succeeded++
			case OutcomeFailed:
				sum.Failed++
			case OutcomeCancelled:
				sum.Cancelled++
			case OutcomeNotAttempted:
				sum.NotAttempted++
			}
		}
	}
	return sum
}

// deriveStatus applies the recovery policy's status rules: any required item
// failure, section failure or abort is Failed; skipped sections or tolerated
// failures are SucceededWithSkips.
func deriveStatus(r *RunReport) RunStatus {
	if r.Phase == RunPhaseAborted {
		return RunStatusFailed
	}

	skips := false
	for _, s := range r.Sections {
		switch s.Status {
		case SectionStatusFailed:
			return RunStatusFailed
		case SectionStatusSkippedEntirely:
			if !s.Empty {
				skips = true
			}
		case SectionStatusNotAttempted:
			skips = true
		}

		for _, o := range s.Outcomes {
			if !o.Kind.IsFailure() {
				continue
			}
			if !o.Optional {
				return RunStatusFailed
			}
			skips = true
		}
	}

	if skips {
		return RunStatusSucceededWithSkips
	}
	return RunStatusSucceeded
}
