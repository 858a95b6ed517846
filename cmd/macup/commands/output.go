package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/macup/macup/pkg/engine"
	"github.com/macup/macup/pkg/system"
	"github.com/macup/macup/pkg/telemetry"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outcomeMark(kind engine.OutcomeKind) string {
	switch kind {
	case engine.OutcomeSucceeded:
		return "✓"
	case engine.OutcomeSkipped:
		return "="
	case engine.OutcomeFailed:
		return "✗"
	default:
		return "⊘"
	}
}

// subscribeProgress prints section and item progress as the engine reports
// it. Installs run concurrently, so writes are serialized.
func subscribeProgress(events *telemetry.EventPublisher, w io.Writer) {
	var mu sync.Mutex
	events.Subscribe(func(ev telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()

		switch ev.Type {
		case telemetry.EventTypeSectionStarted:
			fmt.Fprintf(w, "==> %s\n", ev.Section)
		case telemetry.EventTypeItemCompleted:
			outcome, _ := ev.Data["outcome"].(string)
			kind := engine.OutcomeKind(outcome)
			if kind == engine.OutcomeSkipped {
				return
			}
			line := fmt.Sprintf("  %s %s", outcomeMark(kind), ev.Item)
			if reason, _ := ev.Data["reason"].(string); reason != "" {
				line += ": " + reason
			}
			fmt.Fprintln(w, line)
		case telemetry.EventTypeSectionCompleted:
			status, _ := ev.Data["status"].(string)
			if engine.SectionStatus(status) == engine.SectionStatusSucceeded {
				return
			}
			reason, _ := ev.Data["reason"].(string)
			fmt.Fprintf(w, "  %s %s\n", status, reason)
		}
	}, telemetry.FilterByType(
		telemetry.EventTypeSectionStarted,
		telemetry.EventTypeItemCompleted,
		telemetry.EventTypeSectionCompleted,
	))
}

func printReport(w io.Writer, report *engine.RunReport) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s: %s (policy %s, %s)\n",
		report.RunID, report.Status, report.Policy, report.Duration.Round(time.Millisecond))
	if report.AbortReason != "" {
		fmt.Fprintf(w, "Aborted: %s\n", report.AbortReason)
	}

	for _, s := range report.Sections {
		line := fmt.Sprintf("  %-10s %-16s installed %d, skipped %d, failed %d",
			s.ID, s.Status,
			s.Count(engine.OutcomeSucceeded), s.Count(engine.OutcomeSkipped), s.Count(engine.OutcomeFailed))
		if n := s.Count(engine.OutcomeCancelled) + s.Count(engine.OutcomeNotAttempted); n > 0 {
			line += fmt.Sprintf(", not run %d", n)
		}
		if s.Empty {
			line = fmt.Sprintf("  %-10s %-16s nothing to do", s.ID, s.Status)
		} else if s.Reason != "" && s.Status != engine.SectionStatusSucceeded {
			line += " (" + s.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}

	sum := report.Summary
	fmt.Fprintf(w, "Total %d: %d installed, %d already present, %d failed, %d cancelled, %d not attempted\n",
		sum.Total, sum.Succeeded, sum.Skipped, sum.Failed, sum.Cancelled, sum.NotAttempted)

	if failures := report.Failures(); len(failures) > 0 {
		fmt.Fprintln(w, "Failures:")
		for _, f := range failures {
			name := f.Section
			if f.Item != "" {
				name += "/" + f.Item
			}
			suffix := ""
			if f.Optional {
				suffix = " (optional)"
			}
			fmt.Fprintf(w, "  ✗ %s: %s%s\n", name, f.Reason, suffix)
		}
	}
}

func printDiffs(w io.Writer, diffs []engine.SectionDiff) {
	total := 0
	for _, d := range diffs {
		switch {
		case d.Err != nil:
			fmt.Fprintf(w, "%s: query failed: %v\n", d.Section, d.Err)
			continue
		case d.RuntimeMissing:
			fmt.Fprintf(w, "%s: %s not available, would be installed first\n", d.Section, d.Backend)
		}

		fmt.Fprintf(w, "%s: %d installed, %d missing\n", d.Section, len(d.Installed), len(d.Missing))
		for _, item := range d.Missing {
			fmt.Fprintf(w, "  + %s\n", item)
		}
		total += len(d.Missing)
	}

	if total == 0 {
		fmt.Fprintln(w, "Everything is up to date.")
	} else {
		fmt.Fprintf(w, "%d item(s) would be installed.\n", total)
	}
}

func printPlan(w io.Writer, plan *engine.Plan) {
	fmt.Fprintf(w, "Plan %s: %d sections, %d items (policy %s, max_parallel %d)\n",
		plan.ID, len(plan.Order), plan.TotalItems(), plan.Settings.Policy(), plan.Settings.MaxParallel)

	for i, section := range plan.Ordered() {
		line := fmt.Sprintf("%2d. %-10s [%s] %d items, max_parallel %d",
			i+1, section.ID, section.Backend, len(section.Items), plan.MaxParallelFor(section))
		if len(section.DependsOn) > 0 {
			line += ", after " + strings.Join(section.DependsOn, ", ")
		}
		fmt.Fprintln(w, line)
	}
}

func printSystemResults(w io.Writer, results []system.CommandResult) {
	fmt.Fprintln(w, "==> system settings")
	for _, r := range results {
		if r.Succeeded() {
			fmt.Fprintf(w, "  ✓ %s\n", r.Command)
			continue
		}
		reason := r.Error
		if reason == "" {
			reason = fmt.Sprintf("exit status %d", r.ExitCode)
		}
		fmt.Fprintf(w, "  ✗ %s: %s\n", r.Command, reason)
	}
}
