package tasks

import (
	"fmt"

	"github.com/desertthunder/plx/internal/models"
)

// ProgressUpdate represents a progress event during a migration.
//
// Used to send real-time updates to the CLI, TUI or SSE stream for display.
type ProgressUpdate struct {
	Phase    Phase             `json:"phase"`    // Migration phase
	Step     int               `json:"step"`     // Current step number within phase
	Total    int               `json:"total"`    // Total steps in this phase
	Message  string            `json:"message"`  // Human-readable message for display
	Progress MigrationProgress `json:"progress"` // Snapshot of the run's counters
}

// Migration phase enumeration
type Phase int

const (
	PhaseValidating Phase = iota
	PhaseFetchingSource
	PhaseResolvingTarget
	PhaseFetchingTargetExisting
	PhaseResolving
	PhaseWriting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhaseFetchingSource:
		return "fetching_source"
	case PhaseResolvingTarget:
		return "resolving_target"
	case PhaseFetchingTargetExisting:
		return "fetching_target_existing"
	case PhaseResolving:
		return "resolving"
	case PhaseWriting:
		return "writing"
	case PhaseDone:
		return "done"
	default:
		return ""
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func validatingUpdate(req MigrationRequest) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseValidating,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Checking %s and %s credentials...", req.Source.DisplayName(), req.Target.DisplayName()),
	}
}

func fetchingSourceUpdate(loaded, estimated int, name string, p MigrationProgress) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseFetchingSource,
		Step:     loaded,
		Total:    estimated,
		Message:  fmt.Sprintf("Fetching source playlist (%s): %d/%d tracks", name, loaded, estimated),
		Progress: p.Snapshot(),
	}
}

func resolvingTargetUpdate(name string, p MigrationProgress) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseResolvingTarget,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Looking for playlist %q...", name),
		Progress: p.Snapshot(),
	}
}

func targetReadyUpdate(name, id string, created bool, p MigrationProgress) ProgressUpdate {
	verb := "Using existing"
	if created {
		verb = "Created"
	}
	return ProgressUpdate{
		Phase:    PhaseResolvingTarget,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("%s playlist: %s (ID: %s)", verb, name, id),
		Progress: p.Snapshot(),
	}
}

func fetchingExistingUpdate(loaded, estimated int, p MigrationProgress) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseFetchingTargetExisting,
		Step:     loaded,
		Total:    estimated,
		Message:  fmt.Sprintf("Fetching existing tracks to skip duplicates: %d/%d", loaded, estimated),
		Progress: p.Snapshot(),
	}
}

func lookupUpdate(completed, total int, p MigrationProgress) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseResolving,
		Step:     completed,
		Total:    total,
		Message:  fmt.Sprintf("Looking up track mappings: %d/%d", completed, total),
		Progress: p.Snapshot(),
	}
}

func classifiedUpdate(t models.SourceTrack, outcome string, p MigrationProgress) ProgressUpdate {
	var mark string
	switch outcome {
	case outcomeImported:
		mark = "✓"
	case outcomeDuplicate:
		mark = "⏭"
	default:
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:    PhaseResolving,
		Step:     p.Current,
		Total:    p.Total,
		Message:  fmt.Sprintf("[%d/%d] %s %s", p.Current, p.Total, mark, t.DisplayName()),
		Progress: p.Snapshot(),
	}
}

func writingUpdate(count int, target models.Provider, p MigrationProgress) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseWriting,
		Step:     0,
		Total:    count,
		Message:  fmt.Sprintf("Adding %d tracks to %s...", count, target.DisplayName()),
		Progress: p.Snapshot(),
	}
}

func doneUpdate(r *MigrationResult, p MigrationProgress) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseDone,
		Step:     r.Total,
		Total:    r.Total,
		Message:  fmt.Sprintf("Imported %d, skipped %d, duplicates %d", r.Imported, r.Skipped, r.DuplicatesSkipped),
		Progress: p.Snapshot(),
	}
}
