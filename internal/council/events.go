package council

import (
	"github.com/council-run/council/internal/events"
)

// Event type constants, following the internal/events naming convention.
const (
	TypeJobStarted      = "council_job_started"
	TypePhaseStarted    = "council_phase_started"
	TypePhaseNote       = "council_phase_note"
	TypeArtifactWritten = "council_artifact_written"
	TypeCommandStarted  = "council_command_started"
	TypeCommandFinished = "council_command_finished"
	TypeWarning         = "council_warning"
	TypeError           = "council_error"
	TypeJobFinished     = "council_job_finished"
)

// JobStartedEvent is always the first event on a run's channel.
type JobStartedEvent struct {
	events.BaseEvent
	Mode   Mode   `json:"mode"`
	Target string `json:"target"`
}

func NewJobStartedEvent(runID string, mode Mode, target string) JobStartedEvent {
	return JobStartedEvent{
		BaseEvent: events.NewBaseEventLegacy(TypeJobStarted, runID),
		Mode:      mode,
		Target:    target,
	}
}

// PhaseStartedEvent marks the beginning of a Runner phase.
type PhaseStartedEvent struct {
	events.BaseEvent
	Phase Phase `json:"phase"`
}

func NewPhaseStartedEvent(runID string, phase Phase) PhaseStartedEvent {
	return PhaseStartedEvent{BaseEvent: events.NewBaseEventLegacy(TypePhaseStarted, runID), Phase: phase}
}

// PhaseNoteEvent carries a free-form progress note within a phase.
type PhaseNoteEvent struct {
	events.BaseEvent
	Phase Phase  `json:"phase"`
	Note  string `json:"note"`
}

func NewPhaseNoteEvent(runID string, phase Phase, note string) PhaseNoteEvent {
	return PhaseNoteEvent{BaseEvent: events.NewBaseEventLegacy(TypePhaseNote, runID), Phase: phase, Note: note}
}

// ArtifactWrittenEvent is emitted immediately after an artifact file is
// written, never before, so observers never race to read a nonexistent file.
type ArtifactWrittenEvent struct {
	events.BaseEvent
	Phase Phase  `json:"phase"`
	Path  string `json:"path"`
}

func NewArtifactWrittenEvent(runID string, phase Phase, path string) ArtifactWrittenEvent {
	return ArtifactWrittenEvent{BaseEvent: events.NewBaseEventLegacy(TypeArtifactWritten, runID), Phase: phase, Path: path}
}

// CommandStartedEvent marks a subprocess invocation (e.g. a verify command).
type CommandStartedEvent struct {
	events.BaseEvent
	Phase   Phase  `json:"phase"`
	Command string `json:"command"`
}

func NewCommandStartedEvent(runID string, phase Phase, command string) CommandStartedEvent {
	return CommandStartedEvent{BaseEvent: events.NewBaseEventLegacy(TypeCommandStarted, runID), Phase: phase, Command: command}
}

// CommandFinishedEvent reports a subprocess's captured outcome.
type CommandFinishedEvent struct {
	events.BaseEvent
	Phase   Phase  `json:"phase"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

func NewCommandFinishedEvent(runID string, phase Phase, command string, success bool) CommandFinishedEvent {
	return CommandFinishedEvent{BaseEvent: events.NewBaseEventLegacy(TypeCommandFinished, runID), Phase: phase, Command: command, Success: success}
}

// WarningEvent reports a tolerated, non-fatal failure (e.g. one critic erred).
type WarningEvent struct {
	events.BaseEvent
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

func NewWarningEvent(runID string, phase Phase, message string) WarningEvent {
	return WarningEvent{BaseEvent: events.NewBaseEventLegacy(TypeWarning, runID), Phase: phase, Message: message}
}

// ErrorEvent reports a fatal failure and the phase it occurred in.
type ErrorEvent struct {
	events.BaseEvent
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

func NewErrorEvent(runID string, phase Phase, message string) ErrorEvent {
	return ErrorEvent{BaseEvent: events.NewBaseEventLegacy(TypeError, runID), Phase: phase, Message: message}
}

// JobFinishedEvent is always the last event on a run's channel.
type JobFinishedEvent struct {
	events.BaseEvent
	Outcome JobOutcome `json:"outcome"`
	Summary string     `json:"summary"`
}

func NewJobFinishedEvent(runID string, outcome JobOutcome, summary string) JobFinishedEvent {
	return JobFinishedEvent{BaseEvent: events.NewBaseEventLegacy(TypeJobFinished, runID), Outcome: outcome, Summary: summary}
}
