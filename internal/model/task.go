// Package model holds the shared domain types for the orchestrator core:
// Task, Expert, KnowledgeNode, SessionExchange and BoardDecision. Types here
// carry no behavior beyond small invariant helpers — persistence and
// transition logic live in internal/persistence and internal/executor.
package model

import "time"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending         Status = "pending"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
	StatusDeferredToHuman Status = "deferred_to_human"
)

// IsTerminal reports whether the worker loop must stop touching the task.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusDeferredToHuman:
		return true
	default:
		return false
	}
}

// Priority orders pull eligibility within the Executor's batch selection.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ErrorKind is the normalized last_error taxonomy from spec.md §4.2 step 5.
type ErrorKind string

const (
	ErrorTimeout       ErrorKind = "timeout"
	ErrorEmptyOrShort  ErrorKind = "empty_or_short_response"
	ErrorValidation    ErrorKind = "validation_failed"
	ErrorConnection    ErrorKind = "connection_error"
	ErrorOOMOrMetal    ErrorKind = "oom_or_metal"
	ErrorEcho          ErrorKind = "echo"
	ErrorOther         ErrorKind = "other"
	ErrorConfiguration ErrorKind = "configuration_error"
)

// BackendFamily names one of the two LLM provider families Router multiplexes.
type BackendFamily string

const (
	FamilyFast  BackendFamily = "fast"  // CPU-friendly, Ollama-like
	FamilyHeavy BackendFamily = "heavy" // GPU/Metal-accelerated, MLX-like
)

// TaskMetadata is the free-form bag of auxiliary task state described in
// spec.md §3. It is persisted as JSONB; fields are optional by construction.
type TaskMetadata struct {
	LastError        ErrorKind     `json:"last_error,omitempty"`
	BatchGroup        string        `json:"batch_group,omitempty"`
	ParentTaskID      string        `json:"parent_task_id,omitempty"`
	PreferredFamily   BackendFamily `json:"preferred_source,omitempty"`
	PreferredModel    string        `json:"preferred_model,omitempty"`
	WebSearchAttached bool          `json:"web_search_attached,omitempty"`
	BoardEscalated    bool          `json:"board_escalated,omitempty"`
	DeferredToHuman   bool          `json:"deferred_to_human,omitempty"`
	LastOutput        string        `json:"last_output,omitempty"`
}

// Task is the unit of durable work owned by the Executor.
type Task struct {
	ID             string
	Goal           string
	ProjectContext string
	Assignee       string // expert name, or "direct"; empty until assigned
	Status         Status
	Priority       Priority
	AttemptCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	NextRetryAfter *time.Time
	Metadata       TaskMetadata
}

// TaskTransition is an immutable audit record of a single status change.
// This supplements spec.md §3/§8 with a read-only history used for
// debugging escalations and stuck-sweep behavior; it does not alter any
// invariant.
type TaskTransition struct {
	ID         int64
	TaskID     string
	FromStatus Status
	ToStatus   Status
	Reason     string
	CreatedAt  time.Time
}

// ReadyForPull reports whether t is eligible for the Executor's pull query:
// pending, assigned, and past any retry backoff.
func (t Task) ReadyForPull(now time.Time) bool {
	if t.Status != StatusPending || t.Assignee == "" {
		return false
	}
	if t.NextRetryAfter != nil && t.NextRetryAfter.After(now) {
		return false
	}
	return true
}

// Stuck reports whether an in_progress task has exceeded the heartbeat
// liveness window and is eligible for the stuck sweep.
func (t Task) Stuck(now time.Time, stuckAfter time.Duration) bool {
	return t.Status == StatusInProgress && now.Sub(t.UpdatedAt) > stuckAfter
}
