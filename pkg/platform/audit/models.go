package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can route or retain them differently.
type EventCategory string

const (
	// CategoryDataQuality covers findings about the source data itself:
	// directory keys that collide, roster rows no directory knows.
	CategoryDataQuality EventCategory = "data_quality"

	// CategoryOperations covers routine run bookkeeping.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted by the enrichment service to record what a resolution
// run found. It stays transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// RunID groups every event of one resolution run.
	RunID  string `json:"run_id"`
	Action string `json:"action"`
	// Subject is the roster identifier the event is about, when there is one.
	Subject string `json:"subject,omitempty"`
	// Directory, Field and Key locate a directory finding.
	Directory  string `json:"directory,omitempty"`
	Field      string `json:"field,omitempty"`
	Key        string `json:"key,omitempty"`
	Candidates int    `json:"candidates,omitempty"`
	Pass       string `json:"pass,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	// ActorID is the requester that triggered the run, or the CLI user.
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	EventResolutionCompleted   AuditEvent = "resolution_completed"
	EventResolutionFailed      AuditEvent = "resolution_failed"
	EventAmbiguousDirectoryKey AuditEvent = "ambiguous_directory_key"
	EventSubjectUnresolved     AuditEvent = "subject_unresolved"
	EventSubjectDropped        AuditEvent = "subject_dropped"
	EventRosterLoaded          AuditEvent = "roster_loaded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAmbiguousDirectoryKey: CategoryDataQuality,
	EventSubjectUnresolved:     CategoryDataQuality,
	EventSubjectDropped:        CategoryDataQuality,

	EventResolutionCompleted: CategoryOperations,
	EventResolutionFailed:    CategoryOperations,
	EventRosterLoaded:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can read events back.
type Lister interface {
	ListByRun(ctx context.Context, runID string) ([]Event, error)
}
