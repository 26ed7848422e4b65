package envelope

import "time"

// Type identifies one of the eight event kinds the sync protocol carries.
type Type string

const (
	TypeWPStatusChanged    Type = "WPStatusChanged"
	TypeWPCreated          Type = "WPCreated"
	TypeWPAssigned         Type = "WPAssigned"
	TypeFeatureCreated     Type = "FeatureCreated"
	TypeFeatureCompleted   Type = "FeatureCompleted"
	TypeHistoryAdded       Type = "HistoryAdded"
	TypeErrorLogged        Type = "ErrorLogged"
	TypeDependencyResolved Type = "DependencyResolved"
)

// AggregateType identifies the domain entity an event mutates.
type AggregateType string

const (
	AggregateWorkPackage AggregateType = "WorkPackage"
	AggregateFeature     AggregateType = "Feature"
)

// aggregateTypes maps each event type to the entity it mutates.
// Doubles as the registry of known event types.
var aggregateTypes = map[Type]AggregateType{
	TypeWPStatusChanged:    AggregateWorkPackage,
	TypeWPCreated:          AggregateWorkPackage,
	TypeWPAssigned:         AggregateWorkPackage,
	TypeFeatureCreated:     AggregateFeature,
	TypeFeatureCompleted:   AggregateFeature,
	TypeHistoryAdded:       AggregateWorkPackage,
	TypeErrorLogged:        AggregateWorkPackage,
	TypeDependencyResolved: AggregateWorkPackage,
}

// KnownType reports whether t is one of the eight registered event types.
func KnownType(t Type) bool {
	_, ok := aggregateTypes[t]
	return ok
}

// AggregateTypeFor returns the aggregate type derived from the event type.
func AggregateTypeFor(t Type) (AggregateType, bool) {
	at, ok := aggregateTypes[t]
	return at, ok
}

// timestampLayout is RFC 3339 with fixed-width nanoseconds so that
// lexicographic order on the serialized form matches chronological
// order. The queue's FIFO drain sorts on this string.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders a wall-clock time in the envelope's fixed-width
// RFC 3339 layout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Event is the immutable envelope wrapping one state change. Once built
// by the factory it is never mutated; queue and sync bookkeeping live in
// QueueRecord, not here.
//
// Routing fields (team/project/git) are nullable on the wire; absence is
// encoded as the empty string and omitted from JSON. An event with no
// ProjectUUID is local-only: recorded to history, never transmitted.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     Type           `json:"event_type"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType AggregateType  `json:"aggregate_type"`
	Payload       map[string]any `json:"payload"`
	Timestamp     string         `json:"timestamp"`
	NodeID        string         `json:"node_id"`
	LamportClock  uint64         `json:"lamport_clock"`
	CausationID   string         `json:"causation_id,omitempty"`

	TeamSlug      string `json:"team_slug,omitempty"`
	ProjectUUID   string `json:"project_uuid,omitempty"`
	ProjectSlug   string `json:"project_slug,omitempty"`
	GitBranch     string `json:"git_branch,omitempty"`
	HeadCommitSHA string `json:"head_commit_sha,omitempty"`
	RepoSlug      string `json:"repo_slug,omitempty"`
}

// LocalOnly reports whether the event lacks the routing identity needed
// for transmission. Local-only events are durably recorded but never
// reach the offline queue.
func (e *Event) LocalOnly() bool {
	return e.ProjectUUID == ""
}

// Routing carries the project/git identity stamped onto every envelope.
// It is injected into the factory; the factory never computes it.
type Routing struct {
	TeamSlug      string
	ProjectUUID   string
	ProjectSlug   string
	GitBranch     string
	HeadCommitSHA string
	RepoSlug      string
}
