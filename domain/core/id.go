package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ArtifactID ID
	TrialID    ID

	// EventKey names the epoching event the analysis is locked to (e.g. "Stimulus").
	EventKey string
	// ConditionKey names a behavioral condition column (e.g. "State").
	ConditionKey string
	// ValueKey names one value of a condition (e.g. "wake", or "all" for a
	// shared baseline).
	ValueKey string
)

func (id ArtifactID) String() string { return ID(id).String() }
func (id TrialID) String() string    { return ID(id).String() }

// NewArtifactID mints the identifier stamped on every persisted artifact
func NewArtifactID() ArtifactID {
	return ArtifactID(NewID())
}

// AnalysisKey identifies one (event, condition, value) analysis cell. Every
// persisted artifact and stage record is scoped by one of these.
type AnalysisKey struct {
	Event     EventKey     `json:"event"`
	Condition ConditionKey `json:"condition"`
	Value     ValueKey     `json:"value"`
}

// NewAnalysisKey builds a validated analysis key
func NewAnalysisKey(event EventKey, condition ConditionKey, value ValueKey) (AnalysisKey, error) {
	k := AnalysisKey{Event: event, Condition: condition, Value: value}
	if err := k.Validate(); err != nil {
		return AnalysisKey{}, err
	}
	return k, nil
}

// Validate checks that all parts of the key are present
func (k AnalysisKey) Validate() error {
	if strings.TrimSpace(string(k.Event)) == "" {
		return NewValidationError("analysis_key", "event cannot be empty")
	}
	if strings.TrimSpace(string(k.Condition)) == "" {
		return NewValidationError("analysis_key", "condition cannot be empty")
	}
	if strings.TrimSpace(string(k.Value)) == "" {
		return NewValidationError("analysis_key", "value cannot be empty")
	}
	return nil
}

// String renders the key in storage order
func (k AnalysisKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Event, k.Condition, k.Value)
}

// WithValue returns a copy of the key pointing at a different condition value
func (k AnalysisKey) WithValue(value ValueKey) AnalysisKey {
	k.Value = value
	return k
}
