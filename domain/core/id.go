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
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
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
	InvestigationID ID
	HypothesisID    ID
	StepID          ID
	FindingID       ID
	EvidenceID      ID
	ServiceID       ID
)

// String conversions for domain IDs
func (id InvestigationID) String() string { return ID(id).String() }
func (id HypothesisID) String() string    { return ID(id).String() }
func (id StepID) String() string          { return ID(id).String() }
func (id FindingID) String() string       { return ID(id).String() }
func (id EvidenceID) String() string      { return ID(id).String() }
func (id ServiceID) String() string       { return ID(id).String() }

// ParseInvestigationID parses a string into InvestigationID
func ParseInvestigationID(s string) (InvestigationID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("investigation ID cannot be empty")
	}
	return InvestigationID(s), nil
}

// ParseHypothesisID parses a string into HypothesisID
func ParseHypothesisID(s string) (HypothesisID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("hypothesis ID cannot be empty")
	}
	return HypothesisID(s), nil
}

// ParseServiceID parses a string into ServiceID
func ParseServiceID(s string) (ServiceID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("service ID cannot be empty")
	}
	return ServiceID(s), nil
}
