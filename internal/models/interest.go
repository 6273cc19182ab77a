package models

import "time"

// InterestSource records how an interest entered the profile.
type InterestSource string

const (
	SourceExplicit    InterestSource = "explicit"
	SourceInferred    InterestSource = "inferred"
	SourceInteraction InterestSource = "interaction"
)

// Interest is one named interest on a user's profile. ResolvedSignalID is
// written once, the first time the resolver maps the name to a service
// identifier, and reused on every later request.
type Interest struct {
	ID               string         `json:"id"`
	ProfileID        string         `json:"profileId"`
	Name             string         `json:"name"`
	Category         Category       `json:"category,omitempty"`
	Confidence       float64        `json:"confidence"`
	ResolvedSignalID string         `json:"resolvedSignalId,omitempty"`
	Source           InterestSource `json:"source"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// SetConfidence clamps v into [0,1] before writing.
func (i *Interest) SetConfidence(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	i.Confidence = v
}

// SignalSet is the request-scoped bundle of service identifiers built from the
// current interests. It is rebuilt fresh on every recommendation request and
// never persisted.
type SignalSet struct {
	EntityIDs   []string `json:"entityIds"`
	TagIDs      []string `json:"tagIds"`
	AudienceIDs []string `json:"audienceIds"`
}

// IsEmpty reports whether the set carries no usable signal.
func (s SignalSet) IsEmpty() bool {
	return len(s.EntityIDs) == 0 && len(s.TagIDs) == 0 && len(s.AudienceIDs) == 0
}
