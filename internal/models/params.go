package models

const (
	// MinTake is the minimum result count the recommendation service accepts.
	MinTake = 2
	// DefaultTake is used when the caller does not ask for a count.
	DefaultTake = 3
)

// LocationFilter is the location component of a recommendation request.
type LocationFilter struct {
	Query      string   `json:"query"`
	Localities []string `json:"localities,omitempty"`
	RadiusKm   int      `json:"radiusKm"`
}

// RecommendationParameters is the structured query derived from a user
// utterance. It is treated as a value object: stages that rewrite it (context
// injection, the fallback rewrite) work on a Clone so branches that still need
// the original see it unchanged.
type RecommendationParameters struct {
	QueryText      string          `json:"queryText"`
	Category       Category        `json:"category"`
	Location       *LocationFilter `json:"location,omitempty"`
	FilterTags     []string        `json:"filterTags,omitempty"`
	Signals        SignalSet       `json:"signals"`
	Take           int             `json:"take"`
	DetailLevel    DetailLevel     `json:"detailLevel"`
	Explainability bool            `json:"explainability"`
	TargetAPI      TargetAPI       `json:"targetApi"`
}

// ClampTake forces Take into [MinTake, cap], substituting DefaultTake for an
// unset value. cap <= 0 means no upper bound.
func (p *RecommendationParameters) ClampTake(cap int) {
	if p.Take == 0 {
		p.Take = DefaultTake
	}
	if p.Take < MinTake {
		p.Take = MinTake
	}
	if cap > 0 && p.Take > cap {
		p.Take = cap
	}
}

// Clone returns a deep copy safe to rewrite independently.
func (p *RecommendationParameters) Clone() *RecommendationParameters {
	cp := *p
	if p.Location != nil {
		loc := *p.Location
		loc.Localities = append([]string(nil), p.Location.Localities...)
		cp.Location = &loc
	}
	cp.FilterTags = append([]string(nil), p.FilterTags...)
	cp.Signals = SignalSet{
		EntityIDs:   append([]string(nil), p.Signals.EntityIDs...),
		TagIDs:      append([]string(nil), p.Signals.TagIDs...),
		AudienceIDs: append([]string(nil), p.Signals.AudienceIDs...),
	}
	return &cp
}
