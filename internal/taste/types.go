package taste

import "tastemate/internal/models"

// Payload is a raw service response: the decoded envelope for shape probing
// plus the raw bytes, whose size drives the parser's detail overrides.
type Payload struct {
	Raw      []byte
	Envelope map[string]interface{}
}

// Size returns the serialized payload size in bytes.
func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Raw)
}

// RecommendQuery is one call against the recommendation (insights) endpoint.
type RecommendQuery struct {
	Category       models.Category
	EntitySignals  []string
	TagSignals     []string
	FilterTags     []string
	LocationQuery  string
	Take           int
	Reason         string
	Explainability bool
}

// SearchQuery is one call against the entity-search endpoint.
type SearchQuery struct {
	Query         string
	Category      models.Category
	LocationQuery string
	Take          int
}

// TagQuery is one call against the tag-search endpoint.
type TagQuery struct {
	Query         string
	ParentType    models.Category
	TypoTolerance bool
}

// Tag is one tag-search result.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EntityRef is the minimal identity of a looked-up entity, used by the
// persona resolver.
type EntityRef struct {
	ID       string
	Name     string
	Category models.Category
}
