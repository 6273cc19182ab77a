package models

// NormalizedEntity is one recommendation result after parsing. Read-only once
// produced.
type NormalizedEntity struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Category    Category               `json:"category,omitempty"`
	Description string                 `json:"description,omitempty"`
	Score       float64                `json:"score,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	ImageURL    string                 `json:"imageUrl,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}

// ParseMetadata describes how a payload was reduced.
type ParseMetadata struct {
	DetailLevel   DetailLevel `json:"detailLevel"`
	OriginalCount int         `json:"originalCount"`
	ParsedCount   int         `json:"parsedCount"`
	PayloadBytes  int         `json:"payloadBytes"`
	Reason        string      `json:"reason,omitempty"`
}

// ParsedResponse is the terminal output of the pipeline, handed to the
// presentation layer.
type ParsedResponse struct {
	Entities []NormalizedEntity `json:"entities"`
	Metadata ParseMetadata      `json:"metadata"`
}
