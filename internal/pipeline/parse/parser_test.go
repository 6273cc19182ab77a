package parse

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tastemate/internal/common/logger"
	"tastemate/internal/models"
	"tastemate/internal/taste"
)

func newTestParser(t *testing.T) *Parser {
	return NewParser(logger.NewTestLogger(t))
}

func entityList(n int) []interface{} {
	out := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]interface{}{
			"entity_id":   fmt.Sprintf("urn:entity:place:e%d", i),
			"name":        fmt.Sprintf("Place %d", i),
			"type":        "urn:entity:place",
			"description": strings.Repeat("x", 300),
			"tags": []interface{}{
				map[string]interface{}{"name": "italian"},
				map[string]interface{}{"name": "cozy"},
				map[string]interface{}{"name": "romantic"},
				map[string]interface{}{"name": "wine"},
				map[string]interface{}{"name": "pasta"},
				map[string]interface{}{"name": "terrace"},
			},
		})
	}
	return out
}

func payloadOfSize(bytes int, entities []interface{}) *taste.Payload {
	return &taste.Payload{
		Raw:      make([]byte, bytes),
		Envelope: map[string]interface{}{"results": map[string]interface{}{"entities": entities}},
	}
}

func TestParse_BasicNormalization(t *testing.T) {
	p := newTestParser(t)

	payload := payloadOfSize(2_000, []interface{}{
		map[string]interface{}{
			"entity_id": "urn:entity:place:louvre-cafe",
			"name":      "Louvre Cafe",
			"type":      "urn:entity:place",
			"properties": map[string]interface{}{
				"description": "A cafe near the museum.",
				"image":       map[string]interface{}{"url": "https://img.example/louvre.jpg"},
			},
			"query.affinity": 0.92,
		},
	})

	out := p.Parse(payload, models.DetailFull)

	require.Len(t, out.Entities, 1)
	e := out.Entities[0]
	assert.Equal(t, "urn:entity:place:louvre-cafe", e.ID)
	assert.Equal(t, "Louvre Cafe", e.Name)
	assert.Equal(t, models.CategoryPlace, e.Category)
	assert.Equal(t, "A cafe near the museum.", e.Description)
	assert.Equal(t, "https://img.example/louvre.jpg", e.ImageURL)
	assert.Equal(t, 0.92, e.Score)
	assert.Equal(t, models.DetailFull, out.Metadata.DetailLevel)
	assert.Equal(t, 1, out.Metadata.ParsedCount)
}

func TestParse_SizeForcesDetailDown(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name      string
		bytes     int
		requested models.DetailLevel
		wantLevel models.DetailLevel
		wantCap   int
	}{
		{"small payload honors request", 5_000, models.DetailFull, models.DetailFull, 10},
		{"midsize forces tiny", 120_000, models.DetailFull, models.DetailTiny, 5},
		{"large forces minimal", 250_000, models.DetailFull, models.DetailMinimal, 3},
		{"override never upgrades", 120_000, models.DetailMinimal, models.DetailMinimal, 5},
		{"60KB keeps level but caps count", 60_000, models.DetailSummary, models.DetailSummary, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := payloadOfSize(tt.bytes, entityList(12))
			out := p.Parse(payload, tt.requested)

			assert.Equal(t, tt.wantLevel, out.Metadata.DetailLevel)
			assert.Len(t, out.Entities, tt.wantCap)
			assert.Equal(t, 12, out.Metadata.OriginalCount)
			assert.Equal(t, tt.bytes, out.Metadata.PayloadBytes)
		})
	}
}

func TestParse_PerLevelCaps(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		level    models.DetailLevel
		descLen  int
		tagCount int
	}{
		{models.DetailFull, 300, 5},
		{models.DetailSummary, 200, 3},
		{models.DetailTiny, 100, 0},
		{models.DetailMinimal, 50, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			out := p.Parse(payloadOfSize(1_000, entityList(1)), tt.level)

			require.Len(t, out.Entities, 1)
			assert.Len(t, out.Entities[0].Description, tt.descLen)
			assert.Len(t, out.Entities[0].Tags, tt.tagCount)
		})
	}
}

func TestTruncate_KeepsRuneBoundaries(t *testing.T) {
	// 50 three-byte runes: 150 bytes, and byte 100 falls mid-rune.
	multibyte := strings.Repeat("日", 50)

	tests := []struct {
		name  string
		in    string
		limit int
	}{
		{"ascii at limit", strings.Repeat("a", 120), 100},
		{"multibyte mid-rune cut", multibyte, 100},
		{"multibyte under limit", multibyte, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := truncate(tt.in, tt.limit)
			assert.True(t, utf8.ValidString(out))
			assert.LessOrEqual(t, len(out), tt.limit)
		})
	}
}

func TestParse_SkipsMalformedEntities(t *testing.T) {
	p := newTestParser(t)

	payload := payloadOfSize(1_000, []interface{}{
		"not an object",
		map[string]interface{}{"irrelevant": true},
		map[string]interface{}{"entity_id": "urn:entity:place:ok", "name": "Ok Place"},
		nil,
	})

	out := p.Parse(payload, models.DetailSummary)

	require.Len(t, out.Entities, 1)
	assert.Equal(t, "Ok Place", out.Entities[0].Name)
	assert.Equal(t, 4, out.Metadata.OriginalCount)
	assert.Equal(t, 1, out.Metadata.ParsedCount)
}

func TestParse_EmptyPayload(t *testing.T) {
	p := newTestParser(t)

	out := p.Parse(&taste.Payload{Raw: []byte("{}"), Envelope: map[string]interface{}{}}, models.DetailSummary)

	assert.Empty(t, out.Entities)
	assert.Equal(t, "no entities recognized in payload", out.Metadata.Reason)
	assert.Equal(t, models.DetailSummary, out.Metadata.DetailLevel)
}

func TestParse_CategoryInference(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name         string
		entity       map[string]interface{}
		wantCategory models.Category
		wantInferred bool
	}{
		{
			name: "explicit urn category wins",
			entity: map[string]interface{}{
				"entity_id": "e1", "name": "X", "type": "urn:entity:movie",
				"properties": map[string]interface{}{"cuisine": "italian"},
			},
			wantCategory: models.CategoryMovie,
			wantInferred: false,
		},
		{
			name: "cuisine property implies place",
			entity: map[string]interface{}{
				"entity_id": "e2", "name": "Trattoria",
				"properties": map[string]interface{}{"cuisine": "italian"},
			},
			wantCategory: models.CategoryPlace,
			wantInferred: true,
		},
		{
			name: "director property implies movie",
			entity: map[string]interface{}{
				"entity_id": "e3", "name": "Heat",
				"properties": map[string]interface{}{"director": "Michael Mann"},
			},
			wantCategory: models.CategoryMovie,
			wantInferred: true,
		},
		{
			name: "author property implies book",
			entity: map[string]interface{}{
				"entity_id": "e4", "name": "Dune",
				"properties": map[string]interface{}{"author": "Frank Herbert"},
			},
			wantCategory: models.CategoryBook,
			wantInferred: true,
		},
		{
			name: "name substring fallback",
			entity: map[string]interface{}{
				"entity_id": "e5", "name": "Blue Door Restaurant",
			},
			wantCategory: models.CategoryPlace,
			wantInferred: true,
		},
		{
			name: "nothing to infer",
			entity: map[string]interface{}{
				"entity_id": "e6", "name": "Mystery Thing",
			},
			wantCategory: "",
			wantInferred: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := payloadOfSize(500, []interface{}{tt.entity})
			out := p.Parse(payload, models.DetailFull)

			require.Len(t, out.Entities, 1)
			e := out.Entities[0]
			assert.Equal(t, tt.wantCategory, e.Category)
			if tt.wantInferred {
				assert.Equal(t, true, e.Properties["inferredCategory"])
			} else if e.Properties != nil {
				assert.NotContains(t, e.Properties, "inferredCategory")
			}
		})
	}
}

func TestRawEntities_ShapePriority(t *testing.T) {
	entity := map[string]interface{}{"entity_id": "x", "name": "X"}

	tests := []struct {
		name      string
		envelope  map[string]interface{}
		wantShape string
	}{
		{
			name: "nested results.entities",
			envelope: map[string]interface{}{
				"results": map[string]interface{}{"entities": []interface{}{entity}},
			},
			wantShape: "results.entities",
		},
		{
			name:      "top-level entities",
			envelope:  map[string]interface{}{"entities": []interface{}{entity}},
			wantShape: "entities",
		},
		{
			name:      "bare results array",
			envelope:  map[string]interface{}{"results": []interface{}{entity}},
			wantShape: "results array",
		},
		{
			name:      "tags list",
			envelope:  map[string]interface{}{"tags": []interface{}{entity}},
			wantShape: "bare tags",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, shape := RawEntities(tt.envelope)
			assert.Len(t, entities, 1)
			assert.Equal(t, tt.wantShape, shape)
		})
	}

	entities, shape := RawEntities(nil)
	assert.Nil(t, entities)
	assert.Equal(t, "", shape)
}
