// Package parse normalizes heterogeneous, size-variable service payloads into
// a bounded, intent-appropriate set of result entities.
package parse

import (
	"strings"
	"unicode/utf8"

	"tastemate/internal/common/logger"
	"tastemate/internal/models"
	"tastemate/internal/taste"
)

// Payload size thresholds. Past the first, the effective detail level drops
// to tiny at most; past the second, to minimal. The override is
// one-directional: size only ever downgrades detail, whatever the caller
// asked for.
const (
	tinyForceBytes    = 20_000
	minimalForceBytes = 200_000
)

// Entity count caps by payload size bucket, independent of detail level.
const (
	countCapBytes3 = 200_000
	countCapBytes5 = 100_000
	countCapBytes8 = 50_000
	defaultCap     = 10
)

// Per-level bounds.
var descriptionLimits = map[models.DetailLevel]int{
	models.DetailFull:    0, // unbounded
	models.DetailSummary: 200,
	models.DetailTiny:    100,
	models.DetailMinimal: 50,
}

var tagLimits = map[models.DetailLevel]int{
	models.DetailFull:    5,
	models.DetailSummary: 3,
	models.DetailTiny:    0,
	models.DetailMinimal: 0,
}

type Parser struct {
	logger logger.Logger
}

func NewParser(log logger.Logger) *Parser {
	return &Parser{
		logger: log.With(map[string]interface{}{"component": "response-parser"}),
	}
}

// Parse extracts normalized entities from a raw payload at the effective
// detail level. Malformed entities are skipped individually; an unrecognized
// payload yields an explicit empty result with metadata, never an error.
func (p *Parser) Parse(payload *taste.Payload, requested models.DetailLevel) *models.ParsedResponse {
	size := payload.Size()
	level := effectiveLevel(requested, size)

	raw, shape := RawEntities(payload.Envelope)
	if len(raw) == 0 {
		return &models.ParsedResponse{
			Entities: []models.NormalizedEntity{},
			Metadata: models.ParseMetadata{
				DetailLevel:  level,
				PayloadBytes: size,
				Reason:       "no entities recognized in payload",
			},
		}
	}

	max := countCap(size)
	entities := make([]models.NormalizedEntity, 0, max)
	for _, item := range raw {
		if len(entities) >= max {
			break
		}
		entity, ok := p.normalizeEntity(item, level)
		if !ok {
			continue
		}
		entities = append(entities, entity)
	}

	return &models.ParsedResponse{
		Entities: entities,
		Metadata: models.ParseMetadata{
			DetailLevel:   level,
			OriginalCount: len(raw),
			ParsedCount:   len(entities),
			PayloadBytes:  size,
			Reason:        "shape: " + shape,
		},
	}
}

// effectiveLevel applies the size override to the requested level.
func effectiveLevel(requested models.DetailLevel, size int) models.DetailLevel {
	switch {
	case size > minimalForceBytes:
		return requested.Downgrade(models.DetailMinimal)
	case size > tinyForceBytes:
		return requested.Downgrade(models.DetailTiny)
	default:
		return requested
	}
}

func countCap(size int) int {
	switch {
	case size >= countCapBytes3:
		return 3
	case size >= countCapBytes5:
		return 5
	case size >= countCapBytes8:
		return 8
	default:
		return defaultCap
	}
}

func (p *Parser) normalizeEntity(item interface{}, level models.DetailLevel) (models.NormalizedEntity, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return models.NormalizedEntity{}, false
	}

	id := firstString(m, "entity_id", "id", "tag_id")
	name := firstString(m, "name", "title")
	if id == "" && name == "" {
		return models.NormalizedEntity{}, false
	}

	props, _ := m["properties"].(map[string]interface{})

	entity := models.NormalizedEntity{
		ID:       id,
		Name:     name,
		ImageURL: resolveImageURL(m, props),
		Score:    firstFloat(m, "query.affinity", "affinity", "score", "popularity"),
	}

	category, inferred := resolveCategory(m, props, name)
	entity.Category = category
	if props != nil {
		entity.Properties = props
	}
	if inferred && category != "" {
		if entity.Properties == nil {
			entity.Properties = map[string]interface{}{}
		}
		entity.Properties["inferredCategory"] = true
	}

	desc := firstString(m, "description")
	if desc == "" && props != nil {
		desc = firstString(props, "description", "short_description", "summary")
	}
	entity.Description = truncate(desc, descriptionLimits[level])

	if limit := tagLimits[level]; limit > 0 {
		entity.Tags = extractTags(m, limit)
	}

	return entity, true
}

// Image URLs appear at several property paths; first non-empty wins.
func resolveImageURL(m, props map[string]interface{}) string {
	if props != nil {
		if image, ok := props["image"].(map[string]interface{}); ok {
			if u := firstString(image, "url"); u != "" {
				return u
			}
		}
		if u := firstString(props, "image_url"); u != "" {
			return u
		}
	}
	if image, ok := m["image"].(map[string]interface{}); ok {
		if u := firstString(image, "url"); u != "" {
			return u
		}
	}
	return firstString(m, "image_url", "imageUrl")
}

// categoryInferenceRules is scanned in order; a row matches when any of its
// marker properties is present on the entity or its property bag.
var categoryInferenceRules = []struct {
	markers  []string
	category models.Category
}{
	{[]string{"cuisine", "address", "neighborhood", "hours", "phone"}, models.CategoryPlace},
	{[]string{"genre", "director", "release_year", "runtime", "cast"}, models.CategoryMovie},
	{[]string{"artist", "album", "discography", "label"}, models.CategoryArtist},
	{[]string{"author", "isbn", "publisher", "page_count"}, models.CategoryBook},
	{[]string{"brand", "company", "industry", "parent_company"}, models.CategoryBrand},
}

// nameInferenceRules fall back to substring match on the entity name.
var nameInferenceRules = []struct {
	substrings []string
	category   models.Category
}{
	{[]string{"restaurant", "cafe", "bistro", "bar", "bakery"}, models.CategoryPlace},
	{[]string{"movie", "film"}, models.CategoryMovie},
	{[]string{"band", "orchestra"}, models.CategoryArtist},
	{[]string{"hotel", "resort"}, models.CategoryPlace},
}

// resolveCategory reads the category directly when present and well-formed,
// otherwise infers it; the bool reports inference.
func resolveCategory(m, props map[string]interface{}, name string) (models.Category, bool) {
	for _, key := range []string{"type", "subtype", "category"} {
		if v, ok := m[key].(string); ok {
			if c := models.Category(v); c.IsValid() {
				return c, false
			}
		}
	}

	for _, rule := range categoryInferenceRules {
		for _, marker := range rule.markers {
			if hasKey(m, marker) || hasKey(props, marker) {
				return rule.category, true
			}
		}
	}

	lowerName := strings.ToLower(name)
	for _, rule := range nameInferenceRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lowerName, sub) {
				return rule.category, true
			}
		}
	}

	return "", false
}

func extractTags(m map[string]interface{}, limit int) []string {
	raw, ok := m["tags"].([]interface{})
	if !ok {
		return nil
	}

	tags := make([]string, 0, limit)
	for _, item := range raw {
		if len(tags) >= limit {
			break
		}
		switch v := item.(type) {
		case string:
			tags = append(tags, v)
		case map[string]interface{}:
			if name := firstString(v, "name", "tag_id", "id"); name != "" {
				tags = append(tags, name)
			}
		}
	}
	return tags
}

// truncate cuts s to at most limit bytes without splitting a multi-byte rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func hasKey(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k].(float64); ok {
			return v
		}
	}
	return 0
}
