// Package params turns a recommendation utterance into structured query
// parameters: entity category, filter tags, target sub-API and query term.
package params

import (
	"context"
	"regexp"
	"strings"
	"time"

	"tastemate/internal/common/logger"
	"tastemate/internal/models"
	"tastemate/internal/pipeline/location"
)

type Config struct {
	DefaultCategory models.Category
	TakeCap         int
	DetailLevel     models.DetailLevel
}

// LocationSaver persists a freshly detected location onto the persona. Called
// fire-and-forget; errors are logged, never propagated.
type LocationSaver interface {
	UpdateLocation(ctx context.Context, profileID, city string) error
}

type categoryRow struct {
	keywords []string
	category models.Category
}

// categoryTable is scanned in order; the first matching row wins.
var categoryTable = []categoryRow{
	{[]string{"movie", "film", "cinema", "something to watch"}, models.CategoryMovie},
	{[]string{"brand", "sneaker", "shoes", "clothing", "apparel", "wear"}, models.CategoryBrand},
	{[]string{"artist", "band", "music", "singer", "album", "song"}, models.CategoryArtist},
	{[]string{"book", "novel", "author", "something to read"}, models.CategoryBook},
	{[]string{"restaurant", "food", "eat", "bar", "cafe", "coffee", "dinner", "lunch", "brunch", "place"}, models.CategoryPlace},
	{[]string{"travel", "destination", "trip", "vacation", "visit"}, models.CategoryDestination},
	{[]string{"celebrity", "actor", "person", "people like"}, models.CategoryPerson},
	{[]string{"podcast"}, models.CategoryPodcast},
	{[]string{"tv show", "tv series", "series", "show to watch"}, models.CategoryTVShow},
	{[]string{"video game", "videogame", "game", "gaming"}, models.CategoryVideoGame},
}

// Category-specific sub-vocabularies used to populate filter tags.
var cuisineTags = []string{
	"italian", "chinese", "mexican", "japanese", "french", "indian", "thai",
	"korean", "vietnamese", "greek", "spanish", "mediterranean", "vegan",
	"vegetarian", "sushi", "pizza", "bbq", "seafood", "steakhouse", "ramen",
}

var genreTags = []string{
	"horror", "comedy", "drama", "thriller", "action", "romance", "sci-fi",
	"science fiction", "fantasy", "documentary", "mystery", "crime", "western",
	"animation",
}

var musicTags = []string{
	"rock", "pop", "jazz", "hip hop", "rap", "classical", "electronic",
	"indie", "metal", "country", "r&b", "folk", "blues",
}

var brandTags = []string{
	"luxury", "fashion", "streetwear", "tech", "beauty", "outdoor", "minimalist",
}

// sportBrandMarkers trigger the special-cased athletic cluster.
var sportBrandMarkers = []string{
	"sport", "athletic", "fitness", "workout", "gym", "running",
}

// sportBrandCanonicalTags is the narrower tag set the upstream service
// responds better to for athletic brand queries.
var sportBrandCanonicalTags = []string{"sport", "athletic", "activewear"}

type targetRow struct {
	keywords []string
	target   models.TargetAPI
}

// targetTable is scanned in order; the first matching row wins.
var targetTable = []targetRow{
	{[]string{"tag", "tags", "category", "categories", "genre", "genres", "what kind", "what type"}, models.TargetTagSearch},
	{[]string{"like", "similar", "recommend", "suggest", "prefer", "i'm into", "im into"}, models.TargetRecommend},
	{[]string{"find", "search", "look for", "looking for", "show me"}, models.TargetSearch},
}

var likePatternRe = regexp.MustCompile(`(?i)\b(?:like|similar to)\s+(.+?)(?:\s+in\s+[A-Z]|\s*[.?!]|$)`)

type Synthesizer struct {
	config *Config
	saver  LocationSaver
	logger logger.Logger
}

func NewSynthesizer(config *Config, saver LocationSaver, log logger.Logger) *Synthesizer {
	return &Synthesizer{
		config: config,
		saver:  saver,
		logger: log.With(map[string]interface{}{"component": "param-synthesizer"}),
	}
}

// TakeCap exposes the configured result-count ceiling so callers re-clamping
// an overridden take keep the same bound Synthesize applied.
func (s *Synthesizer) TakeCap() int {
	return s.config.TakeCap
}

// Synthesize derives a parameter draft from text and an already-run location
// extraction. Pure with respect to its inputs, except that a freshly detected
// location is written to the persona asynchronously as a convenience.
func (s *Synthesizer) Synthesize(ctx context.Context, profileID, text string, loc location.Result) *models.RecommendationParameters {
	lower := strings.ToLower(text)

	category := s.matchCategory(lower)
	filterTags := matchFilterTags(lower, category)

	p := &models.RecommendationParameters{
		QueryText:      extractQueryTerm(text),
		Category:       category,
		FilterTags:     filterTags,
		Take:           models.DefaultTake,
		DetailLevel:    s.config.DetailLevel,
		Explainability: true,
		TargetAPI:      matchTarget(lower),
	}
	p.ClampTake(s.config.TakeCap)

	if loc.Found() {
		p.Location = &models.LocationFilter{
			Query:      loc.Query(),
			Localities: loc.Localities,
			RadiusKm:   loc.RadiusKm,
		}
		s.saveLocationAsync(profileID, loc.Primary)
	}

	return p
}

func (s *Synthesizer) matchCategory(lower string) models.Category {
	for _, row := range categoryTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.category
			}
		}
	}
	return s.config.DefaultCategory
}

func matchFilterTags(lower string, category models.Category) []string {
	var vocabulary []string
	switch category {
	case models.CategoryPlace, models.CategoryDestination:
		vocabulary = cuisineTags
	case models.CategoryMovie, models.CategoryBook, models.CategoryTVShow:
		vocabulary = genreTags
	case models.CategoryArtist, models.CategoryPodcast:
		vocabulary = musicTags
	case models.CategoryBrand:
		// The athletic cluster maps to a narrower canonical tag set.
		for _, marker := range sportBrandMarkers {
			if strings.Contains(lower, marker) {
				return append([]string(nil), sportBrandCanonicalTags...)
			}
		}
		vocabulary = brandTags
	default:
		return nil
	}

	var tags []string
	for _, tag := range vocabulary {
		if strings.Contains(lower, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

func matchTarget(lower string) models.TargetAPI {
	for _, row := range targetTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.target
			}
		}
	}
	return models.TargetRecommend
}

// extractQueryTerm returns the text verbatim unless an "X like Y" pattern is
// present, in which case Y becomes the query term.
func extractQueryTerm(text string) string {
	if match := likePatternRe.FindStringSubmatch(text); match != nil {
		if term := strings.TrimSpace(match[1]); term != "" {
			return term
		}
	}
	return strings.TrimSpace(text)
}

// saveLocationAsync is the one documented side effect of this stage.
func (s *Synthesizer) saveLocationAsync(profileID, city string) {
	if s.saver == nil || profileID == "" || city == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.saver.UpdateLocation(ctx, profileID, city); err != nil {
			s.logger.Warn("persona location update failed", map[string]interface{}{
				"profileId": profileID,
				"city":      city,
				"error":     err.Error(),
			})
		}
	}()
}
