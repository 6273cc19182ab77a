// Package location pulls city/region mentions out of free text.
package location

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Config struct {
	DefaultRadiusKm int
	WideRadiusKm    int
}

// Result is the outcome of one extraction attempt. Extraction never fails: an
// empty Primary with a reasoning string is the "nothing found" case.
type Result struct {
	Primary    string   `json:"primary,omitempty"`
	Localities []string `json:"localities,omitempty"`
	RadiusKm   int      `json:"radiusKm"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Found reports whether any location was detected.
func (r Result) Found() bool {
	return r.Primary != ""
}

// Query returns the location filter string sent upstream.
func (r Result) Query() string {
	if len(r.Localities) > 1 {
		return strings.Join(r.Localities, ", ")
	}
	return r.Primary
}

type aliasRow struct {
	alias     string
	canonical string
}

// aliases maps colloquial city names and abbreviations to canonical names.
// Exact word-bounded match, highest confidence; first row wins, so longer
// aliases come first.
var aliases = []aliasRow{
	{"new york", "New York"},
	{"chi-town", "Chicago"},
	{"saigon", "Ho Chi Minh City"},
	{"bombay", "Mumbai"},
	{"frisco", "San Francisco"},
	{"philly", "Philadelphia"},
	{"vegas", "Las Vegas"},
	{"l.a.", "Los Angeles"},
	{"nola", "New Orleans"},
	{"cdmx", "Mexico City"},
	{"nyc", "New York"},
	{"atl", "Atlanta"},
	{"bcn", "Barcelona"},
	{"sf", "San Francisco"},
	{"la", "Los Angeles"},
	{"dc", "Washington DC"},
}

// stoplist filters generic capitalized nouns out of the low-confidence
// fallback path.
var stoplist = map[string]bool{
	"restaurants": true,
	"restaurant":  true,
	"food":        true,
	"places":      true,
	"place":       true,
	"movies":      true,
	"movie":       true,
	"books":       true,
	"book":        true,
	"music":       true,
	"artists":     true,
	"brands":      true,
	"bars":        true,
	"cafes":       true,
	"hotels":      true,
	"recommend":   true,
	"italian":     true,
	"chinese":     true,
	"mexican":     true,
	"japanese":    true,
	"french":      true,
	"indian":      true,
	"thai":        true,
	"what":        true,
	"where":       true,
	"show":        true,
	"find":        true,
	"good":        true,
	"best":        true,
	"some":        true,
	"please":      true,
	"i":           true,
}

var (
	prepositionRe = regexp.MustCompile(`(?:\b(?:in|at|near|around)\s+)((?:[A-Z][\w'.-]*)(?:\s+[A-Z][\w'.-]*)*(?:\s*(?:,|\band\b)\s*(?:[A-Z][\w'.-]*)(?:\s+[A-Z][\w'.-]*)*)*)`)
	capitalRunRe  = regexp.MustCompile(`\b[A-Z][\w'.-]*(?:\s+[A-Z][\w'.-]*)*`)
	strictRe      = regexp.MustCompile(`\b(?:strict(?:ly)?|exact(?:ly)?|only)\b`)
	nearbyRe      = regexp.MustCompile(`\b(?:nearby|around|surrounding|close by)\b`)
	listSplitRe   = regexp.MustCompile(`\s*(?:,|\band\b)\s*`)
)

type Extractor struct {
	config *Config
}

func NewExtractor(config *Config) *Extractor {
	return &Extractor{config: config}
}

// Extract tries, in order: alias lookup, preposition patterns, and a
// low-confidence capitalized-run fallback.
func (e *Extractor) Extract(text string) Result {
	radius := e.radiusFor(text)

	if result, ok := e.fromAlias(text, radius); ok {
		return result
	}
	if result, ok := e.fromPreposition(text, radius); ok {
		return result
	}
	if result, ok := e.fromCapitalizedRun(text, radius); ok {
		return result
	}

	return Result{
		RadiusKm:  radius,
		Reasoning: "no location detected",
	}
}

func (e *Extractor) radiusFor(text string) int {
	lower := strings.ToLower(text)
	if strictRe.MatchString(lower) {
		return 0
	}
	if nearbyRe.MatchString(lower) {
		return e.config.WideRadiusKm
	}
	return e.config.DefaultRadiusKm
}

func (e *Extractor) fromAlias(text string, radius int) (Result, bool) {
	lower := strings.ToLower(text)
	for _, row := range aliases {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(row.alias) + `\b`)
		for _, loc := range re.FindAllStringIndex(lower, -1) {
			// "La" in "La Paz" is the first word of a longer proper name,
			// not the alias. Leave those runs to the preposition pass.
			if continuesProperName(text, loc[1]) {
				continue
			}
			return Result{
				Primary:    row.canonical,
				Localities: []string{row.canonical},
				RadiusKm:   radius,
				Confidence: 0.95,
				Reasoning:  "matched known city alias \"" + row.alias + "\"",
			}, true
		}
	}
	return Result{}, false
}

// continuesProperName reports whether the text directly after an alias match
// carries on with another capitalized word.
func continuesProperName(text string, end int) bool {
	rest := strings.TrimLeft(text[end:], " \t")
	if rest == text[end:] || rest == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsUpper(r)
}

func (e *Extractor) fromPreposition(text string, radius int) (Result, bool) {
	match := prepositionRe.FindStringSubmatch(text)
	if match == nil {
		return Result{}, false
	}

	localities := splitLocalities(match[1])
	if len(localities) == 0 {
		return Result{}, false
	}

	return Result{
		Primary:    localities[0],
		Localities: localities,
		RadiusKm:   radius,
		Confidence: 0.8,
		Reasoning:  "location preposition pattern",
	}, true
}

func (e *Extractor) fromCapitalizedRun(text string, radius int) (Result, bool) {
	for _, run := range capitalRunRe.FindAllString(text, -1) {
		candidate := strings.TrimSpace(run)
		if candidate == "" || stoplist[strings.ToLower(candidate)] {
			continue
		}
		// Skip runs whose every word is a generic noun.
		words := strings.Fields(candidate)
		generic := true
		for _, w := range words {
			if !stoplist[strings.ToLower(w)] {
				generic = false
				break
			}
		}
		if generic {
			continue
		}

		return Result{
			Primary:    candidate,
			Localities: []string{candidate},
			RadiusKm:   radius,
			Confidence: 0.4,
			Reasoning:  "capitalized word fallback",
		}, true
	}
	return Result{}, false
}

func splitLocalities(phrase string) []string {
	parts := listSplitRe.Split(phrase, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || stoplist[strings.ToLower(p)] {
			continue
		}
		out = append(out, p)
	}
	return out
}
