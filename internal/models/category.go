package models

// Category is a taste-graph entity category URN. The recommendation service
// only understands values from this fixed set; anything else is rejected at
// the parameter stage.
type Category string

const (
	CategoryPlace       Category = "urn:entity:place"
	CategoryMovie       Category = "urn:entity:movie"
	CategoryBrand       Category = "urn:entity:brand"
	CategoryArtist      Category = "urn:entity:artist"
	CategoryBook        Category = "urn:entity:book"
	CategoryDestination Category = "urn:entity:destination"
	CategoryPerson      Category = "urn:entity:person"
	CategoryPodcast     Category = "urn:entity:podcast"
	CategoryTVShow      Category = "urn:entity:tv_show"
	CategoryVideoGame   Category = "urn:entity:videogame"
)

var allCategories = map[Category]bool{
	CategoryPlace:       true,
	CategoryMovie:       true,
	CategoryBrand:       true,
	CategoryArtist:      true,
	CategoryBook:        true,
	CategoryDestination: true,
	CategoryPerson:      true,
	CategoryPodcast:     true,
	CategoryTVShow:      true,
	CategoryVideoGame:   true,
}

// IsValid reports whether c belongs to the enumerated category set.
func (c Category) IsValid() bool {
	return allCategories[c]
}

// Segment returns the last URN segment ("place", "movie", ...), or the raw
// value when c is not URN-formed.
func (c Category) Segment() string {
	s := string(c)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return s[i+1:]
		}
	}
	return s
}

// DetailLevel selects how much of each entity the parser keeps.
type DetailLevel string

const (
	DetailFull    DetailLevel = "full"
	DetailSummary DetailLevel = "summary"
	DetailTiny    DetailLevel = "tiny"
	DetailMinimal DetailLevel = "minimal"
)

// rank orders levels from most to least detailed.
func (d DetailLevel) rank() int {
	switch d {
	case DetailFull:
		return 0
	case DetailSummary:
		return 1
	case DetailTiny:
		return 2
	case DetailMinimal:
		return 3
	}
	return 1 // unknown levels behave like summary
}

// MoreDetailedThan reports whether d carries more detail than other.
func (d DetailLevel) MoreDetailedThan(other DetailLevel) bool {
	return d.rank() < other.rank()
}

// Downgrade returns the less detailed of d and floor. Detail is only ever
// reduced, never raised, so a caller request can never undo a size override.
func (d DetailLevel) Downgrade(floor DetailLevel) DetailLevel {
	if d.MoreDetailedThan(floor) {
		return floor
	}
	return d
}

// TargetAPI names the taste-graph sub-API a request is routed to.
type TargetAPI string

const (
	TargetRecommend TargetAPI = "recommend"
	TargetSearch    TargetAPI = "search"
	TargetTagSearch TargetAPI = "tag-search"
)
