package persona

import (
	"context"
	"strings"
	"time"

	stderrors "tastemate/internal/common/errors"
	"tastemate/internal/common/logger"
	"tastemate/internal/common/metrics"
	"tastemate/internal/models"
	"tastemate/internal/taste"
)

type ResolverConfig struct {
	// LookupTimeout bounds each individual entity lookup. A slow interest
	// costs only its own slot.
	LookupTimeout time.Duration
}

// EntityLookup is the lookup collaborator, satisfied by the taste client.
type EntityLookup interface {
	LookupEntity(ctx context.Context, name string, category models.Category) (*taste.EntityRef, error)
}

// SignalWriter persists resolved identifiers back onto interests.
type SignalWriter interface {
	SaveResolvedSignal(ctx context.Context, interestID, signalID string) error
}

type nameCategoryRow struct {
	keywords []string
	category models.Category
}

// nameCategoryTable maps interest names to a probable lookup category.
var nameCategoryTable = []nameCategoryRow{
	{[]string{"movie", "film"}, models.CategoryMovie},
	{[]string{"restaurant", "food", "cuisine", "cafe", "bar"}, models.CategoryPlace},
	{[]string{"artist", "band", "music", "singer"}, models.CategoryArtist},
	{[]string{"book", "novel", "author"}, models.CategoryBook},
	{[]string{"brand", "sneaker", "apparel"}, models.CategoryBrand},
	{[]string{"game", "gaming"}, models.CategoryVideoGame},
	{[]string{"podcast"}, models.CategoryPodcast},
	{[]string{"travel", "destination"}, models.CategoryDestination},
	{[]string{"show", "series"}, models.CategoryTVShow},
}

type Resolver struct {
	config *ResolverConfig
	lookup EntityLookup
	writer SignalWriter
	logger logger.Logger
}

func NewResolver(config *ResolverConfig, lookup EntityLookup, writer SignalWriter, log logger.Logger) *Resolver {
	return &Resolver{
		config: config,
		lookup: lookup,
		writer: writer,
		logger: log.With(map[string]interface{}{"component": "signal-resolver"}),
	}
}

// Resolve converts stored interests into the request-scoped signal set.
// Interests are processed strictly sequentially; a failed or slow resolution
// is logged and skipped, never aborting the batch. The result is the
// deduplicated union of accepted identifiers.
func (r *Resolver) Resolve(ctx context.Context, interests []models.Interest, target models.Category) models.SignalSet {
	set := models.SignalSet{}
	seen := make(map[string]bool)

	for _, interest := range interests {
		id, fromCache := r.resolveOne(ctx, interest, target)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if strings.HasPrefix(id, "urn:tag") {
			set.TagIDs = append(set.TagIDs, id)
		} else {
			set.EntityIDs = append(set.EntityIDs, id)
		}

		source := "lookup"
		if fromCache {
			source = "cache"
		}
		metrics.SignalsResolved.WithLabelValues(source).Inc()
	}

	return set
}

// resolveOne returns the accepted identifier for one interest, and whether it
// came from the write-through cache.
func (r *Resolver) resolveOne(ctx context.Context, interest models.Interest, target models.Category) (string, bool) {
	// Already resolved and compatible: reuse, no network. This is the
	// idempotence guarantee.
	if interest.ResolvedSignalID != "" && identifierCompatible(interest.ResolvedSignalID, target) {
		return interest.ResolvedSignalID, true
	}

	probable := probableCategory(interest, target)

	ref, err := r.lookupWithTimeout(ctx, interest.Name, probable)
	if err == nil && ref == nil && target != "" {
		// One retry with no category constraint.
		ref, err = r.lookupWithTimeout(ctx, interest.Name, "")
	}
	if err != nil {
		resErr := stderrors.NewResolutionFailedError(interest.Name, err.Error())
		r.logger.Warn("interest resolution failed", map[string]interface{}{
			"interest": interest.Name,
			"error":    resErr.Details,
		})
		return "", false
	}
	if ref == nil || ref.ID == "" {
		r.logger.Debug("interest resolved to nothing", map[string]interface{}{
			"interest": interest.Name,
		})
		return "", false
	}

	if !refCompatible(ref, target) {
		r.logger.Debug("resolved entity rejected for category mismatch", map[string]interface{}{
			"interest": interest.Name,
			"resolved": string(ref.Category),
			"target":   string(target),
		})
		return "", false
	}

	if !taste.IsAcceptedSignalID(ref.ID) {
		return "", false
	}

	// Write-through: the interest is never re-resolved after this.
	if r.writer != nil {
		if err := r.writer.SaveResolvedSignal(ctx, interest.ID, ref.ID); err != nil {
			r.logger.Warn("failed to persist resolved signal", map[string]interface{}{
				"interest": interest.Name,
				"error":    err.Error(),
			})
		}
	}

	return ref.ID, false
}

func (r *Resolver) lookupWithTimeout(ctx context.Context, name string, category models.Category) (*taste.EntityRef, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()
	return r.lookup.LookupEntity(lookupCtx, name, category)
}

// probableCategory maps an interest to the category its lookup is constrained
// by, defaulting to the request target.
func probableCategory(interest models.Interest, target models.Category) models.Category {
	if interest.Category.IsValid() {
		return interest.Category
	}

	lower := strings.ToLower(interest.Name)
	for _, row := range nameCategoryTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.category
			}
		}
	}
	return target
}

// identifierCompatible checks a stored identifier against the target
// category: same URN segment, or an opaque/UUID form, which is treated as
// compatible by policy.
func identifierCompatible(id string, target models.Category) bool {
	if target == "" {
		return true
	}
	if taste.IsUUIDID(id) {
		return true
	}
	if strings.HasPrefix(id, "urn:entity:") {
		parts := strings.Split(id, ":")
		if len(parts) >= 3 {
			return parts[2] == target.Segment()
		}
	}
	// Tag identifiers and short codes carry no entity category to conflict
	// with.
	return true
}

// refCompatible applies the same policy to a fresh lookup result, preferring
// the category the service reported.
func refCompatible(ref *taste.EntityRef, target models.Category) bool {
	if target == "" {
		return true
	}
	if ref.Category != "" {
		return ref.Category.Segment() == target.Segment() || taste.IsUUIDID(ref.ID)
	}
	return identifierCompatible(ref.ID, target)
}
