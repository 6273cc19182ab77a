// Package dispatch composes synthesized parameters and resolved signals into
// an outbound call plan: one primary call and, on emptiness or failure, one
// deterministic fallback.
package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"tastemate/internal/common/logger"
	"tastemate/internal/common/metrics"
	"tastemate/internal/models"
	"tastemate/internal/pipeline/parse"
	"tastemate/internal/taste"
)

// Recommender is the outbound surface of the taste client used here.
type Recommender interface {
	Recommend(ctx context.Context, q taste.RecommendQuery) (*taste.Payload, error)
	SearchEntities(ctx context.Context, q taste.SearchQuery) (*taste.Payload, error)
	SearchTags(ctx context.Context, q taste.TagQuery) (*taste.Payload, error)
}

// TagCache caches tag-search payloads; the tag vocabulary upstream changes
// rarely. Satisfied by the shared redis client. Optional.
type TagCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// sportMarkers identify the athletic brand cluster whose free-text queries
// perform poorly upstream.
var sportMarkers = []string{"sport", "athletic", "activewear", "fitness"}

// sportBrandNames is the enumerated substitute query for that cluster.
var sportBrandNames = "Nike Adidas Puma Under Armour New Balance Reebok Asics"

const tagCacheTTL = 15 * time.Minute

type Dispatcher struct {
	client   Recommender
	tagCache TagCache
	logger   logger.Logger
}

func NewDispatcher(client Recommender, tagCache TagCache, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		client:   client,
		tagCache: tagCache,
		logger:   log.With(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Dispatch executes the call plan for params and returns the raw payload.
// At most two outbound calls are made, always sequentially; a second failure
// propagates as a typed error rather than cascading further.
func (d *Dispatcher) Dispatch(ctx context.Context, params *models.RecommendationParameters) (*taste.Payload, error) {
	switch params.TargetAPI {
	case models.TargetTagSearch:
		return d.tagSearch(ctx, params)
	case models.TargetSearch:
		return d.entitySearch(ctx, params)
	default:
		return d.recommend(ctx, params)
	}
}

func (d *Dispatcher) recommend(ctx context.Context, params *models.RecommendationParameters) (*taste.Payload, error) {
	query := taste.RecommendQuery{
		Category:       params.Category,
		EntitySignals:  taste.FilterSignalIDs(params.Signals.EntityIDs),
		TagSignals:     taste.FilterSignalIDs(params.Signals.TagIDs),
		FilterTags:     params.FilterTags,
		LocationQuery:  locationQuery(params),
		Take:           params.Take,
		Reason:         params.QueryText,
		Explainability: params.Explainability,
	}

	// No signals at all: skip the primary and go straight to entity search.
	if len(query.EntitySignals) == 0 && len(query.TagSignals) == 0 {
		if len(params.FilterTags) == 0 {
			d.logger.Info("no signals or tags, skipping primary call", map[string]interface{}{
				"query": params.QueryText,
			})
			return d.entitySearch(ctx, params)
		}
		// Filter tags stand in as the tag-signal list.
		query.TagSignals = taste.FilterSignalIDs(params.FilterTags)
	}

	d.auditCall("recommend", params)
	payload, err := d.client.Recommend(ctx, query)
	if err == nil && countEntities(payload) > 0 {
		return payload, nil
	}

	if err != nil {
		d.logger.Warn("primary recommend call failed, falling back", map[string]interface{}{
			"query": params.QueryText,
			"error": err.Error(),
		})
	} else {
		d.logger.Info("primary recommend call empty, falling back", map[string]interface{}{
			"query": params.QueryText,
		})
	}

	metrics.FallbackCalls.Inc()
	return d.entitySearch(ctx, params)
}

// entitySearch is both the direct-search target and the single fallback. The
// query is rewritten for known problem domains; the location filter is
// preserved unchanged.
func (d *Dispatcher) entitySearch(ctx context.Context, params *models.RecommendationParameters) (*taste.Payload, error) {
	rewritten := rewriteForSearch(params)

	d.auditCall("entity-search", rewritten)
	return d.client.SearchEntities(ctx, taste.SearchQuery{
		Query:         rewritten.QueryText,
		Category:      rewritten.Category,
		LocationQuery: locationQuery(rewritten),
		Take:          rewritten.Take,
	})
}

func (d *Dispatcher) tagSearch(ctx context.Context, params *models.RecommendationParameters) (*taste.Payload, error) {
	cacheKey := "tags:" + string(params.Category) + ":" + strings.ToLower(params.QueryText)

	if d.tagCache != nil {
		if cached, err := d.tagCache.Get(ctx, cacheKey); err == nil && cached != "" {
			envelope := map[string]interface{}{}
			if err := json.Unmarshal([]byte(cached), &envelope); err == nil {
				return &taste.Payload{Raw: []byte(cached), Envelope: envelope}, nil
			}
		}
	}

	d.auditCall("tag-search", params)
	payload, err := d.client.SearchTags(ctx, taste.TagQuery{
		Query:         params.QueryText,
		ParentType:    params.Category,
		TypoTolerance: true,
	})
	if err != nil {
		return nil, err
	}

	if d.tagCache != nil && len(payload.Raw) > 0 {
		if cacheErr := d.tagCache.Set(ctx, cacheKey, string(payload.Raw), tagCacheTTL); cacheErr != nil {
			d.logger.Debug("tag cache write failed", map[string]interface{}{
				"key":   cacheKey,
				"error": cacheErr.Error(),
			})
		}
	}
	return payload, nil
}

// rewriteForSearch clones params and substitutes enumerated brand names for
// the athletic cluster, where free-text brand category queries perform
// poorly upstream.
func rewriteForSearch(params *models.RecommendationParameters) *models.RecommendationParameters {
	if params.Category != models.CategoryBrand || !hasSportTag(params.FilterTags) {
		return params
	}

	rewritten := params.Clone()
	rewritten.QueryText = sportBrandNames
	return rewritten
}

func hasSportTag(tags []string) bool {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, marker := range sportMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

func locationQuery(params *models.RecommendationParameters) string {
	if params.Location == nil {
		return ""
	}
	return params.Location.Query
}

func countEntities(payload *taste.Payload) int {
	if payload == nil {
		return 0
	}
	entities, _ := parse.RawEntities(payload.Envelope)
	return len(entities)
}

// auditCall records the original query parameters alongside every outbound
// call.
func (d *Dispatcher) auditCall(endpoint string, params *models.RecommendationParameters) {
	d.logger.Info("outbound call", map[string]interface{}{
		"endpoint":   endpoint,
		"query":      params.QueryText,
		"category":   string(params.Category),
		"filterTags": params.FilterTags,
		"location":   locationQuery(params),
		"take":       params.Take,
	})
}
