// Package taste is the client for the external taste-graph recommendation
// service: the insights (recommend) endpoint, entity search, and tag search.
package taste

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stderrors "tastemate/internal/common/errors"
	"tastemate/internal/common/logger"
	"tastemate/internal/common/metrics"
	"tastemate/internal/models"
)

const (
	endpointInsights = "/v2/insights"
	endpointSearch   = "/search"
	endpointTags     = "/v2/tags"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.With(map[string]interface{}{
			"component": "taste-client",
		}),
	}
}

// Recommend calls the insights endpoint with the given signals and filters.
func (c *Client) Recommend(ctx context.Context, q RecommendQuery) (*Payload, error) {
	params := url.Values{}
	params.Set("filter.type", string(q.Category))
	if len(q.EntitySignals) > 0 {
		params.Set("signal.interests.entities", strings.Join(q.EntitySignals, ","))
	}
	if len(q.TagSignals) > 0 {
		params.Set("signal.interests.tags", strings.Join(q.TagSignals, ","))
	}
	if len(q.FilterTags) > 0 {
		params.Set("filter.tags", strings.Join(q.FilterTags, ","))
	}
	if q.LocationQuery != "" {
		params.Set("filter.location.query", q.LocationQuery)
	}
	params.Set("take", strconv.Itoa(clampTake(q.Take)))
	if q.Reason != "" {
		params.Set("reason", q.Reason)
	}
	if q.Explainability {
		params.Set("feature.explainability", "true")
	}

	return c.doRequest(ctx, endpointInsights, params)
}

// SearchEntities calls the free-text entity search endpoint.
func (c *Client) SearchEntities(ctx context.Context, q SearchQuery) (*Payload, error) {
	params := url.Values{}
	params.Set("query", q.Query)
	params.Set("take", strconv.Itoa(clampTake(q.Take)))
	if q.Category != "" {
		params.Set("types", string(q.Category))
	}
	if q.LocationQuery != "" {
		params.Set("filter.location.query", q.LocationQuery)
	}

	return c.doRequest(ctx, endpointSearch, params)
}

// SearchTags calls the tag search endpoint.
func (c *Client) SearchTags(ctx context.Context, q TagQuery) (*Payload, error) {
	params := url.Values{}
	params.Set("filter.query", q.Query)
	if q.ParentType != "" {
		params.Set("filter.parents.types", string(q.ParentType))
	}
	if q.TypoTolerance {
		params.Set("feature.typo_tolerance", "true")
	}

	return c.doRequest(ctx, endpointTags, params)
}

// LookupEntity resolves a free-text name to an entity reference, used by the
// persona resolver. category may be empty for an unconstrained lookup.
func (c *Client) LookupEntity(ctx context.Context, name string, category models.Category) (*EntityRef, error) {
	payload, err := c.SearchEntities(ctx, SearchQuery{
		Query:    name,
		Category: category,
		Take:     models.MinTake,
	})
	if err != nil {
		return nil, err
	}

	entity := firstEntity(payload.Envelope)
	if entity == nil {
		return nil, nil
	}

	ref := &EntityRef{
		ID:   stringField(entity, "entity_id", "id"),
		Name: stringField(entity, "name", "title"),
	}
	if t := stringField(entity, "type", "subtype"); t != "" {
		ref.Category = models.Category(t)
	}
	if ref.ID == "" {
		return nil, nil
	}
	return ref, nil
}

// Tags extracts the tag list from a tag-search payload.
func Tags(p *Payload) []Tag {
	if p == nil || p.Envelope == nil {
		return nil
	}

	var raw []interface{}
	switch v := p.Envelope["results"].(type) {
	case []interface{}:
		raw = v
	case map[string]interface{}:
		if tags, ok := v["tags"].([]interface{}); ok {
			raw = tags
		}
	}

	out := make([]Tag, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		tag := Tag{
			ID:   stringField(m, "tag_id", "id"),
			Name: stringField(m, "name"),
		}
		if tag.ID != "" {
			out = append(out, tag)
		}
	}
	return out
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*Payload, error) {
	requestURL := c.config.BaseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, stderrors.NewUpstreamError(endpoint, 0, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}

	var resp *http.Response
	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.UpstreamCalls.WithLabelValues(endpoint, "timeout").Inc()
				return nil, stderrors.NewUpstreamTimeoutError(endpoint, ctx.Err().Error())
			}
		}

		resp, lastErr = c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			metrics.UpstreamCalls.WithLabelValues(endpoint, "timeout").Inc()
			return nil, stderrors.NewUpstreamTimeoutError(endpoint, "request deadline exceeded")
		}

		if lastErr == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				break
			}
			resp.Body.Close()
			lastStatus = resp.StatusCode
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil || resp == nil {
		details := "no successful response after retries"
		if lastErr != nil {
			details = lastErr.Error()
		}
		c.logger.Warn("upstream call failed", map[string]interface{}{
			"endpoint": endpoint,
			"error":    details,
		})
		metrics.UpstreamCalls.WithLabelValues(endpoint, "error").Inc()
		return nil, stderrors.NewUpstreamError(endpoint, lastStatus, details)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(endpoint, "error").Inc()
		return nil, stderrors.NewUpstreamError(endpoint, resp.StatusCode, "read body: "+err.Error())
	}

	envelope := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			metrics.UpstreamCalls.WithLabelValues(endpoint, "error").Inc()
			return nil, stderrors.NewUpstreamError(endpoint, resp.StatusCode, "decode body: "+err.Error())
		}
	}

	metrics.UpstreamCalls.WithLabelValues(endpoint, "ok").Inc()
	return &Payload{Raw: raw, Envelope: envelope}, nil
}

func clampTake(take int) int {
	if take < models.MinTake {
		return models.MinTake
	}
	return take
}

// firstEntity probes the known envelope shapes for the first entity object.
func firstEntity(envelope map[string]interface{}) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	candidates := [][]interface{}{}
	if results, ok := envelope["results"].(map[string]interface{}); ok {
		if entities, ok := results["entities"].([]interface{}); ok {
			candidates = append(candidates, entities)
		}
	}
	if entities, ok := envelope["entities"].([]interface{}); ok {
		candidates = append(candidates, entities)
	}
	if results, ok := envelope["results"].([]interface{}); ok {
		candidates = append(candidates, results)
	}

	for _, list := range candidates {
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				return m
			}
		}
	}
	return nil
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
