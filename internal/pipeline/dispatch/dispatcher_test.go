package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tastemate/internal/common/database"
	"tastemate/internal/common/logger"
	"tastemate/internal/models"
	"tastemate/internal/taste"
)

// ==========================
// Test Helper Functions
// ==========================

func payloadWithEntities(n int) *taste.Payload {
	entities := make([]interface{}, n)
	for i := range entities {
		entities[i] = map[string]interface{}{"entity_id": "e", "name": "x"}
	}
	envelope := map[string]interface{}{
		"results": map[string]interface{}{"entities": entities},
	}
	raw, _ := json.Marshal(envelope)
	return &taste.Payload{Raw: raw, Envelope: envelope}
}

type fakeClient struct {
	mu sync.Mutex

	recommendCalls []taste.RecommendQuery
	searchCalls    []taste.SearchQuery
	tagCalls       []taste.TagQuery

	recommendPayload *taste.Payload
	recommendErr     error
	searchPayload    *taste.Payload
	searchErr        error
	tagPayload       *taste.Payload
	tagErr           error
}

func (f *fakeClient) Recommend(ctx context.Context, q taste.RecommendQuery) (*taste.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recommendCalls = append(f.recommendCalls, q)
	return f.recommendPayload, f.recommendErr
}

func (f *fakeClient) SearchEntities(ctx context.Context, q taste.SearchQuery) (*taste.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, q)
	return f.searchPayload, f.searchErr
}

func (f *fakeClient) SearchTags(ctx context.Context, q taste.TagQuery) (*taste.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagCalls = append(f.tagCalls, q)
	return f.tagPayload, f.tagErr
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	sets   int
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.values[key], nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value.(string)
	f.sets++
	return nil
}

func newTestDispatcher(t *testing.T, client Recommender, cache TagCache) *Dispatcher {
	return NewDispatcher(client, cache, logger.NewZapAdapter(zaptest.NewLogger(t)))
}

func signaledParams() *models.RecommendationParameters {
	return &models.RecommendationParameters{
		QueryText: "italian restaurants",
		Category:  models.CategoryPlace,
		Location:  &models.LocationFilter{Query: "Paris", RadiusKm: 25},
		Signals:   models.SignalSet{EntityIDs: []string{"urn:entity:place:osteria"}},
		Take:      5,
		TargetAPI: models.TargetRecommend,
	}
}

// ==========================
// Recommend Path Tests
// ==========================

func TestDispatch_RecommendSucceeds(t *testing.T) {
	client := &fakeClient{recommendPayload: payloadWithEntities(3)}
	d := newTestDispatcher(t, client, nil)

	payload, err := d.Dispatch(context.Background(), signaledParams())
	require.NoError(t, err)
	assert.NotNil(t, payload)

	require.Len(t, client.recommendCalls, 1)
	assert.Len(t, client.searchCalls, 0)
	assert.Equal(t, []string{"urn:entity:place:osteria"}, client.recommendCalls[0].EntitySignals)
	assert.Equal(t, "Paris", client.recommendCalls[0].LocationQuery)
}

func TestDispatch_EmptyRecommendFallsBackOnce(t *testing.T) {
	client := &fakeClient{
		recommendPayload: payloadWithEntities(0),
		searchPayload:    payloadWithEntities(2),
	}
	d := newTestDispatcher(t, client, nil)

	payload, err := d.Dispatch(context.Background(), signaledParams())
	require.NoError(t, err)
	assert.NotNil(t, payload)

	assert.Len(t, client.recommendCalls, 1)
	assert.Len(t, client.searchCalls, 1)
}

func TestDispatch_FailedRecommendFallsBackOnce(t *testing.T) {
	client := &fakeClient{
		recommendErr:  errors.New("upstream 502"),
		searchPayload: payloadWithEntities(2),
	}
	d := newTestDispatcher(t, client, nil)

	payload, err := d.Dispatch(context.Background(), signaledParams())
	require.NoError(t, err)
	assert.NotNil(t, payload)

	assert.Len(t, client.recommendCalls, 1)
	assert.Len(t, client.searchCalls, 1)
}

func TestDispatch_FallbackFailurePropagates(t *testing.T) {
	client := &fakeClient{
		recommendErr: errors.New("upstream 502"),
		searchErr:    errors.New("upstream 502"),
	}
	d := newTestDispatcher(t, client, nil)

	_, err := d.Dispatch(context.Background(), signaledParams())
	assert.Error(t, err)

	// Exactly one call per endpoint. The fallback never cascades.
	assert.Len(t, client.recommendCalls, 1)
	assert.Len(t, client.searchCalls, 1)
}

func TestDispatch_NoSignalsSkipsPrimary(t *testing.T) {
	client := &fakeClient{searchPayload: payloadWithEntities(1)}
	d := newTestDispatcher(t, client, nil)

	params := signaledParams()
	params.Signals = models.SignalSet{}

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)

	assert.Len(t, client.recommendCalls, 0)
	assert.Len(t, client.searchCalls, 1)
}

func TestDispatch_FilterTagsStandInForSignals(t *testing.T) {
	client := &fakeClient{recommendPayload: payloadWithEntities(1)}
	d := newTestDispatcher(t, client, nil)

	params := signaledParams()
	params.Signals = models.SignalSet{}
	params.FilterTags = []string{"urn:tag:cuisine:italian"}

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, client.recommendCalls, 1)
	assert.Equal(t, []string{"urn:tag:cuisine:italian"}, client.recommendCalls[0].TagSignals)
}

// ==========================
// Fallback Rewrite Tests
// ==========================

func TestDispatch_SportsBrandRewritePreservesLocation(t *testing.T) {
	client := &fakeClient{
		recommendPayload: payloadWithEntities(0),
		searchPayload:    payloadWithEntities(1),
	}
	d := newTestDispatcher(t, client, nil)

	params := signaledParams()
	params.QueryText = "sports brands"
	params.Category = models.CategoryBrand
	params.FilterTags = []string{"athletic"}

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, client.searchCalls, 1)
	assert.Equal(t, "Nike Adidas Puma Under Armour New Balance Reebok Asics", client.searchCalls[0].Query)
	assert.Equal(t, "Paris", client.searchCalls[0].LocationQuery)

	// The caller's params are untouched by the rewrite.
	assert.Equal(t, "sports brands", params.QueryText)
}

func TestDispatch_NonSportBrandNotRewritten(t *testing.T) {
	client := &fakeClient{
		recommendPayload: payloadWithEntities(0),
		searchPayload:    payloadWithEntities(1),
	}
	d := newTestDispatcher(t, client, nil)

	params := signaledParams()
	params.QueryText = "luxury fashion brands"
	params.Category = models.CategoryBrand
	params.FilterTags = []string{"luxury"}

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, client.searchCalls, 1)
	assert.Equal(t, "luxury fashion brands", client.searchCalls[0].Query)
}

// ==========================
// Tag Search Tests
// ==========================

func TestDispatch_TagSearchCachesPayload(t *testing.T) {
	client := &fakeClient{tagPayload: payloadWithEntities(2)}
	cache := &fakeCache{}
	d := newTestDispatcher(t, client, cache)

	params := signaledParams()
	params.TargetAPI = models.TargetTagSearch
	params.QueryText = "Cozy"

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, client.tagCalls, 1)
	assert.Equal(t, 1, cache.sets)

	// Second identical search is served from the cache.
	_, err = d.Dispatch(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, client.tagCalls, 1)
}

func TestDispatch_TagSearchCacheMissOnError(t *testing.T) {
	client := &fakeClient{tagPayload: payloadWithEntities(1)}
	cache := &fakeCache{getErr: errors.New("redis down")}
	d := newTestDispatcher(t, client, cache)

	params := signaledParams()
	params.TargetAPI = models.TargetTagSearch

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, client.tagCalls, 1)
}

func TestDispatch_TagSearchThroughRedis(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	client := &fakeClient{tagPayload: payloadWithEntities(2)}
	d := newTestDispatcher(t, client, &database.RedisClient{Client: rdb})

	params := signaledParams()
	params.TargetAPI = models.TargetTagSearch
	params.QueryText = "cozy"

	key := "tags:urn:entity:place:cozy"
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(client.tagPayload.Raw), 15*time.Minute).SetVal("OK")

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, client.tagCalls, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatch_TagSearchWithoutCache(t *testing.T) {
	client := &fakeClient{tagPayload: payloadWithEntities(1)}
	d := newTestDispatcher(t, client, nil)

	params := signaledParams()
	params.TargetAPI = models.TargetTagSearch

	_, err := d.Dispatch(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, client.tagCalls[0].TypoTolerance)
}
