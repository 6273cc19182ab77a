// Package history stores and searches past conversation exchanges in
// Elasticsearch so the assistant can answer "what did I ask you" questions.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tastemate/internal/common/database"
	stderrors "tastemate/internal/common/errors"
	"tastemate/internal/common/logger"
)

const defaultSearchSize = 5

// Entry is one stored exchange: what the user said and what came back.
type Entry struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Route     string    `json:"route"`
	Timestamp time.Time `json:"timestamp"`
}

type Service struct {
	es     *database.ElasticsearchClient
	index  string
	logger logger.Logger
}

func NewService(es *database.ElasticsearchClient, index string, log logger.Logger) *Service {
	return &Service{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "history"}),
	}
}

// Record indexes one exchange. Failures are reported but are never fatal to
// the request that produced the exchange.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return stderrors.NewInternalError(fmt.Errorf("marshal history entry: %w", err))
	}

	res, err := s.es.Client.Index(
		s.index,
		bytes.NewReader(body),
		s.es.Client.Index.WithContext(ctx),
		s.es.Client.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		return stderrors.NewUpstreamError("elasticsearch", 0, err.Error())
	}
	defer res.Body.Close()

	if res.IsError() {
		return stderrors.NewUpstreamError("elasticsearch", res.StatusCode, res.Status())
	}
	return nil
}

// Search returns the most relevant stored exchanges for the profile matching
// the query text, newest-biased via recency tiebreak.
func (s *Service) Search(ctx context.Context, profileID, query string) ([]Entry, error) {
	esQuery := map[string]interface{}{
		"size": defaultSearchSize,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{"profile_id": profileID},
					},
				},
				"must": []interface{}{
					map[string]interface{}{
						"match": map[string]interface{}{
							"message": map[string]interface{}{
								"query":     query,
								"fuzziness": "AUTO",
							},
						},
					},
				},
			},
		},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "desc"}},
		},
	}

	body, err := json.Marshal(esQuery)
	if err != nil {
		return nil, stderrors.NewInternalError(fmt.Errorf("marshal history query: %w", err))
	}

	res, err := s.es.Client.Search(
		s.es.Client.Search.WithContext(ctx),
		s.es.Client.Search.WithIndex(s.index),
		s.es.Client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, stderrors.NewUpstreamTimeoutError("elasticsearch", "history search timed out")
		}
		return nil, stderrors.NewUpstreamError("elasticsearch", 0, err.Error())
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, stderrors.NewUpstreamError("elasticsearch", res.StatusCode, res.Status())
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				Source Entry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, stderrors.NewParseError(fmt.Sprintf("decode history response: %v", err))
	}

	entries := make([]Entry, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		entries = append(entries, hit.Source)
	}

	s.logger.Debug("history search complete", map[string]interface{}{
		"profileId": profileID,
		"hits":      len(entries),
	})
	return entries, nil
}

// SynthesizeAnswer turns matched entries into a short conversational reply.
func SynthesizeAnswer(entries []Entry) string {
	if len(entries) == 0 {
		return "I could not find anything like that in our past conversations."
	}

	var b strings.Builder
	b.WriteString("Here is what I found from our past conversations:\n")
	for i, e := range entries {
		if i >= 3 {
			break
		}
		b.WriteString(fmt.Sprintf("- On %s you asked %q", e.Timestamp.Format("Jan 2"), e.Message))
		if e.Response != "" {
			b.WriteString(fmt.Sprintf(" and I answered %q", summarize(e.Response, 120)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarize(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
