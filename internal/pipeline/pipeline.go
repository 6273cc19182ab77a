// Package pipeline runs one chat turn end to end: classify the utterance,
// build a recommendation query from it, resolve the profile's persona into
// taste-graph signals, dispatch, and parse the response. The whole turn runs
// sequentially under a single wall-clock budget.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tastemate/internal/common/config"
	stderrors "tastemate/internal/common/errors"
	"tastemate/internal/common/logger"
	"tastemate/internal/common/metrics"
	"tastemate/internal/common/observability"
	"tastemate/internal/history"
	"tastemate/internal/models"
	"tastemate/internal/pipeline/dispatch"
	"tastemate/internal/pipeline/intent"
	"tastemate/internal/pipeline/location"
	"tastemate/internal/pipeline/params"
	"tastemate/internal/pipeline/parse"
	"tastemate/internal/pipeline/persona"
	"tastemate/internal/taste"
)

const generalSystemPrompt = "You are a friendly taste assistant. Answer briefly and conversationally. " +
	"If the user seems to want recommendations, invite them to name a place, cuisine, or genre."

// ChatRequest is one user turn.
type ChatRequest struct {
	ProfileID   string `json:"profileId"`
	Message     string `json:"message"`
	Take        int    `json:"take,omitempty"`
	DetailLevel string `json:"detailLevel,omitempty"`
}

// ChatResponse is the pipeline's terminal output for one turn.
type ChatResponse struct {
	RequestID       string                 `json:"requestId"`
	Route           string                 `json:"route"`
	Reply           string                 `json:"reply,omitempty"`
	Recommendations *models.ParsedResponse `json:"recommendations,omitempty"`
	Explanation     *stderrors.Explanation `json:"explanation,omitempty"`
	UsageToday      int64                  `json:"usageToday,omitempty"`
	ElapsedMs       int64                  `json:"elapsedMs"`
}

// HistoryService is the conversation-recall collaborator.
type HistoryService interface {
	Search(ctx context.Context, profileID, query string) ([]history.Entry, error)
	Record(ctx context.Context, entry history.Entry) error
}

// Completer produces free-form replies for general chat turns.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// UsageCounter tracks per-profile daily request volume.
type UsageCounter interface {
	Allow(ctx context.Context, profileID string) (bool, int64)
}

// InterestStore persists interests gleaned from utterances.
type InterestStore interface {
	ReadAll(ctx context.Context, profileID string) ([]models.Interest, error)
	Append(ctx context.Context, interest models.Interest) error
}

type Pipeline struct {
	cfg         config.PipelineConfig
	extractor   *location.Extractor
	synthesizer *params.Synthesizer
	store       InterestStore
	resolver    *persona.Resolver
	dispatcher  *dispatch.Dispatcher
	parser      *parse.Parser
	histories   HistoryService
	completer   Completer
	usage       UsageCounter
	tracing     *observability.Tracing
	obs         *observability.Observability
	logger      logger.Logger
}

type Deps struct {
	Extractor   *location.Extractor
	Synthesizer *params.Synthesizer
	Store       InterestStore
	Resolver    *persona.Resolver
	Dispatcher  *dispatch.Dispatcher
	Parser      *parse.Parser
	History     HistoryService
	Completer   Completer
	Usage       UsageCounter
	Tracing     *observability.Tracing
	Metrics     *observability.Observability
}

func New(cfg config.PipelineConfig, deps Deps, log logger.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		extractor:   deps.Extractor,
		synthesizer: deps.Synthesizer,
		store:       deps.Store,
		resolver:    deps.Resolver,
		dispatcher:  deps.Dispatcher,
		parser:      deps.Parser,
		histories:   deps.History,
		completer:   deps.Completer,
		usage:       deps.Usage,
		tracing:     deps.Tracing,
		obs:         deps.Metrics,
		logger:      log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Process runs one turn. It always returns a response; terminal errors are
// folded into the response as an explanation of what was attempted and what
// to try next.
func (p *Pipeline) Process(ctx context.Context, req ChatRequest) *ChatResponse {
	started := time.Now()
	requestID := uuid.NewString()

	budget := time.Duration(p.cfg.Budget) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	log := p.logger.WithFields(map[string]interface{}{
		"requestId": requestID,
		"profileId": req.ProfileID,
	})

	resp := &ChatResponse{RequestID: requestID}

	allowed, count := p.usage.Allow(ctx, req.ProfileID)
	resp.UsageToday = count
	if !allowed {
		resp.Route = string(intent.RouteGeneral)
		resp.Reply = "You have reached today's request limit. Your recommendations will be back tomorrow."
		resp.ElapsedMs = time.Since(started).Milliseconds()
		return resp
	}

	var classification intent.Result
	p.runStage(ctx, "classify-intent", func(context.Context) error {
		classification = intent.Classify(req.Message)
		return nil
	})
	resp.Route = string(classification.Route)
	metrics.PipelineRequests.WithLabelValues(resp.Route).Inc()

	log.Info("turn classified", map[string]interface{}{
		"route":      resp.Route,
		"confidence": classification.Confidence,
	})

	var err error
	switch classification.Route {
	case intent.RouteHistory:
		err = p.handleHistory(ctx, req, resp)
	case intent.RouteRecommendation:
		err = p.handleRecommendation(ctx, req, resp, log)
	default:
		err = p.handleGeneral(ctx, req, resp)
	}

	if err != nil {
		err = p.normalizeDeadline(ctx, err, budget)
		explanation := stderrors.Explain(err)
		resp.Explanation = &explanation
		metrics.PipelineFailures.WithLabelValues(string(explanation.Code)).Inc()
		log.Error("turn failed", map[string]interface{}{
			"route": resp.Route,
			"error": err.Error(),
		})
	}

	p.recordExchange(req, resp)

	resp.ElapsedMs = time.Since(started).Milliseconds()

	status := "ok"
	if resp.Explanation != nil {
		status = string(resp.Explanation.Code)
	}
	p.obs.RecordRequestProcessed(ctx, resp.Route, status)
	p.obs.RecordRequestDuration(ctx, time.Since(started), status)

	return resp
}

func (p *Pipeline) handleHistory(ctx context.Context, req ChatRequest, resp *ChatResponse) error {
	var entries []history.Entry
	err := p.runStage(ctx, "history-search", func(ctx context.Context) error {
		var searchErr error
		entries, searchErr = p.histories.Search(ctx, req.ProfileID, req.Message)
		return searchErr
	})
	if err != nil {
		return err
	}
	resp.Reply = history.SynthesizeAnswer(entries)
	return nil
}

func (p *Pipeline) handleGeneral(ctx context.Context, req ChatRequest, resp *ChatResponse) error {
	return p.runStage(ctx, "completion", func(ctx context.Context) error {
		reply, err := p.completer.Complete(ctx, generalSystemPrompt, req.Message)
		if err != nil {
			return err
		}
		resp.Reply = reply
		return nil
	})
}

func (p *Pipeline) handleRecommendation(ctx context.Context, req ChatRequest, resp *ChatResponse, log logger.Logger) error {
	var loc location.Result
	p.runStage(ctx, "extract-location", func(context.Context) error {
		loc = p.extractor.Extract(req.Message)
		return nil
	})

	var query *models.RecommendationParameters
	p.runStage(ctx, "synthesize-params", func(ctx context.Context) error {
		query = p.synthesizer.Synthesize(ctx, req.ProfileID, req.Message, loc)
		return nil
	})
	p.applyRequestOverrides(req, query)

	var interests []models.Interest
	err := p.runStage(ctx, "read-persona", func(ctx context.Context) error {
		var readErr error
		interests, readErr = p.store.ReadAll(ctx, req.ProfileID)
		return readErr
	})
	if err != nil {
		// A missing persona degrades to an unsignaled query instead of
		// failing the turn.
		log.Warn("persona read failed, continuing without signals", map[string]interface{}{
			"error": err.Error(),
		})
		interests = nil
	}

	p.runStage(ctx, "resolve-signals", func(ctx context.Context) error {
		query.Signals = p.resolver.Resolve(ctx, interests, query.Category)
		return nil
	})

	p.appendUtteranceInterests(ctx, req.ProfileID, query, log)

	var payload *taste.Payload
	err = p.runStage(ctx, "dispatch", func(ctx context.Context) error {
		var dispatchErr error
		payload, dispatchErr = p.dispatcher.Dispatch(ctx, query)
		return dispatchErr
	})
	if err != nil {
		return err
	}

	var parsed *models.ParsedResponse
	p.runStage(ctx, "parse-response", func(context.Context) error {
		parsed = p.parser.Parse(payload, query.DetailLevel)
		return nil
	})

	resp.Recommendations = parsed
	resp.Reply = summarizeResults(parsed, query)
	return nil
}

// applyRequestOverrides replaces synthesizer defaults with explicit caller
// choices. Take still goes through the clamp against the configured cap.
func (p *Pipeline) applyRequestOverrides(req ChatRequest, query *models.RecommendationParameters) {
	if req.Take > 0 {
		query.Take = req.Take
		query.ClampTake(p.synthesizer.TakeCap())
	}
	if req.DetailLevel != "" {
		query.DetailLevel = models.DetailLevel(req.DetailLevel)
	}
}

// appendUtteranceInterests saves tags mentioned in this turn as low-confidence
// interests. Best effort: a write failure never affects the turn.
func (p *Pipeline) appendUtteranceInterests(ctx context.Context, profileID string, query *models.RecommendationParameters, log logger.Logger) {
	for _, tag := range query.FilterTags {
		interest := models.Interest{
			ProfileID: profileID,
			Name:      tag,
			Category:  query.Category,
			Source:    models.SourceInferred,
		}
		interest.SetConfidence(0.4)
		if err := p.store.Append(ctx, interest); err != nil {
			log.Warn("failed to save utterance interest", map[string]interface{}{
				"interest": tag,
				"error":    err.Error(),
			})
		}
	}
}

// recordExchange persists the turn to conversation history with its own
// short deadline, detached from the request budget.
func (p *Pipeline) recordExchange(req ChatRequest, resp *ChatResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	entry := history.Entry{
		ProfileID: req.ProfileID,
		Message:   req.Message,
		Response:  resp.Reply,
		Route:     resp.Route,
	}
	if err := p.histories.Record(ctx, entry); err != nil {
		p.logger.Warn("failed to record exchange", map[string]interface{}{
			"profileId": req.ProfileID,
			"error":     err.Error(),
		})
	}
}

// normalizeDeadline maps a budget overrun to the pipeline timeout code so the
// caller sees the budget, not whichever stage happened to be running.
func (p *Pipeline) normalizeDeadline(ctx context.Context, err error, budget time.Duration) error {
	if ctx.Err() == context.DeadlineExceeded {
		return stderrors.NewPipelineTimeoutError(budget)
	}
	return err
}

// runStage wraps one stage with a span and a duration observation.
func (p *Pipeline) runStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, span := p.tracing.StartStage(ctx, stage)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	return err
}

func summarizeResults(parsed *models.ParsedResponse, query *models.RecommendationParameters) string {
	if len(parsed.Entities) == 0 {
		return "I could not find anything matching that. Try a different place or a broader category."
	}

	names := make([]string, 0, 3)
	for i, e := range parsed.Entities {
		if i >= 3 {
			break
		}
		names = append(names, e.Name)
	}

	where := ""
	if query.Location != nil && query.Location.Query != "" {
		where = " in " + query.Location.Query
	}
	return fmt.Sprintf("Here are %d picks%s. Top of the list: %s.",
		len(parsed.Entities), where, strings.Join(names, ", "))
}
