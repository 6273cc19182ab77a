// Package completion calls the external text-completion service used for
// general conversation turns that need no recommendation.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tastemate/internal/common/config"
	stderrors "tastemate/internal/common/errors"
	commonhttp "tastemate/internal/common/http"
	"tastemate/internal/common/logger"
	"tastemate/internal/common/metrics"
)

type Client struct {
	cfg    config.CompletionConfig
	http   *commonhttp.Client
	logger logger.Logger
}

func NewClient(cfg config.CompletionConfig, log logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   commonhttp.NewClient(time.Duration(cfg.Timeout) * time.Millisecond),
		logger: log.WithFields(map[string]interface{}{"component": "completion"}),
	}
}

type request struct {
	Model    string    `json:"model,omitempty"`
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends the user text plus an optional system prompt and returns the
// generated reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	msgs := make([]message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, message{Role: "user", Content: userText})

	body, err := json.Marshal(request{Model: c.cfg.Model, Messages: msgs})
	if err != nil {
		return "", stderrors.NewInternalError(fmt.Errorf("marshal completion request: %w", err))
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", stderrors.NewInternalError(fmt.Errorf("build completion request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("completion", "error").Inc()
		if ctx.Err() == context.DeadlineExceeded {
			return "", stderrors.NewUpstreamTimeoutError("completion", "completion call timed out")
		}
		return "", stderrors.NewUpstreamError("completion", 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("completion", "error").Inc()
		return "", stderrors.NewUpstreamError("completion", resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamCalls.WithLabelValues("completion", "error").Inc()
		return "", stderrors.NewUpstreamError("completion", resp.StatusCode, string(raw))
	}
	metrics.UpstreamCalls.WithLabelValues("completion", "success").Inc()

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", stderrors.NewParseError(fmt.Sprintf("decode completion response: %v", err))
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", stderrors.NewEmptyResultError("completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
