// Sentigraph - Social Data Aggregation and Sentiment Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentigraph

package sentiment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sentigraph/internal/metrics"
)

// ClientConfig holds configuration for the HTTP scorer.
type ClientConfig struct {
	// URL is the scoring endpoint, e.g. http://scorer:9200/v1/analyze.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single scoring call. Default: 10s.
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the scoring API. Zero disables
	// throttling. Default: 10.
	RequestsPerSecond float64
}

// DefaultClientConfig returns production defaults for the HTTP scorer.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:           10 * time.Second,
		RequestsPerSecond: 10,
	}
}

// HTTPScorer scores text through an external JSON API.
//
// Request:  POST {"text": "..."}
// Response: {"score": -0.3, "rating": "negative"}
//
// A response missing the rating field derives it from the score.
type HTTPScorer struct {
	cfg     ClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPScorer creates a scorer client for the configured endpoint.
func NewHTTPScorer(cfg ClientConfig) (*HTTPScorer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sentiment: scorer URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &HTTPScorer{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Score  float64 `json:"score"`
	Rating string  `json:"rating"`
}

// Analyze scores a block of text.
func (s *HTTPScorer) Analyze(ctx context.Context, text string) (Result, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("sentiment: rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("sentiment: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("sentiment: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.SentimentRequests.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("sentiment: call scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		metrics.SentimentRequests.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("sentiment: scorer returned status %d", resp.StatusCode)
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.SentimentRequests.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("sentiment: decode response: %w", err)
	}

	rating := Rating(decoded.Rating)
	switch rating {
	case RatingPositive, RatingNeutral, RatingNegative:
	default:
		rating = RatingFromScore(decoded.Score)
	}

	metrics.SentimentRequests.WithLabelValues("success").Inc()
	return Result{Score: decoded.Score, Rating: rating}, nil
}
