package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"token-sentinel/internal/domain"
)

// ErrMalformedResponse is returned when the model reply cannot be parsed
// into a usable score.
var ErrMalformedResponse = errors.New("malformed backend response")

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Options configures an OpenAIScorer.
type Options struct {
	APIKey      string
	Model       string  // default "gpt-4o-mini"
	Endpoint    string  // default OpenAI chat completions
	MaxTokens   int     // default 600
	Temperature float64 // default 0.7
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// OpenAIScorer scores token candidates via an OpenAI-compatible
// chat-completions endpoint. Implements analyze.Scorer.
type OpenAIScorer struct {
	apiKey      string
	model       string
	endpoint    string
	maxTokens   int
	temperature float64
	client      *http.Client
	log         zerolog.Logger
}

// NewOpenAIScorer creates a scorer from the given options.
func NewOpenAIScorer(opts Options) (*OpenAIScorer, error) {
	if opts.APIKey == "" {
		return nil, errors.New("backend: api key required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 600
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &OpenAIScorer{
		apiKey:      opts.APIKey,
		model:       opts.Model,
		endpoint:    opts.Endpoint,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		client:      opts.HTTPClient,
		log:         opts.Logger.With().Str("component", "backend").Logger(),
	}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// verdict is the JSON contract the model is instructed to reply with.
type verdict struct {
	Score          float64  `json:"score"`
	Reasoning      string   `json:"reasoning"`
	Risks          []string `json:"risks"`
	Opportunities  []string `json:"opportunities"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
}

const systemPrompt = "You are an expert in crypto token analysis. Always reply with valid JSON."

// Score evaluates a candidate and returns its speculative-potential verdict.
func (s *OpenAIScorer) Score(ctx context.Context, req domain.ScoreRequest) (*domain.ScoreResult, error) {
	prompt := buildPrompt(req)

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      s.maxTokens,
		Temperature:    s.temperature,
		ResponseFormat: &formatSpec{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call scoring backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("scoring backend %d: %s", resp.StatusCode, string(b))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode backend response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	result, err := parseVerdict(cr.Choices[0].Message.Content)
	if err != nil {
		s.log.Warn().Err(err).
			Str("address", req.Candidate.Address).
			Msg("unparseable model reply")
		return nil, err
	}

	result.Fingerprint = req.Fingerprint
	result.CostUnits = cr.Usage.TotalTokens
	result.ScoredAt = time.Now().UTC()

	s.log.Debug().
		Str("address", req.Candidate.Address).
		Float64("score", result.Score).
		Str("recommendation", string(result.Recommendation)).
		Int64("cost_units", result.CostUnits).
		Msg("candidate scored")

	return result, nil
}

// parseVerdict decodes and validates the model's JSON reply.
func parseVerdict(content string) (*domain.ScoreResult, error) {
	// Models occasionally wrap JSON in a markdown fence despite instructions.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if v.Score < 0 || v.Score > 10 {
		return nil, fmt.Errorf("%w: score %.2f out of range", ErrMalformedResponse, v.Score)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %.2f out of range", ErrMalformedResponse, v.Confidence)
	}

	rec := domain.Recommendation(strings.ToUpper(strings.TrimSpace(v.Recommendation)))
	if !rec.IsValid() {
		rec = domain.RecommendationResearch
	}

	return &domain.ScoreResult{
		Score:          v.Score,
		Confidence:     v.Confidence,
		Recommendation: rec,
		Rationale:      v.Reasoning,
		Risks:          v.Risks,
		Opportunities:  v.Opportunities,
	}, nil
}
