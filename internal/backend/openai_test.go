package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"token-sentinel/internal/domain"
)

func scoreRequest() domain.ScoreRequest {
	name := "Pepe Classic"
	liquidity := 15000.0
	return domain.ScoreRequest{
		Fingerprint: "fp-abc",
		Candidate: domain.EnrichedCandidate{
			Candidate: domain.Candidate{
				Address: "0xAAA0000000000000000000000000000000000001",
				Source:  domain.SourceChainStream,
			},
			Metadata: domain.TokenMetadata{Name: &name, LiquidityUSD: &liquidity},
		},
		Indicators: []string{"very few holders (< 10)"},
	}
}

func chatReply(content string, tokens int64) string {
	reply := map[string]any{
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{"total_tokens": tokens},
	}
	b, _ := json.Marshal(reply)
	return string(b)
}

func TestOpenAIScorer_Score(t *testing.T) {
	verdictJSON := `{"score":8.2,"reasoning":"strong liquidity for age","risks":["young"],"opportunities":["first mover"],"recommendation":"buy","confidence":0.85}`

	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(chatReply(verdictJSON, 1234)))
	}))
	defer srv.Close()

	s, err := NewOpenAIScorer(Options{APIKey: "test-key", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIScorer failed: %v", err)
	}

	res, err := s.Score(context.Background(), scoreRequest())
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(gotBody.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(gotBody.Messages))
	}
	if !strings.Contains(gotBody.Messages[1].Content, "0xAAA0000000000000000000000000000000000001") {
		t.Error("prompt missing candidate address")
	}
	if !strings.Contains(gotBody.Messages[1].Content, "very few holders") {
		t.Error("prompt missing warning signal")
	}

	if res.Score != 8.2 {
		t.Errorf("Score = %f, want 8.2", res.Score)
	}
	if res.Recommendation != domain.RecommendationBuy {
		t.Errorf("Recommendation = %s, want BUY", res.Recommendation)
	}
	if res.CostUnits != 1234 {
		t.Errorf("CostUnits = %d, want 1234", res.CostUnits)
	}
	if res.Fingerprint != "fp-abc" {
		t.Errorf("Fingerprint = %q", res.Fingerprint)
	}
	if res.ScoredAt.IsZero() {
		t.Error("ScoredAt not set")
	}
}

func TestOpenAIScorer_ScoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, _ := NewOpenAIScorer(Options{APIKey: "k", Endpoint: srv.URL})

	if _, err := s.Score(context.Background(), scoreRequest()); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		wantRec domain.Recommendation
	}{
		{
			name:    "plain json",
			content: `{"score":5.0,"reasoning":"ok","recommendation":"HOLD","confidence":0.5}`,
			wantRec: domain.RecommendationHold,
		},
		{
			name:    "markdown fenced",
			content: "```json\n{\"score\":3.0,\"reasoning\":\"weak\",\"recommendation\":\"AVOID\",\"confidence\":0.7}\n```",
			wantRec: domain.RecommendationAvoid,
		},
		{
			name:    "unknown recommendation falls back to research",
			content: `{"score":5.0,"reasoning":"ok","recommendation":"MAYBE","confidence":0.5}`,
			wantRec: domain.RecommendationResearch,
		},
		{
			name:    "score out of range",
			content: `{"score":11.0,"reasoning":"ok","recommendation":"BUY","confidence":0.5}`,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			content: `{"score":5.0,"reasoning":"ok","recommendation":"BUY","confidence":1.5}`,
			wantErr: true,
		},
		{
			name:    "not json",
			content: "I cannot analyze this token.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseVerdict(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVerdict failed: %v", err)
			}
			if res.Recommendation != tt.wantRec {
				t.Errorf("Recommendation = %s, want %s", res.Recommendation, tt.wantRec)
			}
		})
	}
}

func TestStubScorer_Deterministic(t *testing.T) {
	s := NewStubScorer()
	req := scoreRequest()

	a, err := s.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	b, _ := s.Score(context.Background(), req)

	if a.Score != b.Score || a.Recommendation != b.Recommendation {
		t.Error("stub scorer is not deterministic")
	}
	if a.CostUnits != 0 {
		t.Errorf("stub must not spend cost units, got %d", a.CostUnits)
	}
}
