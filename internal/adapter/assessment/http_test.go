package assessment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/signalpulse/internal/domain"
)

func TestAssess_Success(t *testing.T) {
	signalID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/assess", r.URL.Path)

		var req domain.AssessmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, signalID, req.SignalID)
		assert.Equal(t, domain.TierGold, req.Tier)

		json.NewEncoder(w).Encode(domain.AnalystAssessmentResult{
			Direction:  domain.DirectionBullish,
			Confidence: 0.85,
			Reasoning:  "strong revenue acceleration",
			KeyFactors: []string{"guidance raise"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	result, err := client.Assess(context.Background(), domain.AssessmentRequest{
		SignalID: signalID,
		Tier:     domain.TierGold,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBullish, result.Direction)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
}

func TestAssess_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Assess(context.Background(), domain.AssessmentRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestAssess_RejectsMalformedJudgments(t *testing.T) {
	tests := []struct {
		name   string
		result domain.AnalystAssessmentResult
	}{
		{"unknown direction", domain.AnalystAssessmentResult{Direction: "sideways", Confidence: 0.5}},
		{"confidence above one", domain.AnalystAssessmentResult{Direction: domain.DirectionBullish, Confidence: 1.5}},
		{"negative confidence", domain.AnalystAssessmentResult{Direction: domain.DirectionBearish, Confidence: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(tt.result)
			}))
			defer server.Close()

			client := NewClient(server.URL, nil)
			_, err := client.Assess(context.Background(), domain.AssessmentRequest{})
			assert.Error(t, err)
		})
	}
}

func TestAssess_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, nil)
	_, err := client.Assess(ctx, domain.AssessmentRequest{})
	assert.Error(t, err)
}
