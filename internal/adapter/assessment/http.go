// Package assessment provides the HTTP client for the external assessment
// collaborator. Retries and rate limiting live in the ensemble coordinator;
// this client does one call per request.
package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pscheid92/signalpulse/internal/domain"
)

// Client calls the assessment service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.Assessor = (*Client)(nil)

// NewClient creates an assessment client. A nil httpClient falls back to
// http.DefaultClient; per-call deadlines come from the request context.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Assess posts one assessment request and decodes the analyst's judgment.
func (c *Client) Assess(ctx context.Context, req domain.AssessmentRequest) (*domain.AnalystAssessmentResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assessment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/assess", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build assessment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assessment call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("assessment service returned %d: %s", resp.StatusCode, snippet)
	}

	var result domain.AnalystAssessmentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode assessment response: %w", err)
	}

	switch result.Direction {
	case domain.DirectionBullish, domain.DirectionBearish, domain.DirectionNeutral:
	default:
		return nil, fmt.Errorf("assessment service returned unknown direction %q", result.Direction)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("assessment service returned confidence %g outside [0,1]", result.Confidence)
	}

	return &result, nil
}
