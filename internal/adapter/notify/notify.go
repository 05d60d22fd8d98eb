// Package notify provides prediction notification sinks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pscheid92/signalpulse/internal/domain"
)

// LogNotifier writes emitted predictions to the structured log. It is the
// default sink when no webhook is configured.
type LogNotifier struct{}

var _ domain.Notifier = LogNotifier{}

func (LogNotifier) PredictionEmitted(_ context.Context, prediction *domain.Prediction, snapshot *domain.PredictionSnapshot) error {
	slog.Info("Prediction emitted",
		"prediction_id", prediction.ID.String(),
		"target_id", prediction.TargetID.String(),
		"direction", string(prediction.Direction),
		"confidence", prediction.Confidence,
		"timeframe_hours", prediction.TimeframeHours,
		"contributors", len(snapshot.PredictorIDs),
		"is_test", prediction.IsTest)
	return nil
}

// WebhookNotifier posts emitted predictions to a downstream consumer.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

var _ domain.Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string, httpClient *http.Client) *WebhookNotifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebhookNotifier{url: url, httpClient: httpClient}
}

type webhookPayload struct {
	Prediction *domain.Prediction         `json:"prediction"`
	Snapshot   *domain.PredictionSnapshot `json:"snapshot"`
}

func (n *WebhookNotifier) PredictionEmitted(ctx context.Context, prediction *domain.Prediction, snapshot *domain.PredictionSnapshot) error {
	body, err := json.Marshal(webhookPayload{Prediction: prediction, Snapshot: snapshot})
	if err != nil {
		return fmt.Errorf("failed to encode prediction payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification endpoint returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
