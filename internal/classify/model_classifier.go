package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spec-kit/routing-engine/internal/domain"
)

// ModelClassifier calls an external inference service for category and
// urgency. It is the unreliable dependency the circuit breaker guards: the
// caller bounds latency via ctx, and any transport or decode error counts as
// a classifier failure.
type ModelClassifier struct {
	endpoint string
	client   *http.Client
}

// NewModelClassifier constructs a classifier against the given inference
// endpoint. Timeouts are enforced by the caller's context, not the client.
func NewModelClassifier(endpoint string) *ModelClassifier {
	return &ModelClassifier{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

type modelRequest struct {
	Text string `json:"text"`
}

type modelResponse struct {
	Category string  `json:"category"`
	Urgency  float64 `json:"urgency"`
}

// Classify posts the ticket text to the model endpoint.
func (c *ModelClassifier) Classify(ctx context.Context, text string) (domain.Category, float64, error) {
	payload, err := json.Marshal(modelRequest{Text: text})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("model endpoint returned status %d", resp.StatusCode)
	}

	var decoded modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", 0, err
	}

	category := domain.Category(decoded.Category)
	if !category.Valid() {
		return "", 0, fmt.Errorf("model returned unknown category %q", decoded.Category)
	}
	return category, clamp01(decoded.Urgency), nil
}
