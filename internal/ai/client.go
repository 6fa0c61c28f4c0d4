package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/config"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/metrics"
)

const maxResponseBytes = 64 << 10

// Client calls the external complaint classifier over HTTP. Its answers are
// untrusted: they are parsed here and validated against the category list by
// domain.ResolveRoute.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a classifier client
func NewClient(cfg config.AIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// Classify asks the classifier for a category name and subject line. The
// call ends when ctx is cancelled or the configured timeout elapses.
func (c *Client) Classify(ctx context.Context, description string, categories []domain.CategoryOption) (domain.Classification, error) {
	start := time.Now()
	result, err := c.classify(ctx, description, categories)

	outcome := "ok"
	switch {
	case ctx.Err() != nil:
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordClassifierRequest(outcome, time.Since(start))

	return result, err
}

func (c *Client) classify(ctx context.Context, description string, categories []domain.CategoryOption) (domain.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := ClassifyRequest{Description: description}
	for _, cat := range categories {
		req.Categories = append(req.Categories, CategoryInput{ID: cat.ID.String(), Name: cat.Name})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Classification{}, errors.Unavailable("classifier is unavailable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Classification{}, errors.Unavailable("classifier is unavailable", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.Classification{}, errors.Unavailable("classifier is unavailable",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	return ParseClassification(data)
}

// ParseClassification reads a classifier reply. The reply may be the JSON
// object itself, an object wrapping the raw model text in "output", or the
// raw model text, possibly inside a markdown code fence.
func ParseClassification(data []byte) (domain.Classification, error) {
	var resp ClassifyResponse
	if err := json.Unmarshal(data, &resp); err == nil {
		if resp.Output != "" {
			return ParseClassification([]byte(resp.Output))
		}
		if resp.Category != "" || resp.Subject != "" {
			return domain.Classification{Category: resp.Category, Subject: resp.Subject}, nil
		}
		if resp.Error != "" {
			return domain.Classification{}, errors.Unroutable("classifier could not classify the complaint",
				map[string]string{"classifier": resp.Error})
		}
	}

	text := stripCodeFence(string(data))
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return domain.Classification{}, errors.Unroutable("classifier returned an invalid response", nil)
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil || resp.Category == "" {
		return domain.Classification{}, errors.Unroutable("classifier returned an invalid response", nil)
	}
	return domain.Classification{Category: resp.Category, Subject: resp.Subject}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// Health checks that the classifier is reachable
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("classifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classifier unhealthy: status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Status != "" && health.Status != "healthy" && health.Status != "ok" {
		return fmt.Errorf("classifier reports %s", health.Status)
	}
	return nil
}
