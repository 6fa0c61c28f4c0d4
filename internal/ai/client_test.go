package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-complaints/platform/internal/complaint/domain"
	"github.com/civic-complaints/platform/internal/shared/config"
	"github.com/civic-complaints/platform/internal/shared/errors"
	"github.com/civic-complaints/platform/internal/shared/types"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		category string
		subject  string
	}{
		{"plain object", `{"category":"Roads","subject":"Pothole on Main St"}`, "Roads", "Pothole on Main St"},
		{"wrapped output", `{"output":"{\"category\":\"Parks\",\"subject\":\"Broken swing\"}"}`, "Parks", "Broken swing"},
		{"fenced model text", "```json\n{\"category\": \"Sanitation\", \"subject\": \"Missed pickup\"}\n```", "Sanitation", "Missed pickup"},
		{"chatty model text", "Here you go: {\"category\": \"Sanitation\", \"subject\": \"Bins\"} Hope this helps", "Sanitation", "Bins"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.subject, got.Subject)
		})
	}
}

func TestParseClassification_Invalid(t *testing.T) {
	for _, body := range []string{
		"I am not sure",
		`{"error":"No matching category found","subject":""}`,
		"```json\n{\"subject\": \"no category\"}\n```",
		"",
	} {
		_, err := ParseClassification([]byte(body))
		assert.True(t, errors.Is(err, errors.ErrUnroutable), "body %q: %v", body, err)
	}
}

func TestClient_Classify(t *testing.T) {
	var got ClassifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"category":"Roads","subject":"Pothole"}`))
	}))
	defer srv.Close()

	client := NewClient(config.AIConfig{URL: srv.URL + "/", Timeout: time.Second})
	cats := []domain.CategoryOption{{ID: types.NewID(), Name: "Roads", AgencyID: types.NewID()}}

	result, err := client.Classify(context.Background(), "Big pothole", cats)
	require.NoError(t, err)
	assert.Equal(t, "Roads", result.Category)
	assert.Equal(t, "Big pothole", got.Description)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, cats[0].ID.String(), got.Categories[0].ID)
}

func TestClient_ClassifyUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(config.AIConfig{URL: srv.URL, Timeout: time.Second})

	_, err := client.Classify(context.Background(), "Big pothole", nil)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestClient_ClassifyCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(config.AIConfig{URL: srv.URL, Timeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Classify(ctx, "Big pothole", nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(config.AIConfig{URL: srv.URL}).Health(context.Background()))

	srv.Close()
	assert.Error(t, NewClient(config.AIConfig{URL: srv.URL}).Health(context.Background()))
}
