package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autotag/internal/shared"
)

func reply(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []interface{}{map[string]string{"text": text}},
				},
			},
		},
	})
	return string(b)
}

func TestClassifyPrimesOnce(t *testing.T) {
	var requests []generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("missing api key")
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		requests = append(requests, req)
		w.Write([]byte(reply("Is Remix: No\nGenre: House\n")))
	}))
	defer server.Close()

	c := NewClient("k", "test-model", server.URL, nil)
	for i := 0; i < 2; i++ {
		out, err := c.Classify(context.Background(), "Song", "Artist")
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if out != "Is Remix: No\nGenre: House" {
			t.Errorf("Classify = %q", out)
		}
	}

	if len(requests) != 3 {
		t.Fatalf("requests = %d, want 3 (prime + 2 queries)", len(requests))
	}
	if got := len(requests[2].Contents); got != 5 {
		t.Errorf("second query carried %d turns, want 5", got)
	}
	last := requests[2].Contents[4]
	if last.Role != "user" || last.Parts[0].Text != "Song title: Song\nArtist: Artist" {
		t.Errorf("last turn = %+v", last)
	}
}

func TestClassifyQuotaExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota",
			"details":[{"@type":"type.googleapis.com/google.rpc.QuotaFailure"},
			{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"28.549952853s"}]}}`))
	}))
	defer server.Close()

	_, err := NewClient("k", "m", server.URL, nil).Classify(context.Background(), "Song", "")
	if !errors.Is(err, shared.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if d, ok := shared.RetryAfter(err); !ok || d != 29*time.Second {
		t.Errorf("RetryAfter = %v, %v; want 29s", d, ok)
	}
}

func TestClassifyPermanentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"API key not valid"}}`))
	}))
	defer server.Close()

	_, err := NewClient("k", "m", server.URL, nil).Classify(context.Background(), "Song", "")
	if !errors.Is(err, shared.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("error should carry the server message: %v", err)
	}
}

func TestClassifyMissingKey(t *testing.T) {
	_, err := NewClient("", "m", "http://127.0.0.1:1", nil).Classify(context.Background(), "Song", "")
	if !errors.Is(err, ErrMissingKey) || !errors.Is(err, shared.ErrPermanent) {
		t.Errorf("expected permanent missing key error, got %v", err)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		body string
		want time.Duration
	}{
		{`{"error":{"details":[{"retryDelay":"3s"}]}}`, 4 * time.Second},
		{`{"error":{"details":[{"retryDelay":"3.42s"}]}}`, 4 * time.Second},
		{`{"error":{"details":[]}}`, DefaultQuotaDelay},
		{`{"error":{"details":[{"retryDelay":"soon"}]}}`, DefaultQuotaDelay},
	}
	for _, tt := range tests {
		if got := RetryDelay([]byte(tt.body)); got != tt.want {
			t.Errorf("RetryDelay(%s) = %v, want %v", tt.body, got, tt.want)
		}
	}
}
