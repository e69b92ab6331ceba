package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		reply := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(reply)
	}))
}

// TestChatCompletion tests a plain completion round trip
func TestChatCompletion(t *testing.T) {
	server := chatServer(t, "the checkout errors trace back to payment timeouts")
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: server.URL})
	content, err := client.ChatCompletion(context.Background(), "you are a debugger", "why?")
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if !strings.Contains(content, "payment timeouts") {
		t.Errorf("unexpected content %q", content)
	}
}

// TestGetJSONResponseStripsFences tests fenced JSON replies still decode
func TestGetJSONResponseStripsFences(t *testing.T) {
	type reply struct {
		RootCause string `json:"root_cause"`
	}

	server := chatServer(t, "```json\n{\"root_cause\": \"rate limiting\"}\n```")
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	parsed, err := GetJSONResponse[reply](context.Background(), client, "respond in JSON", "diagnose")
	if err != nil {
		t.Fatalf("json response failed: %v", err)
	}
	if parsed.RootCause != "rate limiting" {
		t.Errorf("expected rate limiting, got %q", parsed.RootCause)
	}
}

// TestGetJSONResponseBadPayload tests non-JSON content is an error
func TestGetJSONResponseBadPayload(t *testing.T) {
	type reply struct {
		RootCause string `json:"root_cause"`
	}

	server := chatServer(t, "I cannot answer that.")
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if _, err := GetJSONResponse[reply](context.Background(), client, "respond in JSON", "diagnose"); err == nil {
		t.Error("expected a parse error")
	}
}

// TestEmbed tests the embeddings endpoint round trip
func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", EmbeddingModel: "text-embedding-3-small", BaseURL: server.URL})
	vec, err := client.Embed(context.Background(), "checkout errors")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vec))
	}
}

// TestChatCompletionAPIError tests server error payloads surface
func TestChatCompletionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "quota exceeded", "type": "insufficient_quota"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.ChatCompletion(context.Background(), "sys", "user")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected quota error, got %v", err)
	}
}
