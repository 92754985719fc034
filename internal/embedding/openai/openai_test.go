package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestEmbedOpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth = %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "m" || body["input"] != "speed limit" {
			t.Errorf("body = %v", body)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()
	t.Setenv("TEST_EMBED_KEY", "secret")

	c, err := NewClient(Config{BaseURL: srv.URL + "/", APIKeyEnv: "TEST_EMBED_KEY", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Embed(context.Background(), "speed limit")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 3 || v[2] != 0.3 {
		t.Fatalf("vector = %v", v)
	}
}

func TestEmbedOllamaShapeAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, MaxRetries: 2})
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.Embed(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 2 || calls.Load() != 2 {
		t.Fatalf("vector = %v after %d calls", v, calls.Load())
	}
}

func TestEmbedClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, MaxRetries: 3})
	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestMissingKey(t *testing.T) {
	t.Setenv("TEST_EMBED_MISSING", "")
	if _, err := NewClient(Config{APIKeyEnv: "TEST_EMBED_MISSING"}); err == nil {
		t.Fatal("expected error")
	}
}
