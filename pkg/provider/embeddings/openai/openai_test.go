package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNativeDimensions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"some-future-model", 1536},
	}
	for _, tc := range tests {
		if got := nativeDimensions(tc.model); got != tc.want {
			t.Errorf("nativeDimensions(%q) = %d, want %d", tc.model, got, tc.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", "", WithDimensions(-1)); err == nil {
		t.Error("expected error for negative dimensions")
	}
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Errorf("ModelID() = %q, want %q", p.ModelID(), DefaultModel)
	}
}

func TestShortenedDimensions(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "text-embedding-3-small", WithDimensions(256))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Dimensions() != 256 {
		t.Errorf("Dimensions() = %d, want 256", p.Dimensions())
	}
	if p.ModelID() != "text-embedding-3-small@256" {
		t.Errorf("ModelID() = %q", p.ModelID())
	}
}

// fakeEmbeddingsServer answers /embeddings with one 2-dim vector per input,
// listed in reverse order to exercise index placement.
func fakeEmbeddingsServer(t *testing.T, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		_ = json.Unmarshal(raw, &body)
		if gotBody != nil {
			*gotBody = body
		}

		var inputs []any
		switch in := body["input"].(type) {
		case string:
			inputs = []any{in}
		case []any:
			inputs = in
		}
		data := make([]map[string]any, 0, len(inputs))
		for i := len(inputs) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body["model"],
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEmbed_RoundTrip(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := fakeEmbeddingsServer(t, &body)
	defer srv.Close()

	p, err := New("sk-test", "text-embedding-3-small", WithBaseURL(srv.URL+"/v1/"), WithDimensions(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec, err := p.Embed(context.Background(), "that's hilarious")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 1 {
		t.Errorf("Embed vector = %v", vec)
	}
	if body["dimensions"] != float64(2) {
		t.Errorf("request dimensions = %v, want 2", body["dimensions"])
	}
}

func TestEmbedBatch_PlacesByIndex(t *testing.T) {
	t.Parallel()
	srv := fakeEmbeddingsServer(t, nil)
	defer srv.Close()

	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vecs[%d][0] = %v, want %d", i, v[0], i)
		}
	}

	empty, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || empty != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", empty, err)
	}
}
