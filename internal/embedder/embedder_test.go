package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("unexpected model %q", req.Model)
		}
		out := embedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 0.5})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	emb := NewOllamaEmbedder(server.URL, "test-model")
	vecs, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if vecs[2][0] != 2 {
		t.Errorf("vectors out of order: %v", vecs)
	}

	one, err := emb.EmbedSingle(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed single failed: %v", err)
	}
	if len(one) != 2 {
		t.Errorf("expected 2 dims, got %d", len(one))
	}
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	emb := NewOllamaEmbedder(server.URL, "missing")
	if _, err := emb.Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("expected error from failing server")
	}
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer server.Close()

	emb := NewOllamaEmbedder(server.URL, "m")
	if _, err := emb.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error on embedding count mismatch")
	}
}

func TestOllamaEmbedder_EmptyBatch(t *testing.T) {
	emb := NewOllamaEmbedder("http://127.0.0.1:0", "m")
	vecs, err := emb.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("expected nil, nil for empty batch, got %v, %v", vecs, err)
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		// Deliberately out of order; the embedder must place by index.
		w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	}))
	defer server.Close()

	emb := NewOpenAIEmbedder(server.URL, "secret", "m")
	vecs, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not ordered by index: %v", vecs)
	}
}

type countingEmbedder struct{ calls int }

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return single(ctx, c, text)
}

func (c *countingEmbedder) Model() string { return "counting" }

func TestLazy_InitializesOnce(t *testing.T) {
	inits := 0
	inner := &countingEmbedder{}
	lazy := NewLazy("counting", func() (Embedder, error) {
		inits++
		return inner, nil
	})

	if inits != 0 {
		t.Fatal("constructor ran before first use")
	}
	if lazy.Model() != "counting" {
		t.Errorf("unexpected model %q", lazy.Model())
	}
	for i := 0; i < 3; i++ {
		if _, err := lazy.EmbedSingle(context.Background(), "x"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := lazy.Embed(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if inits != 1 {
		t.Errorf("expected 1 initialization, got %d", inits)
	}
	if inner.calls != 4 {
		t.Errorf("expected 4 embed calls, got %d", inner.calls)
	}
}

func TestLazy_FailureIsSticky(t *testing.T) {
	inits := 0
	boom := errors.New("model unavailable")
	lazy := NewLazy("broken", func() (Embedder, error) {
		inits++
		return nil, boom
	})

	for i := 0; i < 2; i++ {
		_, err := lazy.EmbedSingle(context.Background(), "x")
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped init error, got %v", err)
		}
	}
	if inits != 1 {
		t.Errorf("failed initialization was retried %d times", inits-1)
	}
}
