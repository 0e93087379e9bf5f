package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docchat/internal/index"
	"docchat/internal/rag"
	"docchat/internal/store"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeIndexer struct {
	info      store.IndexInfo
	statsErr  error
	results   []store.SearchResult
	searchErr error
	ingestErr error

	gotBatch index.Batch
	gotNames []string
	gotData  []string
	gotK     int
}

func (f *fakeIndexer) Ingest(ctx context.Context, batch index.Batch) (*index.Result, error) {
	f.gotBatch = batch
	for _, d := range batch.Documents {
		f.gotNames = append(f.gotNames, d.Name)
		b, _ := io.ReadAll(d.Data)
		f.gotData = append(f.gotData, string(b))
	}
	if f.ingestErr != nil {
		return &index.Result{ID: "b1", State: index.StateFailed}, f.ingestErr
	}
	info := f.info
	return &index.Result{ID: "b1", State: index.StateDone, Documents: len(batch.Documents), Chunks: 3, Info: &info}, nil
}

func (f *fakeIndexer) Search(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	f.gotK = k
	return f.results, f.searchErr
}

func (f *fakeIndexer) Stats() (store.IndexInfo, error) { return f.info, f.statsErr }

type fakeAsker struct {
	ans        *rag.Answer
	err        error
	gotHistory int
}

func (f *fakeAsker) Ask(ctx context.Context, question string, maxHistory int) (*rag.Answer, error) {
	f.gotHistory = maxHistory
	if strings.TrimSpace(question) == "" {
		return nil, rag.ErrEmptyQuestion
	}
	return f.ans, f.err
}

type fakeHistory struct {
	msgs     []store.Message
	gotLimit int
	cleared  bool
}

func (f *fakeHistory) Read(ctx context.Context, limit int) ([]store.Message, error) {
	f.gotLimit = limit
	return f.msgs, nil
}

func (f *fakeHistory) Count(ctx context.Context) (int, error) { return len(f.msgs), nil }

func (f *fakeHistory) Clear(ctx context.Context) error {
	f.cleared = true
	f.msgs = nil
	return nil
}

func newTestServer(idx *fakeIndexer, ask *fakeAsker, hist *fakeHistory) *Server {
	return New(Config{Indexer: idx, Pipeline: ask, History: hist, MaxHistory: 5})
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestGetIndex(t *testing.T) {
	idx := &fakeIndexer{info: store.IndexInfo{Model: "nomic-embed-text", Dimension: 768, ChunkCount: 12}}
	s := newTestServer(idx, &fakeAsker{}, &fakeHistory{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, BasePath+"/index", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got indexInfo
	decode(t, rec, &got)
	if got.Model != "nomic-embed-text" || got.ChunkCount != 12 || got.Dimension != 768 {
		t.Errorf("unexpected index info %+v", got)
	}

	idx.statsErr = store.ErrIndexNotFound
	rec = do(t, s, httptest.NewRequest(http.MethodGet, BasePath+"/index", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing index: status = %d, want 404", rec.Code)
	}
}

func multipartBody(t *testing.T, files map[string]string, text string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	if text != "" {
		w.WriteField("text", text)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestPostDocuments_Multipart(t *testing.T) {
	idx := &fakeIndexer{info: store.IndexInfo{Model: "m", ChunkCount: 3}}
	s := newTestServer(idx, &fakeAsker{}, &fakeHistory{})

	body, ct := multipartBody(t, map[string]string{"notes.txt": "hello world"}, "extra text")
	req := httptest.NewRequest(http.MethodPost, BasePath+"/documents", body)
	req.Header.Set("Content-Type", ct)

	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(idx.gotNames) != 1 || idx.gotNames[0] != "notes.txt" || idx.gotData[0] != "hello world" {
		t.Errorf("documents = %v %v", idx.gotNames, idx.gotData)
	}
	if idx.gotBatch.Text != "extra text" {
		t.Errorf("text = %q", idx.gotBatch.Text)
	}

	var got ingestResponse
	decode(t, rec, &got)
	if got.State != index.StateDone.String() || got.Chunks != 3 || got.Index == nil {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestPostDocuments_FormTextOnly(t *testing.T) {
	idx := &fakeIndexer{}
	s := newTestServer(idx, &fakeAsker{}, &fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, BasePath+"/documents", strings.NewReader("text=just+some+text"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if idx.gotBatch.Text != "just some text" || len(idx.gotBatch.Documents) != 0 {
		t.Errorf("batch = %+v", idx.gotBatch)
	}
}

func TestPostDocuments_ValidationError(t *testing.T) {
	idx := &fakeIndexer{ingestErr: &index.ValidationError{Msg: "Please provide either PDF files or text input."}}
	s := newTestServer(idx, &fakeAsker{}, &fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, BasePath+"/documents", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := do(t, s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var got ingestResponse
	decode(t, rec, &got)
	if got.State != index.StateFailed.String() || !strings.Contains(got.Error, "Please provide") {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestPostDocuments_InternalError(t *testing.T) {
	idx := &fakeIndexer{ingestErr: errors.New("embedding failed: connection refused")}
	s := newTestServer(idx, &fakeAsker{}, &fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, BasePath+"/documents", strings.NewReader("text=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if rec := do(t, s, req); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func askRequestBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(b)
}

func TestPostAsk(t *testing.T) {
	ask := &fakeAsker{ans: &rag.Answer{
		Question: "What was Q3 revenue?",
		Text:     "$5M",
		Sources:  []store.SearchResult{{Chunk: store.Chunk{Offset: 40, Content: "The Q3 revenue was $5M."}, Distance: 0.1}},
		Elapsed:  1500 * time.Millisecond,
	}}
	s := newTestServer(&fakeIndexer{}, ask, &fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, BasePath+"/ask", askRequestBody(t, askRequest{Question: "What was Q3 revenue?"}))
	req.Header.Set("Content-Type", "application/json")

	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got askResponse
	decode(t, rec, &got)
	if got.Answer != "$5M" || len(got.Sources) != 1 || got.Sources[0].Offset != 40 || got.ElapsedMS != 1500 {
		t.Errorf("unexpected response %+v", got)
	}
	if ask.gotHistory != 5 {
		t.Errorf("history = %d, want configured 5", ask.gotHistory)
	}
}

func TestPostAsk_HistoryClamped(t *testing.T) {
	ask := &fakeAsker{ans: &rag.Answer{Text: "ok"}}
	s := newTestServer(&fakeIndexer{}, ask, &fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, BasePath+"/ask", askRequestBody(t, askRequest{Question: "q", History: 99}))
	req.Header.Set("Content-Type", "application/json")
	do(t, s, req)

	if ask.gotHistory != 20 {
		t.Errorf("history = %d, want 20", ask.gotHistory)
	}
}

func TestPostAsk_Errors(t *testing.T) {
	tests := []struct {
		name     string
		question string
		err      error
		want     int
	}{
		{"empty question", "   ", nil, http.StatusBadRequest},
		{"no index", "q", store.ErrIndexNotFound, http.StatusConflict},
		{"stale index", "q", index.ErrModelMismatch, http.StatusConflict},
		{"model failure", "q", &rag.SynthesisError{Err: errors.New("timeout")}, http.StatusBadGateway},
		{"other", "q", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeIndexer{}, &fakeAsker{err: tt.err}, &fakeHistory{})
			req := httptest.NewRequest(http.MethodPost, BasePath+"/ask", askRequestBody(t, askRequest{Question: tt.question}))
			req.Header.Set("Content-Type", "application/json")

			rec := do(t, s, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPostAsk_BadBody(t *testing.T) {
	s := newTestServer(&fakeIndexer{}, &fakeAsker{}, &fakeHistory{})
	req := httptest.NewRequest(http.MethodPost, BasePath+"/ask", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	if rec := do(t, s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPostAsk_SaveFailureKeepsAnswer(t *testing.T) {
	ask := &fakeAsker{ans: &rag.Answer{Text: "kept"}, err: errors.New("saving exchange: disk full")}
	s := newTestServer(&fakeIndexer{}, ask, &fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, BasePath+"/ask", askRequestBody(t, askRequest{Question: "q"}))
	req.Header.Set("Content-Type", "application/json")

	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got askResponse
	decode(t, rec, &got)
	if got.Answer != "kept" || !strings.Contains(got.Warning, "disk full") {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestGetSearch(t *testing.T) {
	idx := &fakeIndexer{results: []store.SearchResult{
		{Chunk: store.Chunk{Offset: 0, Content: "a"}},
		{Chunk: store.Chunk{Offset: 10, Content: "b"}},
	}}
	s := newTestServer(idx, &fakeAsker{}, &fakeHistory{})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, BasePath+"/search?q=cats&k=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Results []source `json:"results"`
	}
	decode(t, rec, &got)
	if len(got.Results) != 2 || got.Results[1].Content != "b" || idx.gotK != 2 {
		t.Errorf("results = %+v, k = %d", got.Results, idx.gotK)
	}

	do(t, s, httptest.NewRequest(http.MethodGet, BasePath+"/search?q=cats", nil))
	if idx.gotK != index.DefaultK {
		t.Errorf("default k = %d, want %d", idx.gotK, index.DefaultK)
	}

	for _, target := range []string{"/search", "/search?q=x&k=0", "/search?q=x&k=abc"} {
		if rec := do(t, s, httptest.NewRequest(http.MethodGet, BasePath+target, nil)); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}

	idx.searchErr = store.ErrIndexNotFound
	if rec := do(t, s, httptest.NewRequest(http.MethodGet, BasePath+"/search?q=x", nil)); rec.Code != http.StatusConflict {
		t.Errorf("missing index: status = %d, want 409", rec.Code)
	}
}

func TestHistoryRoutes(t *testing.T) {
	hist := &fakeHistory{msgs: []store.Message{
		{ID: 1, Role: store.RoleUser, Content: "hi"},
		{ID: 2, Role: store.RoleAssistant, Content: "hello"},
	}}
	s := newTestServer(&fakeIndexer{}, &fakeAsker{}, hist)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, BasePath+"/history?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Messages []message `json:"messages"`
		Total    int       `json:"total"`
	}
	decode(t, rec, &got)
	if got.Total != 2 {
		t.Errorf("total = %d, want 2", got.Total)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "user" || got.Messages[1].Content != "hello" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if hist.gotLimit != 10 {
		t.Errorf("limit = %d, want 10", hist.gotLimit)
	}

	if rec := do(t, s, httptest.NewRequest(http.MethodGet, BasePath+"/history?limit=-1", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d, want 400", rec.Code)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, BasePath+"/history", nil))
	if rec.Code != http.StatusNoContent || !hist.cleared {
		t.Errorf("clear: status = %d, cleared = %v", rec.Code, hist.cleared)
	}
}
