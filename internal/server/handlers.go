package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docchat/internal/config"
	"docchat/internal/extract"
	"docchat/internal/index"
	"docchat/internal/rag"
	"docchat/internal/store"

	"github.com/gin-gonic/gin"
)

type indexInfo struct {
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	ChunkCount int       `json:"chunk_count"`
	BuiltAt    time.Time `json:"built_at"`
}

func toIndexInfo(info store.IndexInfo) indexInfo {
	return indexInfo{
		Model:      info.Model,
		Dimension:  info.Dimension,
		ChunkCount: info.ChunkCount,
		BuiltAt:    info.BuiltAt,
	}
}

type ingestResponse struct {
	ID        string     `json:"id"`
	State     string     `json:"state"`
	Warning   string     `json:"warning,omitempty"`
	Skipped   []string   `json:"skipped,omitempty"`
	Documents int        `json:"documents"`
	Chunks    int        `json:"chunks"`
	ElapsedMS int64      `json:"elapsed_ms"`
	Index     *indexInfo `json:"index,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
	History  int    `json:"history"`
}

type source struct {
	Offset   int     `json:"offset"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

type askResponse struct {
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Sources   []source `json:"sources"`
	ElapsedMS int64    `json:"elapsed_ms"`
	Warning   string   `json:"warning,omitempty"`
}

type message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func toSources(results []store.SearchResult) []source {
	out := make([]source, 0, len(results))
	for _, r := range results {
		out = append(out, source{Offset: r.Chunk.Offset, Content: r.Chunk.Content, Distance: r.Distance})
	}
	return out
}

// GET /index
func (s *Server) getIndex(c *gin.Context) {
	info, err := s.cfg.Indexer.Stats()
	if errors.Is(err, store.ErrIndexNotFound) {
		abortError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, toIndexInfo(info))
}

// POST /documents accepts multipart "files" plus an optional "text" field.
func (s *Server) postDocuments(c *gin.Context) {
	batch := index.Batch{Text: c.PostForm("text")}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			abortError(c, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}
		docs, closeAll := openUploads(form.File["files"])
		defer closeAll()
		batch.Documents = docs
	}

	s.ingestMu.Lock()
	res, err := s.cfg.Indexer.Ingest(c.Request.Context(), batch)
	s.ingestMu.Unlock()

	resp := ingestResponse{}
	if res != nil {
		resp = ingestResponse{
			ID:        res.ID,
			State:     res.State.String(),
			Warning:   res.Warning,
			Skipped:   res.Skipped,
			Documents: res.Documents,
			Chunks:    res.Chunks,
			ElapsedMS: res.Elapsed.Milliseconds(),
		}
		if res.Info != nil {
			info := toIndexInfo(*res.Info)
			resp.Index = &info
		}
	}
	if err != nil {
		resp.Error = err.Error()
		var verr *index.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, resp)
			return
		}
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// openUploads turns uploaded files into documents. A file that cannot be
// opened still becomes a document so the ingestion warning lists it.
func openUploads(headers []*multipart.FileHeader) ([]extract.Document, func()) {
	docs := make([]extract.Document, 0, len(headers))
	var files []multipart.File
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			docs = append(docs, extract.FailedDocument(fh.Filename, err))
			continue
		}
		files = append(files, f)
		docs = append(docs, extract.Document{Name: fh.Filename, Data: f})
	}
	return docs, func() {
		for _, f := range files {
			f.Close()
		}
	}
}

// POST /ask
func (s *Server) postAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	history := s.cfg.MaxHistory
	if req.History > 0 {
		history = config.ClampHistory(req.History)
	}

	ans, err := s.cfg.Pipeline.Ask(c.Request.Context(), req.Question, history)
	var serr *rag.SynthesisError
	switch {
	case err == nil:
	case ans != nil:
		// The answer was produced but the exchange could not be saved.
	case errors.Is(err, rag.ErrEmptyQuestion):
		abortError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrIndexNotFound), errors.Is(err, index.ErrModelMismatch):
		abortError(c, http.StatusConflict, err.Error())
		return
	case errors.As(err, &serr):
		abortError(c, http.StatusBadGateway, serr.Error())
		return
	default:
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	resp := askResponse{
		Question:  ans.Question,
		Answer:    ans.Text,
		Sources:   toSources(ans.Sources),
		ElapsedMS: ans.Elapsed.Milliseconds(),
	}
	if err != nil {
		resp.Warning = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// GET /search?q=...&k=...
func (s *Server) getSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		abortError(c, http.StatusBadRequest, "query parameter q is required")
		return
	}
	k, err := strconv.Atoi(c.DefaultQuery("k", strconv.Itoa(index.DefaultK)))
	if err != nil || k <= 0 {
		abortError(c, http.StatusBadRequest, "k must be a positive integer")
		return
	}

	results, err := s.cfg.Indexer.Search(c.Request.Context(), q, k)
	if errors.Is(err, store.ErrIndexNotFound) || errors.Is(err, index.ErrModelMismatch) {
		abortError(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": toSources(results)})
}

// GET /history?limit=... returns the most recent messages and the total stored.
func (s *Server) getHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		abortError(c, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	msgs, err := s.cfg.History.Read(c.Request.Context(), limit)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.cfg.History.Count(c.Request.Context())
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, message{ID: m.ID, Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out, "total": total})
}

// DELETE /history
func (s *Server) deleteHistory(c *gin.Context) {
	if err := s.cfg.History.Clear(c.Request.Context()); err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
