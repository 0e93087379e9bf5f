package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
)

const (
	metaSchemaVersion = "schema_version"
	metaModel         = "embedding_model"
	metaDimension     = "dimension"
	metaChunkCount    = "chunk_count"
	metaBuiltAt       = "built_at"
)

// IndexSpec is everything needed to write an index.
type IndexSpec struct {
	Model   string
	Chunks  []Chunk
	Vectors [][]float32
}

// BuildIndex writes a new index to path, replacing any previous one. The
// index is written to a temporary file in the same directory and renamed
// into place, so readers see either the old index or the complete new one.
// Chunk IDs are assigned in input order.
func BuildIndex(ctx context.Context, path string, spec IndexSpec) (info *IndexInfo, err error) {
	if len(spec.Chunks) == 0 {
		return nil, errors.New("build index: no chunks")
	}
	if len(spec.Chunks) != len(spec.Vectors) {
		return nil, fmt.Errorf("mismatched chunks (%d) and embeddings (%d)", len(spec.Chunks), len(spec.Vectors))
	}
	dim := len(spec.Vectors[0])
	if dim == 0 {
		return nil, errors.New("build index: empty embedding")
	}
	for i, v := range spec.Vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dim)
		}
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	db, err := openDB(tmp, "")
	if err != nil {
		return nil, err
	}
	// A single connection keeps the PRAGMA and the writes on one handle.
	db.SetMaxOpenConns(1)

	built, err := writeIndex(ctx, db, dim, spec)
	if cerr := db.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close index: %w", cerr)
	}
	if err != nil {
		return nil, err
	}

	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("replace index: %w", err)
	}
	return built, nil
}

func writeIndex(ctx context.Context, db *sql.DB, dim int, spec IndexSpec) (*IndexInfo, error) {
	if err := initIndex(db, dim); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	chunkStmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (id, source_offset, content) VALUES (?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer chunkStmt.Close()

	vecStmt, err := tx.PrepareContext(ctx, "INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return nil, err
	}
	defer vecStmt.Close()

	for i, c := range spec.Chunks {
		id := int64(i + 1)
		if _, err := chunkStmt.ExecContext(ctx, id, c.Offset, c.Content); err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", id, err)
		}
		blob, err := sqlite_vec.SerializeFloat32(spec.Vectors[i])
		if err != nil {
			return nil, fmt.Errorf("serialize embedding for chunk %d: %w", id, err)
		}
		if _, err := vecStmt.ExecContext(ctx, id, blob); err != nil {
			return nil, fmt.Errorf("insert embedding for chunk %d: %w", id, err)
		}
	}

	info := &IndexInfo{
		SchemaVersion: SchemaVersion,
		Model:         spec.Model,
		Dimension:     dim,
		ChunkCount:    len(spec.Chunks),
		BuiltAt:       time.Now().UTC().Truncate(time.Second),
	}
	meta := map[string]string{
		metaSchemaVersion: info.SchemaVersion,
		metaModel:         info.Model,
		metaDimension:     strconv.Itoa(info.Dimension),
		metaChunkCount:    strconv.Itoa(info.ChunkCount),
		metaBuiltAt:       info.BuiltAt.Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return nil, fmt.Errorf("set meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return info, nil
}

// VectorIndex is a read-only handle on a built index.
type VectorIndex struct {
	db   *sql.DB
	path string
	info IndexInfo
}

// OpenIndex opens the index at path. It returns ErrIndexNotFound if nothing
// has been built there and ErrSchemaMismatch for an incompatible file.
func OpenIndex(path string) (*VectorIndex, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w (%s)", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("stat index: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	info, err := readInfo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if info.SchemaVersion != SchemaVersion {
		db.Close()
		return nil, fmt.Errorf("%w: index has %q, expected %q", ErrSchemaMismatch, info.SchemaVersion, SchemaVersion)
	}
	return &VectorIndex{db: db, path: path, info: info}, nil
}

func readInfo(db *sql.DB) (IndexInfo, error) {
	var info IndexInfo
	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return info, fmt.Errorf("%w: read meta: %v", ErrSchemaMismatch, err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return info, err
		}
		switch k {
		case metaSchemaVersion:
			info.SchemaVersion = v
		case metaModel:
			info.Model = v
		case metaDimension:
			info.Dimension, _ = strconv.Atoi(v)
		case metaChunkCount:
			info.ChunkCount, _ = strconv.Atoi(v)
		case metaBuiltAt:
			info.BuiltAt, _ = time.Parse(time.RFC3339, v)
		}
	}
	return info, rows.Err()
}

// Info returns the metadata recorded at build time.
func (v *VectorIndex) Info() IndexInfo { return v.info }

// Path returns the file the index was opened from.
func (v *VectorIndex) Path() string { return v.path }

// Search returns up to k chunks nearest to the query vector, closest first.
// Equal distances are ordered by insertion order.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if len(query) != v.info.Dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, index expects %d", len(query), v.info.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}
	// Full scan: a vec0 KNN match chooses among equal distances itself.
	rows, err := v.db.QueryContext(ctx, `
		SELECT v.chunk_id, vec_distance_l2(v.embedding, ?) AS dist, c.source_offset, c.content
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		ORDER BY dist, v.chunk_id
		LIMIT ?
	`, blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Chunk.ID, &r.Distance, &r.Chunk.Offset, &r.Chunk.Content); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the underlying database.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}
