package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteClient is an embedded Client backend for offline development and
// tests. It implements the same contract as the remote service but ranks
// search results by lexical token overlap instead of embeddings; it is not
// a similarity engine.
type SQLiteClient struct {
	db *sql.DB
}

// NewSQLiteClient creates/opens the local database at path.
func NewSQLiteClient(path string) (*SQLiteClient, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create local db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process backend. One shared connection avoids writer lock
	// contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteClient{db: db}
	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *SQLiteClient) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS stores (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			filename TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'completed',
			attributes_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS files_store_created_idx ON files(store_id, created_at_ms DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("init local db: %w", err)
		}
	}
	return nil
}

func (c *SQLiteClient) CreateStore(ctx context.Context, name string) (Store, error) {
	st := Store{ID: "vs-local-" + uuid.NewString(), Name: name}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO stores (id, name, created_at_ms) VALUES (?, ?, ?)`,
		st.ID, st.Name, time.Now().UnixMilli())
	if err != nil {
		return Store{}, fmt.Errorf("create store: %w", err)
	}
	return st, nil
}

func (c *SQLiteClient) ListStores(ctx context.Context, limit int, after string) (StorePage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name FROM stores
		WHERE rowid > COALESCE((SELECT rowid FROM stores WHERE id = ?), 0)
		ORDER BY rowid
		LIMIT ?`, after, limit+1)
	if err != nil {
		return StorePage{}, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var page StorePage
	for rows.Next() {
		var st Store
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return StorePage{}, err
		}
		page.Stores = append(page.Stores, st)
	}
	if err := rows.Err(); err != nil {
		return StorePage{}, err
	}
	if len(page.Stores) > limit {
		page.Stores = page.Stores[:limit]
		page.HasMore = true
	}
	if n := len(page.Stores); n > 0 {
		page.LastID = page.Stores[n-1].ID
	}
	return page, nil
}

func (c *SQLiteClient) UploadFile(ctx context.Context, storeID, filename string, content []byte) (string, error) {
	if err := c.storeExists(ctx, storeID); err != nil {
		return "", err
	}
	id := "file-local-" + uuid.NewString()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO files (id, store_id, filename, content, status, created_at_ms)
		VALUES (?, ?, ?, ?, 'completed', ?)`,
		id, storeID, filename, string(content), time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return id, nil
}

func (c *SQLiteClient) UpdateFileAttributes(ctx context.Context, storeID, fileID string, attrs Attributes) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE files SET attributes_json = ? WHERE id = ? AND store_id = ?`,
		string(data), fileID, storeID)
	if err != nil {
		return fmt.Errorf("update attributes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("file %s not found in store %s", fileID, storeID)
	}
	return nil
}

func (c *SQLiteClient) Search(ctx context.Context, storeID string, req SearchRequest) (SearchPage, error) {
	// Both historical wire names for the filter parameter are accepted
	// here, so a caller's fallback path also works against this backend.
	if key := req.FilterKey; key != "" && key != FilterKeyPrimary && key != FilterKeyFallback {
		return SearchPage{}, fmt.Errorf("search: %q: %w", key, ErrUnknownParameter)
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, filename, content, attributes_json FROM files
		WHERE store_id = ? AND status = 'completed'`, storeID)
	if err != nil {
		return SearchPage{}, fmt.Errorf("search files: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		hit   SearchHit
		score float64
	}
	queryTokens := tokenize(req.Query)

	var candidates []candidate
	for rows.Next() {
		var id, filename, content, attrsJSON string
		if err := rows.Scan(&id, &filename, &content, &attrsJSON); err != nil {
			return SearchPage{}, err
		}
		attrs := Attributes{}
		_ = json.Unmarshal([]byte(attrsJSON), &attrs)
		if !matchFilter(req.Filter, attrs) {
			continue
		}
		score := lexicalScore(queryTokens, tokenize(content))
		if score <= 0 {
			continue
		}
		candidates = append(candidates, candidate{
			hit: SearchHit{
				FileID:     id,
				Filename:   filename,
				Score:      score,
				Attributes: attrs,
				Content:    []ContentChunk{{Type: "text", Text: content}},
			},
			score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return SearchPage{}, err
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	page := SearchPage{Query: req.Query}
	for i, cand := range candidates {
		if i >= req.MaxResults {
			page.HasMore = true
			break
		}
		page.Hits = append(page.Hits, cand.hit)
	}
	return page, nil
}

func (c *SQLiteClient) ListFiles(ctx context.Context, storeID string, req ListFilesRequest) (FilePage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	order := "DESC"
	if strings.EqualFold(req.Order, "asc") {
		order = "ASC"
	}

	query := `SELECT id, created_at_ms, status FROM files WHERE store_id = ?`
	args := []any{storeID}
	if req.StatusFilter != "" {
		query += ` AND status = ?`
		args = append(args, req.StatusFilter)
	}
	if req.After != "" {
		cmp := "<"
		if order == "ASC" {
			cmp = ">"
		}
		query += ` AND created_at_ms ` + cmp + ` COALESCE((SELECT created_at_ms FROM files WHERE id = ?), 0)`
		args = append(args, req.After)
	}
	query += ` ORDER BY created_at_ms ` + order + ` LIMIT ?`
	args = append(args, limit+1)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return FilePage{}, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var page FilePage
	for rows.Next() {
		var f File
		var createdMS int64
		if err := rows.Scan(&f.ID, &createdMS, &f.Status); err != nil {
			return FilePage{}, err
		}
		f.CreatedAt = createdMS / 1000
		page.Files = append(page.Files, f)
	}
	if err := rows.Err(); err != nil {
		return FilePage{}, err
	}
	if len(page.Files) > limit {
		page.Files = page.Files[:limit]
		page.HasMore = true
	}
	if n := len(page.Files); n > 0 {
		page.LastID = page.Files[n-1].ID
	}
	return page, nil
}

func (c *SQLiteClient) RetrieveFile(ctx context.Context, storeID, fileID string) (File, error) {
	var f File
	var createdMS int64
	var attrsJSON string
	err := c.db.QueryRowContext(ctx, `
		SELECT id, created_at_ms, status, attributes_json FROM files
		WHERE id = ? AND store_id = ?`, fileID, storeID).
		Scan(&f.ID, &createdMS, &f.Status, &attrsJSON)
	if err == sql.ErrNoRows {
		return File{}, fmt.Errorf("file %s not found in store %s", fileID, storeID)
	}
	if err != nil {
		return File{}, fmt.Errorf("retrieve file: %w", err)
	}
	f.CreatedAt = createdMS / 1000
	f.Attributes = Attributes{}
	_ = json.Unmarshal([]byte(attrsJSON), &f.Attributes)
	return f, nil
}

func (c *SQLiteClient) FileContent(ctx context.Context, storeID, fileID string) ([]ContentChunk, error) {
	var content string
	err := c.db.QueryRowContext(ctx,
		`SELECT content FROM files WHERE id = ? AND store_id = ?`, fileID, storeID).
		Scan(&content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file %s not found in store %s", fileID, storeID)
	}
	if err != nil {
		return nil, fmt.Errorf("file content: %w", err)
	}
	return []ContentChunk{{Type: "text", Text: content}}, nil
}

func (c *SQLiteClient) DeleteFile(ctx context.Context, storeID, fileID string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM files WHERE id = ? AND store_id = ?`, fileID, storeID)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("file %s not found in store %s", fileID, storeID)
	}
	return true, nil
}

func (c *SQLiteClient) storeExists(ctx context.Context, storeID string) error {
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM stores WHERE id = ?`, storeID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("store %s not found", storeID)
	}
	return err
}

// matchFilter evaluates a predicate tree against a document's attributes.
func matchFilter(f *Filter, attrs Attributes) bool {
	if f == nil {
		return true
	}
	switch f.Type {
	case "eq":
		v, ok := attrs[f.Key]
		return ok && equalScalar(v, f.Value)
	case "and":
		for _, sub := range f.Filters {
			if !matchFilter(sub, attrs) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalScalar(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// lexicalScore is a cosine-like overlap between token sets.
func lexicalScore(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		docSet[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(query))
	overlap := 0
	for _, t := range query {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := docSet[t]; ok {
			overlap++
		}
	}
	return float64(overlap) / math.Sqrt(float64(len(seen))*float64(len(docSet)))
}

var _ Client = (*SQLiteClient)(nil)
