package memory

import "github.com/dotsetgreg/memvault/pkg/vecstore"

// SaveRequest carries one memory to persist.
type SaveRequest struct {
	Memory    string
	UserID    string
	SessionID string
	Type      string
	Tags      []string
	// RedactSecrets overrides the configured default when non-nil.
	RedactSecrets *bool
}

// SaveResult reports a fully persisted memory, including the exact
// attribute map that was stored (after truncation).
type SaveResult struct {
	VectorStoreID string              `json:"vector_store_id"`
	FileID        string              `json:"file_id"`
	SHA256        string              `json:"sha256"`
	Attributes    vecstore.Attributes `json:"attributes"`
}

// SearchOptions constrains and shapes one similarity search.
type SearchOptions struct {
	UserID    string
	SessionID string
	Type      string
	Tags      []string
	// MaxResults is clamped into [1,50].
	MaxResults   int
	RewriteQuery bool
	// FullItems keeps one entry per matched document instead of
	// flattening text chunks.
	FullItems bool
}

// SearchItem is one matched document in full-items mode.
type SearchItem struct {
	FileID       string              `json:"file_id"`
	Filename     string              `json:"filename"`
	Score        float64             `json:"score"`
	Attributes   vecstore.Attributes `json:"attributes"`
	ContentTexts []string            `json:"content_texts"`
}

// SearchResult is the shaped outcome of one search. Exactly one of Texts
// (compact mode) or Items (full mode) is populated.
type SearchResult struct {
	VectorStoreID string       `json:"vector_store_id"`
	SearchQuery   string       `json:"search_query"`
	Texts         []string     `json:"texts,omitempty"`
	Items         []SearchItem `json:"items,omitempty"`
	HasMore       bool         `json:"has_more"`
}

// ListOptions constrains one catalog listing.
type ListOptions struct {
	// UserID filters client-side after per-item attribute retrieval.
	UserID string
	// Limit is clamped into [1,100] and applies to the raw remote page.
	Limit int
	// StatusFilter restricts server-side by ingestion status.
	StatusFilter string
}

// ListItem is one cataloged memory.
type ListItem struct {
	FileID     string              `json:"file_id"`
	CreatedAt  int64               `json:"created_at"`
	Status     string              `json:"status"`
	Attributes vecstore.Attributes `json:"attributes"`
}

// ListResult reports a catalog page. Count reflects the post-filter item
// count while HasMore/LastID describe the unfiltered remote page; callers
// must not assume the two agree.
type ListResult struct {
	VectorStoreID string     `json:"vector_store_id"`
	Count         int        `json:"count"`
	Items         []ListItem `json:"items"`
	HasMore       bool       `json:"has_more"`
	LastID        string     `json:"last_id,omitempty"`
}

// ContentResult carries one memory's attributes and parsed text chunks.
type ContentResult struct {
	VectorStoreID string              `json:"vector_store_id"`
	FileID        string              `json:"file_id"`
	Attributes    vecstore.Attributes `json:"attributes"`
	ContentTexts  []string            `json:"content_texts"`
}

// DeleteResult confirms a detachment from the store. The global content
// object may persist remotely; deletion is not full erasure.
type DeleteResult struct {
	VectorStoreID string `json:"vector_store_id"`
	FileID        string `json:"file_id"`
	Deleted       bool   `json:"deleted"`
}

// HealthInfo is a cheap liveness snapshot; it performs no remote calls.
type HealthInfo struct {
	StoreName     string `json:"vector_store_name"`
	StoreIDCached bool   `json:"vector_store_id_cached"`
	TimeUTC       string `json:"time_utc"`
}

// OrphanItem is a document that was uploaded but never tagged.
type OrphanItem struct {
	FileID    string `json:"file_id"`
	CreatedAt int64  `json:"created_at"`
	Status    string `json:"status"`
}

// SweepResult reports one orphan reconciliation pass over a single
// listing page.
type SweepResult struct {
	VectorStoreID string       `json:"vector_store_id"`
	Scanned       int          `json:"scanned"`
	Orphans       []OrphanItem `json:"orphans"`
	Purged        int          `json:"purged"`
	HasMore       bool         `json:"has_more"`
}
