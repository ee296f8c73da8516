// Package vecstore is the narrow client surface for the remote
// semantic-document-collection service that backs memvault. Documents are
// uploaded into a named store, tagged with scalar attributes, and queried
// by similarity with equality filters over those attributes.
package vecstore

import (
	"context"
	"errors"
)

// Wire names for the search filter parameter. The service has shipped two
// incompatible names for the same concept across versions; callers try the
// primary first and fall back only on an unknown-parameter failure.
const (
	FilterKeyPrimary  = "filters"
	FilterKeyFallback = "attribute_filter"
)

var (
	// ErrUnknownParameter marks a request rejected because a parameter
	// name is not recognized by the deployed service version. It is the
	// only error that should trigger a filter-key fallback.
	ErrUnknownParameter = errors.New("unknown request parameter")

	// ErrContentUnsupported marks a deployment whose client surface does
	// not expose document content retrieval.
	ErrContentUnsupported = errors.New("file content retrieval not supported by this client")
)

// Attributes is a small scalar metadata map attached to a document.
// The service accepts at most 16 pairs, keys up to 64 chars and string
// values up to 512 chars; values are strings, numbers or bools.
type Attributes map[string]any

// Filter is a predicate tree: an "eq" leaf or an "and" conjunction.
type Filter struct {
	Type    string    `json:"type"`
	Key     string    `json:"key,omitempty"`
	Value   any       `json:"value,omitempty"`
	Filters []*Filter `json:"filters,omitempty"`
}

// Eq builds an equality leaf.
func Eq(key string, value any) *Filter {
	return &Filter{Type: "eq", Key: key, Value: value}
}

// And builds a conjunction node.
func And(filters ...*Filter) *Filter {
	return &Filter{Type: "and", Filters: filters}
}

// Store is a named document collection.
type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StorePage is one page of a store listing.
type StorePage struct {
	Stores  []Store
	HasMore bool
	LastID  string
}

// File is one document inside a store.
type File struct {
	ID         string
	CreatedAt  int64
	Status     string
	Attributes Attributes
}

// FilePage is one page of a file listing. HasMore and LastID describe the
// raw remote page, before any client-side filtering a caller may apply.
type FilePage struct {
	Files   []File
	HasMore bool
	LastID  string
}

// ContentChunk is one parsed piece of document content.
type ContentChunk struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SearchHit is one ranked document returned by a similarity search.
type SearchHit struct {
	FileID     string
	Filename   string
	Score      float64
	Attributes Attributes
	Content    []ContentChunk
}

// SearchPage is the shaped result of one similarity search.
type SearchPage struct {
	// Query is the effective query, possibly rewritten by the service.
	Query   string
	Hits    []SearchHit
	HasMore bool
}

// SearchRequest parameterizes one similarity search.
type SearchRequest struct {
	Query        string
	MaxResults   int
	RewriteQuery bool
	Filter       *Filter
	// FilterKey is the wire name the filter is sent under; empty means
	// FilterKeyPrimary.
	FilterKey string
}

// ListFilesRequest parameterizes one file-listing page.
type ListFilesRequest struct {
	Limit int
	// StatusFilter restricts by ingestion status (in_progress, completed,
	// failed, cancelled); empty means unfiltered.
	StatusFilter string
	Order        string
	After        string
}

// Client is the full capability set memvault consumes from the service.
// Implementations perform synchronous round trips and define no timeouts
// of their own; cancellation comes in through ctx.
type Client interface {
	CreateStore(ctx context.Context, name string) (Store, error)
	ListStores(ctx context.Context, limit int, after string) (StorePage, error)

	UploadFile(ctx context.Context, storeID, filename string, content []byte) (string, error)
	UpdateFileAttributes(ctx context.Context, storeID, fileID string, attrs Attributes) error

	Search(ctx context.Context, storeID string, req SearchRequest) (SearchPage, error)

	ListFiles(ctx context.Context, storeID string, req ListFilesRequest) (FilePage, error)
	RetrieveFile(ctx context.Context, storeID, fileID string) (File, error)
	FileContent(ctx context.Context, storeID, fileID string) ([]ContentChunk, error)
	DeleteFile(ctx context.Context, storeID, fileID string) (bool, error)
}
