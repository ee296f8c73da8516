// Package memory is the memvault core: it persists short text memories as
// attribute-tagged documents in a remote vector store, retrieves them by
// semantic similarity with equality filters, and catalogs, fetches and
// deletes them. All remote access goes through the narrow vecstore.Client
// interface; every failure surfaces as a typed error, never a panic.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dotsetgreg/memvault/pkg/logger"
	"github.com/dotsetgreg/memvault/pkg/vecstore"
)

// Remote attribute limits: at most 16 pairs, keys up to 64 chars, string
// values up to 512 chars. Short identity-like values are kept within the
// key limit so they stay filterable verbatim.
const (
	attrShortMax = 64
	attrValueMax = 512

	maxSearchResults = 50
	maxListLimit     = 100

	DefaultUserID     = "default"
	DefaultMemoryType = "note"
)

// Options configures a Service. Values come from config, read once at
// process start.
type Options struct {
	StoreName string
	// StoreID skips store resolution when already known.
	StoreID         string
	MaxMemoryChars  int
	RedactByDefault bool
}

// Service is the facade over all memory operations. Operations are
// stateless and independently retryable; the only shared mutable state is
// the resolver's cached store id.
type Service struct {
	opts     Options
	client   vecstore.Client
	resolver *StoreResolver
}

func NewService(client vecstore.Client, opts Options) *Service {
	if opts.StoreName == "" {
		opts.StoreName = "MEMORIES_STORE"
	}
	if opts.MaxMemoryChars <= 0 {
		opts.MaxMemoryChars = 8000
	}
	return &Service{
		opts:     opts,
		client:   client,
		resolver: NewStoreResolver(client, opts.StoreName, opts.StoreID),
	}
}

// Health reports liveness without touching the remote service.
func (s *Service) Health() HealthInfo {
	return HealthInfo{
		StoreName:     s.opts.StoreName,
		StoreIDCached: s.resolver.Cached(),
		TimeUTC:       time.Now().UTC().Format(time.RFC3339),
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Save validates, optionally redacts, hashes and persists one memory as a
// document plus attributes. The write is two-phase (upload, then attribute
// update) with no remote transaction: a phase-2 failure returns a
// PartialWriteError carrying the uploaded file id so the orphan can be
// reconciled externally.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if strings.TrimSpace(req.Memory) == "" {
		return nil, &ValidationError{Field: "memory", Reason: "must be a non-empty string"}
	}
	if n := utf8.RuneCountInString(req.Memory); n > s.opts.MaxMemoryChars {
		return nil, &ValidationError{
			Field:  "memory",
			Reason: fmt.Sprintf("length %d exceeds the %d character limit", n, s.opts.MaxMemoryChars),
		}
	}

	userID := req.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	memoryType := req.Type
	if memoryType == "" {
		memoryType = DefaultMemoryType
	}

	doRedact := s.opts.RedactByDefault
	if req.RedactSecrets != nil {
		doRedact = *req.RedactSecrets
	}
	cleaned := req.Memory
	if doRedact {
		cleaned = RedactSecrets(req.Memory)
	}

	sum := sha256.Sum256([]byte(cleaned))
	memHash := hex.EncodeToString(sum[:])

	storeID, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	// The filename only aids debugging; identity is the file id.
	safeUser := unsafeFilenameChars.ReplaceAllString(userID, "_")
	if len(safeUser) > 32 {
		safeUser = safeUser[:32]
	}
	filename := fmt.Sprintf("memory_%s_%d.txt", safeUser, time.Now().Unix())

	fileID, err := s.client.UploadFile(ctx, storeID, filename, []byte(cleaned))
	if err != nil {
		return nil, fmt.Errorf("upload memory: %w", err)
	}

	attrs := vecstore.Attributes{
		"user_id":       truncateAttr(userID),
		"type":          truncateAttr(memoryType),
		"timestamp_utc": truncateAttr(time.Now().UTC().Format(time.RFC3339)),
		"sha256":        truncateAttr(memHash),
		"redacted":      doRedact,
	}
	if req.SessionID != "" {
		attrs["session_id"] = truncateAttr(req.SessionID)
	}
	if len(req.Tags) > 0 {
		attrs["tags_json"] = truncateValue(canonicalTags(req.Tags))
	}

	if err := s.client.UpdateFileAttributes(ctx, storeID, fileID, attrs); err != nil {
		logger.ErrorCF("memory", "Attribute update failed after upload",
			map[string]interface{}{"file_id": fileID, "sha256": memHash, "error": err.Error()})
		return nil, &PartialWriteError{
			VectorStoreID: storeID,
			FileID:        fileID,
			SHA256:        memHash,
			Err:           err,
		}
	}

	logger.InfoCF("memory", "Memory saved",
		map[string]interface{}{"file_id": fileID, "user_id": userID, "type": memoryType})

	return &SaveResult{
		VectorStoreID: storeID,
		FileID:        fileID,
		SHA256:        memHash,
		Attributes:    attrs,
	}, nil
}

// Search runs a similarity query with optional attribute filters. The
// filter is sent under the primary wire name first; only a signature-shape
// rejection (unknown parameter) falls back to the alternate name, every
// other failure propagates as-is.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Reason: "must be a non-empty string"}
	}

	maxResults := clamp(opts.MaxResults, 1, maxSearchResults)

	storeID, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	filter := BuildAttributeFilter(opts.UserID, opts.SessionID, opts.Type, opts.Tags)

	req := vecstore.SearchRequest{
		Query:        query,
		MaxResults:   maxResults,
		RewriteQuery: opts.RewriteQuery,
		Filter:       filter,
		FilterKey:    vecstore.FilterKeyPrimary,
	}
	page, err := s.client.Search(ctx, storeID, req)
	if err != nil && errors.Is(err, vecstore.ErrUnknownParameter) {
		logger.WarnC("memory", "Primary filter parameter rejected, retrying with fallback name")
		req.FilterKey = vecstore.FilterKeyFallback
		page, err = s.client.Search(ctx, storeID, req)
	}
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}

	effectiveQuery := page.Query
	if effectiveQuery == "" {
		effectiveQuery = query
	}

	result := &SearchResult{
		VectorStoreID: storeID,
		SearchQuery:   effectiveQuery,
		HasMore:       page.HasMore,
	}

	if opts.FullItems {
		result.Items = make([]SearchItem, 0, len(page.Hits))
		for _, hit := range page.Hits {
			result.Items = append(result.Items, SearchItem{
				FileID:       hit.FileID,
				Filename:     hit.Filename,
				Score:        hit.Score,
				Attributes:   hit.Attributes,
				ContentTexts: textChunks(hit.Content),
			})
		}
		return result, nil
	}

	result.Texts = []string{}
	for _, hit := range page.Hits {
		result.Texts = append(result.Texts, textChunks(hit.Content)...)
	}
	return result, nil
}

// List pages the store's document catalog. The listing endpoint does not
// return attributes, so each document is re-fetched individually; a
// user_id predicate is then applied client-side. Count is post-filter
// while HasMore/LastID stay tied to the raw page.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	storeID, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	limit := clamp(opts.Limit, 1, maxListLimit)

	page, err := s.client.ListFiles(ctx, storeID, vecstore.ListFilesRequest{
		Limit:        limit,
		StatusFilter: opts.StatusFilter,
		Order:        "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("list vector store files: %w", err)
	}

	items := []ListItem{}
	for _, f := range page.Files {
		detail, err := s.client.RetrieveFile(ctx, storeID, f.ID)
		if err != nil {
			return nil, fmt.Errorf("retrieve file %s: %w", f.ID, err)
		}
		attrs := detail.Attributes
		if attrs == nil {
			attrs = vecstore.Attributes{}
		}
		if opts.UserID != "" && attrString(attrs, "user_id") != opts.UserID {
			continue
		}
		items = append(items, ListItem{
			FileID:     detail.ID,
			CreatedAt:  detail.CreatedAt,
			Status:     detail.Status,
			Attributes: attrs,
		})
	}

	return &ListResult{
		VectorStoreID: storeID,
		Count:         len(items),
		Items:         items,
		HasMore:       page.HasMore,
		LastID:        page.LastID,
	}, nil
}

// GetContent fetches one memory's attributes and parsed text chunks. When
// the deployed client surface lacks content retrieval the gap is reported
// as a CapabilityError rather than a transport failure.
func (s *Service) GetContent(ctx context.Context, fileID string) (*ContentResult, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, &ValidationError{Field: "file_id", Reason: "must be a non-empty string"}
	}

	storeID, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	detail, err := s.client.RetrieveFile(ctx, storeID, fileID)
	if err != nil {
		return nil, fmt.Errorf("retrieve file %s: %w", fileID, err)
	}
	attrs := detail.Attributes
	if attrs == nil {
		attrs = vecstore.Attributes{}
	}

	chunks, err := s.client.FileContent(ctx, storeID, fileID)
	if err != nil {
		if errors.Is(err, vecstore.ErrContentUnsupported) {
			return nil, &CapabilityError{
				Capability: "vector store file content retrieval",
				FileID:     fileID,
				Err:        err,
			}
		}
		return nil, fmt.Errorf("fetch content for %s: %w", fileID, err)
	}

	return &ContentResult{
		VectorStoreID: storeID,
		FileID:        fileID,
		Attributes:    attrs,
		ContentTexts:  textChunks(chunks),
	}, nil
}

// Delete detaches one memory from the store. Any global content object the
// service retains outside the store is not purged.
func (s *Service) Delete(ctx context.Context, fileID string) (*DeleteResult, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, &ValidationError{Field: "file_id", Reason: "must be a non-empty string"}
	}

	storeID, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	deleted, err := s.client.DeleteFile(ctx, storeID, fileID)
	if err != nil {
		return nil, fmt.Errorf("delete memory %s: %w", fileID, err)
	}

	return &DeleteResult{
		VectorStoreID: storeID,
		FileID:        fileID,
		Deleted:       deleted,
	}, nil
}

// SweepOrphans scans one listing page for documents that were uploaded but
// never tagged with attributes (the partial-write gap in Save) and
// optionally deletes them.
func (s *Service) SweepOrphans(ctx context.Context, limit int, purge bool) (*SweepResult, error) {
	storeID, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	limit = clamp(limit, 1, maxListLimit)

	page, err := s.client.ListFiles(ctx, storeID, vecstore.ListFilesRequest{
		Limit:        limit,
		StatusFilter: "completed",
		Order:        "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("list vector store files: %w", err)
	}

	result := &SweepResult{
		VectorStoreID: storeID,
		Scanned:       len(page.Files),
		Orphans:       []OrphanItem{},
		HasMore:       page.HasMore,
	}
	for _, f := range page.Files {
		detail, err := s.client.RetrieveFile(ctx, storeID, f.ID)
		if err != nil {
			return nil, fmt.Errorf("retrieve file %s: %w", f.ID, err)
		}
		if len(detail.Attributes) > 0 {
			continue
		}
		result.Orphans = append(result.Orphans, OrphanItem{
			FileID:    detail.ID,
			CreatedAt: detail.CreatedAt,
			Status:    detail.Status,
		})
		if purge {
			if _, err := s.client.DeleteFile(ctx, storeID, detail.ID); err != nil {
				return result, fmt.Errorf("purge orphan %s: %w", detail.ID, err)
			}
			result.Purged++
			logger.InfoCF("memory", "Purged orphan document",
				map[string]interface{}{"file_id": detail.ID})
		}
	}
	return result, nil
}

func textChunks(chunks []vecstore.ContentChunk) []string {
	texts := []string{}
	for _, c := range chunks {
		if c.Type == "text" && c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return texts
}

func attrString(attrs vecstore.Attributes, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}

func truncateAttr(v string) string {
	return truncateRunes(v, attrShortMax)
}

func truncateValue(v string) string {
	return truncateRunes(v, attrValueMax)
}

func truncateRunes(v string, max int) string {
	if utf8.RuneCountInString(v) <= max {
		return v
	}
	runes := []rune(v)
	return string(runes[:max])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
