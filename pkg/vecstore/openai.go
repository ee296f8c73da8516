package vecstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// filePurpose is required by the files endpoint for documents that
	// will be attached to a vector store.
	filePurpose = "assistants"

	ingestPollInterval = 500 * time.Millisecond
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vector store api error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrUnknownParameter) distinguish a
// signature-shape rejection from every other 4xx/5xx.
func (e *APIError) Unwrap() error {
	if e.StatusCode != http.StatusBadRequest {
		return nil
	}
	msg := strings.ToLower(e.Message)
	if strings.Contains(msg, "unknown parameter") ||
		strings.Contains(msg, "unrecognized request argument") ||
		strings.Contains(msg, "unexpected keyword") {
		return ErrUnknownParameter
	}
	return nil
}

// OpenAIClient talks to the OpenAI vector stores API over plain HTTP.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client

	// contentEndpoint gates the file-content capability: older
	// deployments of the API surface do not expose it.
	contentEndpoint bool
}

// NewOpenAIClient creates a client with defaults. The API key is taken
// from OPENAI_API_KEY when not overridden.
func NewOpenAIClient() *OpenAIClient {
	return &OpenAIClient{
		apiKey:          os.Getenv("OPENAI_API_KEY"),
		baseURL:         defaultBaseURL,
		client:          &http.Client{},
		contentEndpoint: true,
	}
}

// WithAPIKey sets the API key.
func (c *OpenAIClient) WithAPIKey(key string) *OpenAIClient {
	c.apiKey = key
	return c
}

// WithBaseURL sets the API base URL.
func (c *OpenAIClient) WithBaseURL(base string) *OpenAIClient {
	if base != "" {
		c.baseURL = strings.TrimRight(base, "/")
	}
	return c
}

// WithHTTPClient sets a custom HTTP client.
func (c *OpenAIClient) WithHTTPClient(client *http.Client) *OpenAIClient {
	c.client = client
	return c
}

// WithContentEndpoint toggles the file-content capability.
func (c *OpenAIClient) WithContentEndpoint(enabled bool) *OpenAIClient {
	c.contentEndpoint = enabled
	return c
}

func (c *OpenAIClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return parseAPIError(res.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *OpenAIClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func parseAPIError(status int, body []byte) error {
	var wrapper struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &wrapper) == nil && wrapper.Error.Message != "" {
		apiErr.Type = wrapper.Error.Type
		apiErr.Code = wrapper.Error.Code
		apiErr.Message = wrapper.Error.Message
	}
	return apiErr
}

func (c *OpenAIClient) CreateStore(ctx context.Context, name string) (Store, error) {
	var out Store
	err := c.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]any{"name": name}, &out)
	return out, err
}

func (c *OpenAIClient) ListStores(ctx context.Context, limit int, after string) (StorePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		q.Set("after", after)
	}
	path := "/vector_stores"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Data    []Store `json:"data"`
		HasMore bool    `json:"has_more"`
		LastID  string  `json:"last_id"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return StorePage{}, err
	}
	return StorePage{Stores: out.Data, HasMore: out.HasMore, LastID: out.LastID}, nil
}

// UploadFile uploads content as a file (in-memory, never touching disk) and
// attaches it to the store, polling until ingestion leaves in_progress.
func (c *OpenAIClient) UploadFile(ctx context.Context, storeID, filename string, content []byte) (string, error) {
	fileID, err := c.createFile(ctx, filename, content)
	if err != nil {
		return "", err
	}

	var attached struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err = c.doJSON(ctx, http.MethodPost, "/vector_stores/"+storeID+"/files",
		map[string]any{"file_id": fileID}, &attached)
	if err != nil {
		return "", err
	}

	status := attached.Status
	for status == "in_progress" {
		select {
		case <-ctx.Done():
			return attached.ID, ctx.Err()
		case <-time.After(ingestPollInterval):
		}
		f, err := c.RetrieveFile(ctx, storeID, attached.ID)
		if err != nil {
			return attached.ID, err
		}
		status = f.Status
	}
	if status != "completed" {
		return attached.ID, fmt.Errorf("file %s ingestion ended with status %q", attached.ID, status)
	}
	return attached.ID, nil
}

func (c *OpenAIClient) createFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", filePurpose); err != nil {
		return "", fmt.Errorf("write multipart field: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write multipart file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/files", &buf, w.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *OpenAIClient) UpdateFileAttributes(ctx context.Context, storeID, fileID string, attrs Attributes) error {
	return c.doJSON(ctx, http.MethodPost, "/vector_stores/"+storeID+"/files/"+fileID,
		map[string]any{"attributes": attrs}, nil)
}

func (c *OpenAIClient) Search(ctx context.Context, storeID string, req SearchRequest) (SearchPage, error) {
	payload := map[string]any{
		"query":           req.Query,
		"max_num_results": req.MaxResults,
		"rewrite_query":   req.RewriteQuery,
	}
	if req.Filter != nil {
		key := req.FilterKey
		if key == "" {
			key = FilterKeyPrimary
		}
		payload[key] = req.Filter
	}

	var out struct {
		SearchQuery string `json:"search_query"`
		Data        []struct {
			FileID     string         `json:"file_id"`
			Filename   string         `json:"filename"`
			Score      float64        `json:"score"`
			Attributes Attributes     `json:"attributes"`
			Content    []ContentChunk `json:"content"`
		} `json:"data"`
		HasMore bool `json:"has_more"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/vector_stores/"+storeID+"/search", payload, &out); err != nil {
		return SearchPage{}, err
	}

	page := SearchPage{Query: out.SearchQuery, HasMore: out.HasMore}
	for _, d := range out.Data {
		page.Hits = append(page.Hits, SearchHit{
			FileID:     d.FileID,
			Filename:   d.Filename,
			Score:      d.Score,
			Attributes: d.Attributes,
			Content:    d.Content,
		})
	}
	return page, nil
}

func (c *OpenAIClient) ListFiles(ctx context.Context, storeID string, req ListFilesRequest) (FilePage, error) {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Order != "" {
		q.Set("order", req.Order)
	}
	if req.StatusFilter != "" {
		q.Set("filter", req.StatusFilter)
	}
	if req.After != "" {
		q.Set("after", req.After)
	}
	path := "/vector_stores/" + storeID + "/files"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Data []struct {
			ID        string `json:"id"`
			CreatedAt int64  `json:"created_at"`
			Status    string `json:"status"`
		} `json:"data"`
		HasMore bool   `json:"has_more"`
		LastID  string `json:"last_id"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return FilePage{}, err
	}

	page := FilePage{HasMore: out.HasMore, LastID: out.LastID}
	for _, d := range out.Data {
		page.Files = append(page.Files, File{ID: d.ID, CreatedAt: d.CreatedAt, Status: d.Status})
	}
	return page, nil
}

func (c *OpenAIClient) RetrieveFile(ctx context.Context, storeID, fileID string) (File, error) {
	var out struct {
		ID         string     `json:"id"`
		CreatedAt  int64      `json:"created_at"`
		Status     string     `json:"status"`
		Attributes Attributes `json:"attributes"`
	}
	err := c.do(ctx, http.MethodGet, "/vector_stores/"+storeID+"/files/"+fileID, nil, "", &out)
	if err != nil {
		return File{}, err
	}
	return File{ID: out.ID, CreatedAt: out.CreatedAt, Status: out.Status, Attributes: out.Attributes}, nil
}

func (c *OpenAIClient) FileContent(ctx context.Context, storeID, fileID string) ([]ContentChunk, error) {
	if !c.contentEndpoint {
		return nil, ErrContentUnsupported
	}
	var out struct {
		Content []ContentChunk `json:"content"`
	}
	err := c.do(ctx, http.MethodGet, "/vector_stores/"+storeID+"/files/"+fileID+"/content", nil, "", &out)
	if err != nil {
		return nil, err
	}
	return out.Content, nil
}

func (c *OpenAIClient) DeleteFile(ctx context.Context, storeID, fileID string) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	err := c.do(ctx, http.MethodDelete, "/vector_stores/"+storeID+"/files/"+fileID, nil, "", &out)
	if err != nil {
		return false, err
	}
	return out.Deleted, nil
}

var _ Client = (*OpenAIClient)(nil)
