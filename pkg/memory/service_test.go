package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dotsetgreg/memvault/pkg/vecstore"
)

// fakeClient counts every round trip so tests can assert which remote
// calls an operation performed.
type fakeClient struct {
	mu sync.Mutex

	stores     []vecstore.Store
	storePages map[string]vecstore.StorePage

	files     map[string]*fakeFile
	fileOrder []string
	nextFile  int

	failUpdateAttrs    bool
	rejectPrimaryKey   bool
	searchErr          error
	contentUnsupported bool
	deleteErr          error

	searchReqs []vecstore.SearchRequest
	listReqs   []vecstore.ListFilesRequest

	listStoresCalls  int
	createStoreCalls int
	uploadCalls      int
	updateAttrCalls  int
	searchCalls      int
	listFilesCalls   int
	retrieveCalls    int
	contentCalls     int
	deleteCalls      int
}

type fakeFile struct {
	id       string
	filename string
	content  string
	attrs    vecstore.Attributes
	status   string
}

func newFakeClient() *fakeClient {
	return &fakeClient{files: map[string]*fakeFile{}}
}

func (f *fakeClient) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listStoresCalls + f.createStoreCalls + f.uploadCalls + f.updateAttrCalls +
		f.searchCalls + f.listFilesCalls + f.retrieveCalls + f.contentCalls + f.deleteCalls
}

func (f *fakeClient) CreateStore(ctx context.Context, name string) (vecstore.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createStoreCalls++
	st := vecstore.Store{ID: fmt.Sprintf("vs-test-%d", f.createStoreCalls), Name: name}
	f.stores = append(f.stores, st)
	return st, nil
}

func (f *fakeClient) ListStores(ctx context.Context, limit int, after string) (vecstore.StorePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listStoresCalls++
	if f.storePages != nil {
		return f.storePages[after], nil
	}
	return vecstore.StorePage{Stores: f.stores}, nil
}

func (f *fakeClient) UploadFile(ctx context.Context, storeID, filename string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	f.nextFile++
	id := fmt.Sprintf("file-%d", f.nextFile)
	f.files[id] = &fakeFile{id: id, filename: filename, content: string(content), status: "completed"}
	f.fileOrder = append(f.fileOrder, id)
	return id, nil
}

func (f *fakeClient) UpdateFileAttributes(ctx context.Context, storeID, fileID string, attrs vecstore.Attributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateAttrCalls++
	if f.failUpdateAttrs {
		return errors.New("attribute update rejected")
	}
	file, ok := f.files[fileID]
	if !ok {
		return fmt.Errorf("file %s not found", fileID)
	}
	file.attrs = attrs
	return nil
}

func (f *fakeClient) Search(ctx context.Context, storeID string, req vecstore.SearchRequest) (vecstore.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.searchReqs = append(f.searchReqs, req)
	if f.searchErr != nil {
		return vecstore.SearchPage{}, f.searchErr
	}
	if f.rejectPrimaryKey && req.FilterKey == vecstore.FilterKeyPrimary {
		return vecstore.SearchPage{}, fmt.Errorf("search: %q: %w", req.FilterKey, vecstore.ErrUnknownParameter)
	}
	page := vecstore.SearchPage{Query: req.Query}
	for _, id := range f.fileOrder {
		file := f.files[id]
		page.Hits = append(page.Hits, vecstore.SearchHit{
			FileID:     file.id,
			Filename:   file.filename,
			Score:      0.9,
			Attributes: file.attrs,
			Content:    []vecstore.ContentChunk{{Type: "text", Text: file.content}},
		})
	}
	return page, nil
}

func (f *fakeClient) ListFiles(ctx context.Context, storeID string, req vecstore.ListFilesRequest) (vecstore.FilePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFilesCalls++
	f.listReqs = append(f.listReqs, req)
	var page vecstore.FilePage
	for i := len(f.fileOrder) - 1; i >= 0; i-- {
		if len(page.Files) >= req.Limit {
			page.HasMore = true
			break
		}
		file := f.files[f.fileOrder[i]]
		page.Files = append(page.Files, vecstore.File{ID: file.id, Status: file.status})
	}
	if n := len(page.Files); n > 0 {
		page.LastID = page.Files[n-1].ID
	}
	return page, nil
}

func (f *fakeClient) RetrieveFile(ctx context.Context, storeID, fileID string) (vecstore.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveCalls++
	file, ok := f.files[fileID]
	if !ok {
		return vecstore.File{}, fmt.Errorf("file %s not found", fileID)
	}
	return vecstore.File{ID: file.id, Status: file.status, Attributes: file.attrs}, nil
}

func (f *fakeClient) FileContent(ctx context.Context, storeID, fileID string) ([]vecstore.ContentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentCalls++
	if f.contentUnsupported {
		return nil, vecstore.ErrContentUnsupported
	}
	file, ok := f.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return []vecstore.ContentChunk{{Type: "text", Text: file.content}}, nil
}

func (f *fakeClient) DeleteFile(ctx context.Context, storeID, fileID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	if _, ok := f.files[fileID]; !ok {
		return false, fmt.Errorf("file %s not found", fileID)
	}
	delete(f.files, fileID)
	for i, id := range f.fileOrder {
		if id == fileID {
			f.fileOrder = append(f.fileOrder[:i], f.fileOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

var _ vecstore.Client = (*fakeClient)(nil)

func newTestService(client vecstore.Client) *Service {
	return NewService(client, Options{
		StoreName:       "MEMORIES_STORE",
		MaxMemoryChars:  8000,
		RedactByDefault: true,
	})
}

func TestSave_EmptyMemoryIsValidationErrorWithoutRemoteCall(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)

	_, err := svc.Save(context.Background(), SaveRequest{Memory: "   "})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := client.remoteCalls(); n != 0 {
		t.Fatalf("expected no remote calls, got %d", n)
	}
}

func TestSave_OverLengthIsValidationErrorWithoutRemoteCall(t *testing.T) {
	client := newFakeClient()
	svc := NewService(client, Options{MaxMemoryChars: 10, RedactByDefault: true})

	_, err := svc.Save(context.Background(), SaveRequest{Memory: strings.Repeat("x", 11)})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := client.remoteCalls(); n != 0 {
		t.Fatalf("expected no remote calls, got %d", n)
	}
}

func TestSave_TagsAttributesAndHash(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)
	ctx := context.Background()

	res, err := svc.Save(ctx, SaveRequest{
		Memory: "Prefers dark mode",
		UserID: "u1",
		Type:   "preference",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.FileID == "" {
		t.Fatal("expected a file id")
	}
	if len(res.SHA256) != 64 {
		t.Fatalf("sha256 length = %d, want 64", len(res.SHA256))
	}
	for _, c := range res.SHA256 {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("sha256 contains non-hex char %q", c)
		}
	}
	if got := res.Attributes["user_id"]; got != "u1" {
		t.Fatalf("user_id attribute = %v, want u1", got)
	}
	if got := res.Attributes["type"]; got != "preference" {
		t.Fatalf("type attribute = %v, want preference", got)
	}
	if got := res.Attributes["redacted"]; got != true {
		t.Fatalf("redacted attribute = %v, want true (default on)", got)
	}
	if _, ok := res.Attributes["session_id"]; ok {
		t.Fatal("session_id must be omitted when absent")
	}
	if _, ok := res.Attributes["tags_json"]; ok {
		t.Fatal("tags_json must be omitted when absent")
	}

	// Same input, same hash; one changed character, different hash.
	res2, err := svc.Save(ctx, SaveRequest{Memory: "Prefers dark mode", UserID: "u1", Type: "preference"})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if res2.SHA256 != res.SHA256 {
		t.Fatalf("hash changed for identical content: %s vs %s", res2.SHA256, res.SHA256)
	}
	res3, err := svc.Save(ctx, SaveRequest{Memory: "Prefers dark modE", UserID: "u1", Type: "preference"})
	if err != nil {
		t.Fatalf("third save: %v", err)
	}
	if res3.SHA256 == res.SHA256 {
		t.Fatal("hash did not change for different content")
	}
}

func TestSave_SessionAndTagsStored(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)

	res, err := svc.Save(context.Background(), SaveRequest{
		Memory:    "remember the milk",
		UserID:    "u1",
		SessionID: "s9",
		Tags:      []string{"errand", "groceries"},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := res.Attributes["session_id"]; got != "s9" {
		t.Fatalf("session_id = %v, want s9", got)
	}
	if got := res.Attributes["tags_json"]; got != `["errand","groceries"]` {
		t.Fatalf("tags_json = %v", got)
	}
	if got := res.Attributes["type"]; got != DefaultMemoryType {
		t.Fatalf("type = %v, want default %q", got, DefaultMemoryType)
	}
}

func TestSave_RedactionOverrideOff(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)

	off := false
	res, err := svc.Save(context.Background(), SaveRequest{
		Memory:        "token=supersecret",
		UserID:        "u1",
		RedactSecrets: &off,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := res.Attributes["redacted"]; got != false {
		t.Fatalf("redacted = %v, want false", got)
	}
	if stored := client.files[res.FileID].content; stored != "token=supersecret" {
		t.Fatalf("content was modified with redaction off: %q", stored)
	}
}

func TestSave_RedactsBeforeHashAndUpload(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)

	res, err := svc.Save(context.Background(), SaveRequest{
		Memory: "auth header was Bearer abc123 yesterday",
		UserID: "u1",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	stored := client.files[res.FileID].content
	if strings.Contains(stored, "Bearer abc123") {
		t.Fatalf("secret persisted: %q", stored)
	}
	if !strings.Contains(stored, RedactionMarker) {
		t.Fatalf("expected redaction marker in %q", stored)
	}
}

func TestSave_PartialWriteSurfacesFileID(t *testing.T) {
	client := newFakeClient()
	client.failUpdateAttrs = true
	svc := newTestService(client)

	_, err := svc.Save(context.Background(), SaveRequest{Memory: "orphan me", UserID: "u1"})
	var pw *PartialWriteError
	if !errors.As(err, &pw) {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	if pw.FileID == "" {
		t.Fatal("partial-write error must carry the uploaded file id")
	}
	if pw.SHA256 == "" {
		t.Fatal("partial-write error must carry the content hash")
	}
}

func TestSearch_EmptyQueryIsValidationErrorWithoutRemoteCall(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)

	_, err := svc.Search(context.Background(), "  ", SearchOptions{})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := client.remoteCalls(); n != 0 {
		t.Fatalf("expected no remote calls, got %d", n)
	}
}

func TestSearch_MaxResultsClamped(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)
	ctx := context.Background()

	cases := []struct{ in, want int }{
		{0, 1},
		{-5, 1},
		{3, 3},
		{9999, 50},
	}
	for _, tc := range cases {
		if _, err := svc.Search(ctx, "anything", SearchOptions{MaxResults: tc.in}); err != nil {
			t.Fatalf("search(%d): %v", tc.in, err)
		}
		got := client.searchReqs[len(client.searchReqs)-1].MaxResults
		if got != tc.want {
			t.Fatalf("max_results %d clamped to %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSearch_FallsBackOnUnknownParameterOnly(t *testing.T) {
	client := newFakeClient()
	client.rejectPrimaryKey = true
	svc := newTestService(client)
	ctx := context.Background()

	if _, err := svc.Save(ctx, SaveRequest{Memory: "Prefers dark mode", UserID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := svc.Search(ctx, "dark mode", SearchOptions{UserID: "u1", MaxResults: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(client.searchReqs) != 2 {
		t.Fatalf("expected 2 search attempts, got %d", len(client.searchReqs))
	}
	if client.searchReqs[0].FilterKey != vecstore.FilterKeyPrimary {
		t.Fatalf("first attempt used %q", client.searchReqs[0].FilterKey)
	}
	if client.searchReqs[1].FilterKey != vecstore.FilterKeyFallback {
		t.Fatalf("fallback attempt used %q", client.searchReqs[1].FilterKey)
	}
	if client.searchReqs[1].MaxResults != 3 {
		t.Fatalf("max_results on the wire = %d, want 3", client.searchReqs[1].MaxResults)
	}
	found := false
	for _, text := range res.Texts {
		if strings.Contains(text, "dark mode") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a chunk mentioning the query, got %v", res.Texts)
	}
}

func TestSearch_OtherErrorsDoNotFallBack(t *testing.T) {
	client := newFakeClient()
	client.searchErr = errors.New("rate limited")
	svc := newTestService(client)

	_, err := svc.Search(context.Background(), "anything", SearchOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if client.searchCalls != 1 {
		t.Fatalf("expected exactly one search attempt, got %d", client.searchCalls)
	}
}

func TestSearch_FullItemsKeepPerDocumentShape(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)
	ctx := context.Background()

	if _, err := svc.Save(ctx, SaveRequest{Memory: "likes green tea", UserID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := svc.Search(ctx, "tea", SearchOptions{UserID: "u1", MaxResults: 5, FullItems: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(res.Items))
	}
	item := res.Items[0]
	if item.FileID == "" || item.Filename == "" {
		t.Fatalf("item missing identity: %+v", item)
	}
	if len(item.ContentTexts) == 0 {
		t.Fatal("item missing content texts")
	}
	if res.Texts != nil {
		t.Fatal("compact texts must be empty in full-items mode")
	}
}

func TestList_ClampsLimitAndFiltersClientSide(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Save(ctx, SaveRequest{Memory: fmt.Sprintf("note %d", i), UserID: "u1"}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	res, err := svc.List(ctx, ListOptions{UserID: "u2", Limit: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := client.listReqs[0].Limit; got != 100 {
		t.Fatalf("limit on the wire = %d, want 100", got)
	}
	if res.Count != 0 || len(res.Items) != 0 {
		t.Fatalf("expected empty filtered result, got count=%d items=%d", res.Count, len(res.Items))
	}

	res, err = svc.List(ctx, ListOptions{UserID: "u1", Limit: 20})
	if err != nil {
		t.Fatalf("list u1: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("count = %d, want 3", res.Count)
	}
}

func TestGetContent_CapabilityGapIsTyped(t *testing.T) {
	client := newFakeClient()
	client.contentUnsupported = true
	svc := newTestService(client)
	ctx := context.Background()

	saved, err := svc.Save(ctx, SaveRequest{Memory: "hello", UserID: "u1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err = svc.GetContent(ctx, saved.FileID)
	var ce *CapabilityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if ce.FileID != saved.FileID {
		t.Fatalf("capability error file id = %s, want %s", ce.FileID, saved.FileID)
	}
}

func TestGetContent_ReturnsAttributesAndChunks(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)
	ctx := context.Background()

	saved, err := svc.Save(ctx, SaveRequest{Memory: "hello world", UserID: "u1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := svc.GetContent(ctx, saved.FileID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if got := attrString(res.Attributes, "user_id"); got != "u1" {
		t.Fatalf("user_id = %q, want u1", got)
	}
	if len(res.ContentTexts) != 1 || res.ContentTexts[0] != "hello world" {
		t.Fatalf("content texts = %v", res.ContentTexts)
	}
}

func TestDelete_UnknownIDSurfacesErrorValue(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)

	_, err := svc.Delete(context.Background(), "file-unknown")
	if err == nil {
		t.Fatal("expected an error for unknown file id")
	}
	if IsValidation(err) {
		t.Fatal("unknown id is a transport error, not a validation error")
	}
}

func TestSweepOrphans_FindsAndPurgesUntaggedDocuments(t *testing.T) {
	client := newFakeClient()
	svc := newTestService(client)
	ctx := context.Background()

	if _, err := svc.Save(ctx, SaveRequest{Memory: "tagged", UserID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	storeID, err := svc.resolver.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	orphanID, err := client.UploadFile(ctx, storeID, "orphan.txt", []byte("never tagged"))
	if err != nil {
		t.Fatalf("upload orphan: %v", err)
	}

	res, err := svc.SweepOrphans(ctx, 100, false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Orphans) != 1 || res.Orphans[0].FileID != orphanID {
		t.Fatalf("orphans = %+v, want just %s", res.Orphans, orphanID)
	}
	if res.Purged != 0 {
		t.Fatalf("purged = %d without --purge", res.Purged)
	}

	res, err = svc.SweepOrphans(ctx, 100, true)
	if err != nil {
		t.Fatalf("sweep purge: %v", err)
	}
	if res.Purged != 1 {
		t.Fatalf("purged = %d, want 1", res.Purged)
	}
	if _, ok := client.files[orphanID]; ok {
		t.Fatal("orphan still present after purge")
	}
}
