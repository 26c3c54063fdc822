package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gallery-go/internal/gallery"
)

// DefaultTimeout bounds JSON requests. Downloads, exports and analysis runs
// are bounded only by their context.
const DefaultTimeout = 30 * time.Second

// maxErrorBody is how much of a failed response is kept for the error message.
const maxErrorBody = 4 << 10

// RemoteStore talks to the gallery admin REST API, e.g.
// http://localhost:8000/api/v1/admin.
type RemoteStore struct {
	baseURL string
	api     *http.Client
	stream  *http.Client
	logger  gallery.Logger
}

var (
	_ gallery.ImageStore      = (*RemoteStore)(nil)
	_ gallery.PromptStore     = (*RemoteStore)(nil)
	_ gallery.RemoteAnalyzer  = (*RemoteStore)(nil)
	_ gallery.MigrationSource = (*RemoteStore)(nil)
)

// NewRemoteStore creates a client for baseURL. timeout <= 0 uses DefaultTimeout.
func NewRemoteStore(baseURL string, timeout time.Duration, logger gallery.Logger) *RemoteStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewRemoteStoreWithClient(baseURL, &http.Client{Timeout: timeout}, logger)
}

// NewRemoteStoreWithClient uses client for JSON requests and a copy of it
// without a timeout for streamed bodies.
func NewRemoteStoreWithClient(baseURL string, client *http.Client, logger gallery.Logger) *RemoteStore {
	if logger == nil {
		logger = gallery.NewNopLogger()
	}
	stream := *client
	stream.Timeout = 0
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     client,
		stream:  &stream,
		logger:  logger,
	}
}

// envelope is the {success, message, data} wrapper of most action endpoints.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *RemoteStore) endpoint(query url.Values, segments ...string) (string, error) {
	u, err := url.JoinPath(s.baseURL, segments...)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

// do sends the request and returns the response when the status is 2xx.
// Any other outcome wraps gallery.ErrNetwork, or gallery.ErrNotFound for 404.
func (s *RemoteStore) do(ctx context.Context, client *http.Client, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	s.logger.Debug("remote request", "method", method, "url", endpoint)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", gallery.ErrNetwork, method, endpoint, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	detail := errorDetail(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", gallery.ErrNotFound, detail)
	}
	s.logger.Warn("remote request failed", "method", method, "url", endpoint, "status", resp.StatusCode, "detail", detail)
	return nil, fmt.Errorf("%w: %s %s returned %d: %s", gallery.ErrNetwork, method, endpoint, resp.StatusCode, detail)
}

// errorDetail extracts the FastAPI "detail" field, or returns the raw body.
func errorDetail(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var parsed struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != nil {
		if s, ok := parsed.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(parsed.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}

// call sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (s *RemoteStore) call(ctx context.Context, method string, query url.Values, in, out any, segments ...string) error {
	return s.callWith(ctx, s.api, method, query, in, out, segments...)
}

func (s *RemoteStore) callWith(ctx context.Context, client *http.Client, method string, query url.Values, in, out any, segments ...string) error {
	endpoint, err := s.endpoint(query, segments...)
	if err != nil {
		return err
	}

	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := s.do(ctx, client, method, endpoint, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", gallery.ErrNetwork, endpoint, err)
	}
	return nil
}

// callData is call for endpoints answering with an envelope; data is
// decoded into out when present.
func (s *RemoteStore) callData(ctx context.Context, client *http.Client, method string, in, out any, segments ...string) (*envelope, error) {
	var env envelope
	if err := s.callWith(ctx, client, method, nil, in, &env, segments...); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: %s", gallery.ErrNetwork, strings.TrimSpace("request rejected: "+env.Message))
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%w: decoding response data: %v", gallery.ErrNetwork, err)
		}
	}
	return &env, nil
}

func (s *RemoteStore) open(ctx context.Context, method string, in any, segments ...string) (io.ReadCloser, error) {
	endpoint, err := s.endpoint(nil, segments...)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	resp, err := s.do(ctx, s.stream, method, endpoint, contentType, body)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// imageQueryValues encodes q the way the list endpoint expects it.
func imageQueryValues(q gallery.ImageQuery) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("page_size", strconv.Itoa(q.PageSize))
	v.Set("sort_by", q.SortBy)
	v.Set("sort_order", q.SortOrder)

	f := q.Filter
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.Model != "" {
		v.Set("model", f.Model)
	}
	if f.AspectRatio != "" {
		v.Set("aspect_ratio", f.AspectRatio)
	}
	if len(f.Tags) > 0 {
		v.Set("tags", strings.Join(f.Tags, ","))
	}
	if f.StartDate != nil {
		v.Set("start_date", strconv.FormatInt(f.StartDate.UnixMilli(), 10))
	}
	if f.EndDate != nil {
		v.Set("end_date", strconv.FormatInt(f.EndDate.UnixMilli(), 10))
	}
	if f.MinQualityScore != nil {
		v.Set("min_quality_score", strconv.FormatFloat(*f.MinQualityScore, 'f', -1, 64))
	}
	if f.MaxQualityScore != nil {
		v.Set("max_quality_score", strconv.FormatFloat(*f.MaxQualityScore, 'f', -1, 64))
	}
	if f.HasQualityIssues != nil {
		v.Set("has_quality_issues", strconv.FormatBool(*f.HasQualityIssues))
	}
	if f.Favorite != nil {
		v.Set("favorite", strconv.FormatBool(*f.Favorite))
	}
	return v
}

// ListImages fills in page fields the server leaves out, so callers can
// page until Page reaches TotalPages.
func (s *RemoteStore) ListImages(ctx context.Context, q gallery.ImageQuery) (*gallery.ImagePage, error) {
	q = q.Normalized()
	var page gallery.ImagePage
	if err := s.call(ctx, http.MethodGet, imageQueryValues(q), nil, &page, "gallery", "images"); err != nil {
		return nil, err
	}
	if page.Images == nil {
		page.Images = []gallery.ImageRecord{}
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.PageSize == 0 {
		page.PageSize = q.PageSize
	}
	if page.TotalPages == 0 {
		page.TotalPages = gallery.TotalPages(page.Total, page.PageSize)
	}
	return &page, nil
}

func (s *RemoteStore) GetImage(ctx context.Context, id string) (*gallery.ImageRecord, error) {
	var rec gallery.ImageRecord
	if err := s.call(ctx, http.MethodGet, nil, nil, &rec, "gallery", "images", id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RemoteStore) DeleteImages(ctx context.Context, ids []string) (*gallery.DeleteResult, error) {
	res := &gallery.DeleteResult{Total: len(ids)}
	body := map[string][]string{"image_ids": ids}
	if _, err := s.callData(ctx, s.api, http.MethodPost, body, res, "gallery", "images", "delete"); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RemoteStore) UpdateTags(ctx context.Context, id string, tags []string) error {
	body := map[string][]string{"tags": gallery.CleanTags(tags)}
	_, err := s.callData(ctx, s.api, http.MethodPost, body, nil, "gallery", "images", id, "tags")
	return err
}

// SetFavorite is not offered by the server API.
func (s *RemoteStore) SetFavorite(context.Context, string, bool) error {
	return fmt.Errorf("%w: favorites are stored only in the local workspace", gallery.ErrUnsupportedOperation)
}

// SaveQuality is not offered by the server API; scores are saved by the
// server's own analysis run.
func (s *RemoteStore) SaveQuality(context.Context, string, gallery.QualityUpdate) error {
	return fmt.Errorf("%w: the server stores its own quality scores", gallery.ErrUnsupportedOperation)
}

func (s *RemoteStore) OpenImage(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.OpenImageFile(ctx, id)
}

// OpenImageFile downloads the original file of an image.
func (s *RemoteStore) OpenImageFile(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.open(ctx, http.MethodGet, nil, "gallery", "images", id, "file")
}

func (s *RemoteStore) ExportImages(ctx context.Context, ids []string, w io.Writer) error {
	rc, err := s.open(ctx, http.MethodPost, map[string][]string{"image_ids": ids}, "gallery", "images", "export")
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("%w: downloading archive: %v", gallery.ErrNetwork, err)
	}
	return nil
}

// UploadImage posts the file as multipart form data. Tags are sent comma
// separated; without tags the server's default applies.
func (s *RemoteStore) UploadImage(ctx context.Context, filename string, r io.Reader, tags []string) (*gallery.ImageRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	mw.WriteField("filename", filename)
	tags = gallery.CleanTags(tags)
	if len(tags) == 0 {
		tags = []string{UploadTag}
	}
	mw.WriteField("tags", strings.Join(tags, ","))
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	endpoint, err := s.endpoint(nil, "gallery", "upload")
	if err != nil {
		return nil, err
	}
	resp, err := s.do(ctx, s.stream, http.MethodPost, endpoint, mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decoding upload response: %v", gallery.ErrNetwork, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: upload rejected: %s", gallery.ErrNetwork, env.Message)
	}
	rec := &gallery.ImageRecord{Filename: filename, Tags: tags}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		json.Unmarshal(env.Data, rec)
	}
	return rec, nil
}

func (s *RemoteStore) Scan(ctx context.Context) (*gallery.ScanResult, error) {
	res := &gallery.ScanResult{}
	if _, err := s.callData(ctx, s.stream, http.MethodPost, nil, res, "gallery", "scan"); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RemoteStore) CheckMissing(ctx context.Context) (*gallery.MissingReport, error) {
	report := &gallery.MissingReport{MissingImages: []gallery.ImageRecord{}}
	if _, err := s.callData(ctx, s.api, http.MethodGet, nil, report, "gallery", "check-missing"); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *RemoteStore) Stats(ctx context.Context) (*gallery.Stats, error) {
	var stats gallery.Stats
	if err := s.call(ctx, http.MethodGet, nil, nil, &stats, "gallery", "stats"); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *RemoteStore) Tags(ctx context.Context) ([]gallery.TagCount, error) {
	tags := []gallery.TagCount{}
	if _, err := s.callData(ctx, s.api, http.MethodGet, nil, &tags, "gallery", "tags"); err != nil {
		return nil, err
	}
	return tags, nil
}

// AnalyzeRemote runs a quality analysis on the server and blocks until it
// finishes or is stopped.
func (s *RemoteStore) AnalyzeRemote(ctx context.Context, req gallery.RemoteAnalyzeRequest) (*gallery.AnalyzeSummary, error) {
	summary := &gallery.AnalyzeSummary{}
	if _, err := s.callData(ctx, s.stream, http.MethodPost, req, summary, "gallery", "analyze-quality"); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *RemoteStore) StopAnalysis(ctx context.Context) error {
	_, err := s.callData(ctx, s.api, http.MethodPost, nil, nil, "gallery", "stop-analysis")
	return err
}

// ServerInfo reports how many images a migration would copy.
func (s *RemoteStore) ServerInfo(ctx context.Context) (*gallery.ServerInfo, error) {
	info := &gallery.ServerInfo{}
	if _, err := s.callData(ctx, s.api, http.MethodGet, nil, info, "gallery", "migrate"); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *RemoteStore) ListPrompts(ctx context.Context, f gallery.PromptFilter) (*gallery.PromptList, error) {
	v := url.Values{}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Tag != "" {
		v.Set("tag", f.Tag)
	}
	if f.Favorite != nil {
		v.Set("favorite", strconv.FormatBool(*f.Favorite))
	}
	list := &gallery.PromptList{}
	if err := s.call(ctx, http.MethodGet, v, nil, list, "prompts", "list"); err != nil {
		return nil, err
	}
	if list.Prompts == nil {
		list.Prompts = []gallery.PromptRecord{}
	}
	return list, nil
}

func (s *RemoteStore) CreatePrompt(ctx context.Context, in gallery.PromptInput) (*gallery.PromptRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	var rec gallery.PromptRecord
	if err := s.call(ctx, http.MethodPost, nil, in, &rec, "prompts", "create"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// promptPatchBody sends only the fields a patch sets.
type promptPatchBody struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Category *string   `json:"category,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	Favorite *bool     `json:"favorite,omitempty"`
}

func (s *RemoteStore) UpdatePrompt(ctx context.Context, id string, p gallery.PromptPatch) (*gallery.PromptRecord, error) {
	if err := gallery.ValidatePromptPatch(p); err != nil {
		return nil, err
	}
	body := promptPatchBody{Title: p.Title, Content: p.Content, Category: p.Category, Favorite: p.Favorite}
	if p.Tags != nil {
		tags := gallery.CleanTags(p.Tags)
		body.Tags = &tags
	}
	var rec gallery.PromptRecord
	if err := s.call(ctx, http.MethodPut, nil, body, &rec, "prompts", id); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UsePrompt counts one use, then fetches the updated prompt.
func (s *RemoteStore) UsePrompt(ctx context.Context, id string) (*gallery.PromptRecord, error) {
	if _, err := s.callData(ctx, s.api, http.MethodPost, nil, nil, "prompts", id, "use"); err != nil {
		return nil, err
	}
	var rec gallery.PromptRecord
	if err := s.call(ctx, http.MethodGet, nil, nil, &rec, "prompts", id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RemoteStore) DeletePrompts(ctx context.Context, ids []string) (int, error) {
	var resp struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := s.call(ctx, http.MethodPost, nil, ids, &resp, "prompts", "delete"); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

func (s *RemoteStore) ExportPrompts(ctx context.Context) (*gallery.PromptDocument, error) {
	doc := gallery.NewPromptDocument()
	if err := s.call(ctx, http.MethodGet, nil, nil, doc, "prompts", "export", "all"); err != nil {
		return nil, err
	}
	if doc.Prompts == nil {
		doc.Prompts = []gallery.PromptRecord{}
	}
	return doc, nil
}

func (s *RemoteStore) ImportPrompts(ctx context.Context, prompts []gallery.PromptRecord, merge bool) (int, error) {
	if prompts == nil {
		prompts = []gallery.PromptRecord{}
	}
	body := gallery.PromptDocument{Version: gallery.DocumentVersion, Prompts: prompts}
	var resp struct {
		ImportedCount int `json:"imported_count"`
	}
	q := url.Values{"merge": {strconv.FormatBool(merge)}}
	if err := s.call(ctx, http.MethodPost, q, body, &resp, "prompts", "import"); err != nil {
		return 0, err
	}
	return resp.ImportedCount, nil
}
