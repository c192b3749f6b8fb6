package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/drummonds/travellens-web/internal/metrics"
)

const (
	pathAllImages     = "/AllImages/"
	pathLabelsSummary = "/LabelsSummary/"
	pathUpload        = "/upload/"
	pathPredict       = "/predict/"
)

// ErrMissingCount is returned when a successful upload response carries no
// uploaded_count.
var ErrMissingCount = errors.New("upload response has no uploaded_count")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Endpoint, e.StatusCode, e.Body)
}

// --- CBIR client ---

type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient returns a client for the backend at baseURL. A zero timeout
// leaves requests unbounded; callers cancel through the context instead.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}
	return &Client{baseURL: baseURL, http: rc}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) ListImages(ctx context.Context) ([]ImageCollection, error) {
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(pathAllImages)
	if err = c.check("list images", pathAllImages, start, resp, err); err != nil {
		return nil, err
	}
	var items []ImageCollection
	if err := json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, fmt.Errorf("decoding images: %w", err)
	}
	return items, nil
}

func (c *Client) LabelsSummary(ctx context.Context) ([]LabelSummary, error) {
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(pathLabelsSummary)
	if err = c.check("labels summary", pathLabelsSummary, start, resp, err); err != nil {
		return nil, err
	}
	var sr labelsSummaryResponse
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return nil, fmt.Errorf("decoding labels summary: %w", err)
	}
	return sr.Summary, nil
}

// Upload posts files under label as one multipart request. progress, when
// non-nil, is called as the body is written to the connection.
func (c *Client) Upload(ctx context.Context, label string, files []File, progress ProgressFunc) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("label", label); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	for _, f := range files {
		part, err := mw.CreatePart(filePartHeader("files", f))
		if err != nil {
			return nil, fmt.Errorf("building upload form: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("building upload form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}

	total := int64(body.Len())
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", mw.FormDataContentType()).
		SetBody(newProgressReader(&body, total, progress)).
		Post(pathUpload)
	if err = c.check("upload", pathUpload, start, resp, err); err != nil {
		return nil, err
	}

	var ur uploadResponse
	if err := json.Unmarshal(resp.Body(), &ur); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	if ur.UploadedCount == nil {
		return nil, ErrMissingCount
	}
	metrics.UploadedImages.Add(float64(*ur.UploadedCount))
	return &UploadResult{Label: ur.Label, UploadedCount: *ur.UploadedCount, ImagePaths: ur.ImagePaths}, nil
}

// Predict asks for the topK images most similar to file.
func (c *Client) Predict(ctx context.Context, file File, topK int) ([]SearchResult, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", file.Name, bytes.NewReader(file.Data)).
		SetFormData(map[string]string{
			"top_k": strconv.Itoa(topK),
		}).
		Post(pathPredict)
	if err = c.check("predict", pathPredict, start, resp, err); err != nil {
		return nil, err
	}
	var pr predictResponse
	if err := json.Unmarshal(resp.Body(), &pr); err != nil {
		return nil, fmt.Errorf("decoding predict response: %w", err)
	}
	return pr.Results, nil
}

// check records metrics for one call and turns transport failures and
// non-2xx answers into errors.
func (c *Client) check(op, endpoint string, start time.Time, resp *resty.Response, err error) error {
	metrics.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, "transport").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsSuccess() {
		metrics.BackendRequests.WithLabelValues(endpoint, "status").Inc()
		return &StatusError{Endpoint: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	metrics.BackendRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func filePartHeader(field string, f File) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(f.Name)))
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
