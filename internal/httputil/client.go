package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second
	userAgent      = "YieldWatch/1.0"

	// maxErrorBody caps how much of a non-2xx body is kept for diagnostics.
	maxErrorBody = 512
)

// FilePart is a file attached to a multipart form.
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

// Form is a multipart/form-data body.
type Form struct {
	Fields map[string]string
	Files  []FilePart
}

// Request describes a single backend call. Body is JSON-encoded when set;
// Form takes precedence when both are set.
type Request struct {
	Method string
	URL    string
	Body   any
	Form   *Form
}

// Call is reported to an Observer after every request.
type Call struct {
	Service string
	Method  string
	URL     string
	Result  Result
	Elapsed time.Duration
}

// Observer receives every completed call. It must not block.
type Observer func(Call)

// Client wraps net/http and converts every outcome into a Result.
type Client struct {
	service    string
	httpClient *http.Client
	observer   Observer
}

// NewClient returns a transport for the named backend with the standard
// timeout configuration.
func NewClient(service string) *Client {
	return &Client{
		service:    service,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Service returns the backend name the client was created for.
func (c *Client) Service() string {
	return c.service
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetObserver installs a hook that sees every call. Call before first use.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

func (c *Client) Get(ctx context.Context, url string) Result {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url})
}

func (c *Client) PostJSON(ctx context.Context, url string, body any) Result {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Body: body})
}

func (c *Client) PostForm(ctx context.Context, url string, form *Form) Result {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Form: form})
}

// Do performs the request. It never panics and never returns a bare error:
// any problem building, sending, or reading the request becomes a Failure.
func (c *Client) Do(ctx context.Context, r Request) Result {
	start := time.Now()
	res := c.do(ctx, r)
	if c.observer != nil {
		c.observer(Call{
			Service: c.service,
			Method:  r.Method,
			URL:     r.URL,
			Result:  res,
			Elapsed: time.Since(start),
		})
	}
	return res
}

func (c *Client) do(ctx context.Context, r Request) Result {
	body, contentType, err := encodeBody(r)
	if err != nil {
		return failed(NetworkUnreachable, 0, fmt.Errorf("encode body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		if closer, ok := body.(io.Closer); ok {
			closer.Close()
		}
		return failed(NetworkUnreachable, 0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failed(NetworkUnreachable, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(HTTPError, resp.StatusCode, bodyError(data))
	}
	if err != nil {
		return failed(NetworkUnreachable, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	return Result{Status: resp.StatusCode, Body: data}
}

func encodeBody(r Request) (io.Reader, string, error) {
	if r.Form != nil {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(writeForm(mw, r.Form))
		}()
		return pr, mw.FormDataContentType(), nil
	}
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	}
	return nil, "", nil
}

func writeForm(mw *multipart.Writer, f *Form) error {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, f.Fields[k]); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}

	for _, part := range f.Files {
		w, err := mw.CreateFormFile(part.Field, part.Filename)
		if err != nil {
			return fmt.Errorf("create file part %s: %w", part.Field, err)
		}
		if _, err := io.Copy(w, part.Content); err != nil {
			return fmt.Errorf("copy file %s: %w", part.Filename, err)
		}
	}
	return mw.Close()
}

func bodyError(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil
	}
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return errors.New(s)
}
