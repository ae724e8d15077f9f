// Package apiclient is the single point of contact with the KacharaAlert
// backend. It owns the session token, decodes the response envelope into one
// error shape and refreshes the token once when a request comes back 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"github.com/kacharaalert/internal/logger"
)

const (
	authPathMarker = "/api/v1/auth/"
	refreshPath    = "/api/v1/auth/refresh"
)

// Options configures a Client. Zero values are filled with defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient is used as is when set; a cookie jar is added if it has none.
	HTTPClient *http.Client
	Session    *Session
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	session *Session
	refresh singleflight.Group
}

func New(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	session := opts.Session
	if session == nil {
		session = NewSession()
	}
	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		http:    hc,
		timeout: timeout,
		session: session,
	}, nil
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) BaseURL() string { return c.baseURL }

// ResolveURL joins path to the base URL unless it is already absolute.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

func isAuthPath(path string) bool {
	return strings.Contains(path, authPathMarker)
}

// Response is the decoded envelope without its data.
type Response struct {
	Status    int
	Message   string
	ErrorCode string
	HasData   bool
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	noStore     bool
}

func (c *Client) Get(ctx context.Context, path string, out any) (*Response, error) {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPatch, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) (*Response, error) {
	return c.doJSON(ctx, http.MethodDelete, path, nil, out)
}

// PostForm sends a multipart body; the boundary content type comes from the
// multipart writer.
func (c *Client) PostForm(ctx context.Context, path string, form Form, out any) (*Response, error) {
	return c.doForm(ctx, http.MethodPost, path, form, out)
}

func (c *Client) PutForm(ctx context.Context, path string, form Form, out any) (*Response, error) {
	return c.doForm(ctx, http.MethodPut, path, form, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) (*Response, error) {
	req := request{method: method, path: path, contentType: "application/json"}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.body = raw
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(resp, out)
}

func (c *Client) doForm(ctx context.Context, method, path string, form Form, out any) (*Response, error) {
	body, contentType, err := form.encode()
	if err != nil {
		return nil, fmt.Errorf("encode form %s: %w", path, err)
	}
	resp, err := c.send(ctx, request{method: method, path: path, body: body, contentType: contentType})
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(resp, out)
}

// Blob is a raw binary payload, used for authenticated images.
type Blob struct {
	ContentType string
	Data        []byte
}

// GetBlob follows the same auth and refresh contract but returns raw bytes.
func (c *Client) GetBlob(ctx context.Context, path string) (*Blob, error) {
	resp, err := c.send(ctx, request{method: http.MethodGet, path: path, noStore: true})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Message: extractErrorMessage(resp, data), Status: resp.StatusCode}
	}
	return &Blob{ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}

// send performs the request and, on a 401 for a non-auth path, refreshes the
// token once and retries once. Concurrent 401s share one refresh.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	defer logger.DeferLogDuration("api "+req.method+" "+req.path, time.Now())()

	token, gen := c.session.snapshot()
	resp, err := c.roundTrip(ctx, req, token)
	if err != nil {
		return nil, networkError(err)
	}
	if resp.StatusCode != http.StatusUnauthorized || isAuthPath(req.path) {
		return resp, nil
	}

	// Keep the 401 readable in case no retry happens.
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))

	// Only a request sent on the current generation may refresh. Later
	// generations mean another caller already refreshed or failed to.
	current, now := c.session.snapshot()
	if now == gen {
		if !c.refreshToken(ctx, gen) {
			return resp, nil
		}
		current = c.session.Token()
	}
	if current == "" {
		return resp, nil
	}
	logger.Debugf("api %s %s: retrying after token refresh", req.method, req.path)
	retry, err := c.roundTrip(ctx, req, current)
	if err != nil {
		return nil, networkError(err)
	}
	return retry, nil
}

func (c *Client) roundTrip(ctx context.Context, req request, token string) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.ResolveURL(req.path), body)
	if err != nil {
		return nil, err
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.noStore {
		httpReq.Header.Set("Cache-Control", "no-store")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(httpReq)
}

// Refresh asks the backend for a new access token using the refresh cookie.
// It reports whether a token is now held.
func (c *Client) Refresh(ctx context.Context) bool {
	_, gen := c.session.snapshot()
	return c.refreshToken(ctx, gen)
}

// refreshToken runs at most one refresh at a time for the token generation
// gen. When the generation has already moved, the outcome of that earlier
// refresh is reported without another request. A caller whose ctx ends
// stops waiting; the shared refresh keeps running for the others.
func (c *Client) refreshToken(ctx context.Context, gen uint64) bool {
	ch := c.refresh.DoChan("refresh", func() (any, error) {
		if token, now := c.session.snapshot(); now != gen {
			return token != "", nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.doRefresh(rctx), nil
	})
	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

func (c *Client) doRefresh(ctx context.Context) bool {
	defer logger.DeferLogDuration("api refresh", time.Now())()
	resp, err := c.roundTrip(ctx, request{method: http.MethodPost, path: refreshPath, contentType: "application/json", noStore: true}, "")
	if err != nil {
		logger.Errorf("token refresh: %v", err)
		c.session.expire()
		return false
	}
	var result struct {
		AccessToken *string `json:"accessToken"`
	}
	if _, err := decodeEnvelope(resp, &result); err != nil {
		logger.Debugf("token refresh rejected: %v", err)
		c.session.expire()
		return false
	}
	if result.AccessToken == nil || *result.AccessToken == "" {
		c.session.expire()
		return false
	}
	c.session.SetToken(*result.AccessToken)
	return true
}

// rawEnvelope detects a missing success field, which a bool would hide.
type rawEnvelope struct {
	Success   *bool           `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"errorCode"`
}

func isJSON(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "application/json")
}

func decodeEnvelope(resp *http.Response, out any) (*Response, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299

	if resp.StatusCode == http.StatusNoContent || !isJSON(resp) || len(bytes.TrimSpace(data)) == 0 {
		if ok {
			return &Response{Status: resp.StatusCode}, nil
		}
		return nil, &Error{Message: extractErrorMessage(resp, data), Status: resp.StatusCode}
	}

	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Success == nil {
		if !ok {
			return nil, &Error{Message: extractErrorMessage(resp, data), Status: resp.StatusCode}
		}
		if err == nil {
			err = fmt.Errorf("missing success field")
		}
		return nil, &Error{
			Message: "Malformed response from server",
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}

	if !ok || !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "Request failed"
		}
		return nil, &Error{Message: msg, Status: resp.StatusCode, Code: env.ErrorCode}
	}

	result := &Response{Status: resp.StatusCode, Message: env.Message, ErrorCode: env.ErrorCode}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		result.HasData = true
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return nil, &Error{
					Message: "Malformed response from server",
					Status:  resp.StatusCode,
					Err:     fmt.Errorf("%w: data: %v", ErrMalformedResponse, err),
				}
			}
		}
	}
	return result, nil
}

func extractErrorMessage(resp *http.Response, data []byte) string {
	if isJSON(resp) {
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "Request failed"
}

type FormField struct {
	Name  string
	Value string
}

type FormFile struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Form is a multipart body. Fields are written in order, files last.
type Form struct {
	Fields []FormField
	Files  []FormFile
}

func (f Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range f.Fields {
		if err := w.WriteField(field.Name, field.Value); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.Files {
		part, err := createFilePart(w, file)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func createFilePart(w *multipart.Writer, file FormFile) (io.Writer, error) {
	if file.ContentType == "" {
		return w.CreateFormFile(file.Field, file.Name)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Name))
	h.Set("Content-Type", file.ContentType)
	return w.CreatePart(h)
}
