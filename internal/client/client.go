// Package client は pdf2img API の HTTP クライアントを提供します。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/pdf2img/internal/conversion"
)

// DefaultPollInterval は完了待ちのポーリング間隔です。
const DefaultPollInterval = 2 * time.Second

const csrfHeader = "X-CSRF-Token"

// APIError は API が返したエラーレスポンスです。
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client は pdf2img API のクライアントです。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	csrfToken  string
}

// Option はクライアントの設定を変更します。
type Option func(*Client)

// WithHTTPClient は使用する http.Client を差し替えます。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New は baseURL の API に接続するクライアントを作成します。
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Jar: jar, Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient.Jar == nil {
		c.httpClient.Jar = jar
	}
	return c, nil
}

// Login はセッションを開始し、以降の書き込み要求に CSRF トークンを付けます。
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	c.csrfToken = resp.Header.Get(csrfHeader)
	return nil
}

// Submit は PDF を投入し、RUNNING のレコードを返します。
func (c *Client) Submit(ctx context.Context, filename string, data []byte) (*conversion.Conversion, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/conversion", nil, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var record conversion.Conversion
	if err := c.doJSON(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Get は変換レコードを取得します。
func (c *Client) Get(ctx context.Context, id string) (*conversion.Conversion, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversion", url.Values{"id": {id}}, nil)
	if err != nil {
		return nil, err
	}
	var record conversion.Conversion
	if err := c.doJSON(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// List はすべての変換レコードを取得します。
func (c *Client) List(ctx context.Context) ([]conversion.Conversion, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversions", nil, nil)
	if err != nil {
		return nil, err
	}
	var records []conversion.Conversion
	if err := c.doJSON(req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Results は完了した変換のページ画像を取得します。
func (c *Client) Results(ctx context.Context, id string) (*conversion.Results, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversion/results", url.Values{"id": {id}}, nil)
	if err != nil {
		return nil, err
	}
	var results conversion.Results
	if err := c.doJSON(req, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// Archive は全ページの zip を w に書き出します。
func (c *Client) Archive(ctx context.Context, id string, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/conversion/results/archive", url.Values{"id": {id}}, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	return nil
}

// Wait は変換が終端状態になるまで interval ごとにポーリングします。
// onPoll は取得のたびに呼ばれます（nil 可）。
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration, onPoll func(*conversion.Conversion)) (*conversion.Conversion, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		record, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(record)
		}
		if record.Status.Terminal() {
			return record, nil
		}

		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.csrfToken != "" && method != http.MethodGet {
		req.Header.Set(csrfHeader, c.csrfToken)
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, apiErr)
	return apiErr
}

// IsCode は err が指定コードの APIError かどうかを返します。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
