package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxBackupBytes bounds the response body read by Get.
const maxBackupBytes = 256 << 20

// HTTPSlot is a Slot backed by a REST endpoint.
type HTTPSlot struct {
	base   string
	token  string
	client *http.Client
	log    *zap.Logger
}

var _ Slot = (*HTTPSlot)(nil)

// HTTPOption configures an HTTPSlot.
type HTTPOption func(*HTTPSlot)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) HTTPOption {
	return func(s *HTTPSlot) { s.token = token }
}

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSlot) { s.client = c }
}

func WithLogger(log *zap.Logger) HTTPOption {
	return func(s *HTTPSlot) { s.log = log }
}

// NewHTTPSlot returns a slot rooted at baseURL.
func NewHTTPSlot(baseURL string, opts ...HTTPOption) (*HTTPSlot, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}

	s := &HTTPSlot{
		base:   strings.TrimRight(u.String(), "/"),
		client: &http.Client{Timeout: 15 * time.Second},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *HTTPSlot) recordURL(account string) string {
	return fmt.Sprintf("%s/users/%s/sqlite_backup.json", s.base, url.PathEscape(account))
}

func (s *HTTPSlot) do(ctx context.Context, method, account string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.recordURL(account), r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.client.Do(req)
}

func (s *HTTPSlot) Get(ctx context.Context, account string) (Backup, bool, error) {
	resp, err := s.do(ctx, http.MethodGet, account, nil)
	if err != nil {
		return Backup{}, false, unavailable("get", account, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Backup{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Backup{}, false, unavailable("get", account, resp.StatusCode, statusError(resp))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBackupBytes))
	if err != nil {
		return Backup{}, false, unavailable("get", account, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	var b *Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return Backup{}, false, unavailable("get", account, resp.StatusCode, fmt.Errorf("decode body: %w", err))
	}
	if b == nil {
		return Backup{}, false, nil
	}

	s.log.Debug("fetched backup",
		zap.String("account", account),
		zap.Int("bytes", len(b.Data)),
		zap.Int64("timestamp", b.Timestamp))
	return *b, true, nil
}

func (s *HTTPSlot) Put(ctx context.Context, account string, b Backup) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPut, account, body)
	if err != nil {
		return unavailable("put", account, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable("put", account, resp.StatusCode, statusError(resp))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPSlot) Delete(ctx context.Context, account string) error {
	resp, err := s.do(ctx, http.MethodDelete, account, nil)
	if err != nil {
		return unavailable("delete", account, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable("delete", account, resp.StatusCode, statusError(resp))
	}
	return nil
}

// statusError summarizes an unexpected response, including the start of
// its body.
func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return errors.New(http.StatusText(resp.StatusCode))
	}
	return fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), msg)
}
