// Package manifest fetches the published file manifest and turns it into a
// sanitized list of relative paths.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrUnsafePath marks a manifest entry that would escape the download
// directory.
var ErrUnsafePath = errors.New("unsafe manifest path")

// Manifest is the published index of files grouped by category.
type Manifest struct {
	Timestamp json.RawMessage            `json:"timestamp,omitempty"`
	DateStr   string                     `json:"dateStr,omitempty"`
	Files     map[string]json.RawMessage `json:"files"`
}

// Fetcher retrieves manifests over HTTP with retries.
type Fetcher struct {
	client *retryablehttp.Client
	log    *slog.Logger
}

// slogLeveled adapts slog to retryablehttp.LeveledLogger.
type slogLeveled struct{ l *slog.Logger }

func (s slogLeveled) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }
func (s slogLeveled) Info(msg string, kv ...any)  { s.l.Debug(msg, kv...) }
func (s slogLeveled) Debug(msg string, kv ...any) { s.l.Debug(msg, kv...) }
func (s slogLeveled) Warn(msg string, kv ...any)  { s.l.Warn(msg, kv...) }

// NewFetcher returns a Fetcher that retries transient failures up to
// retryMax times.
func NewFetcher(log *slog.Logger, retryMax int, timeout time.Duration) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = slogLeveled{log.With("component", "manifest")}
	return &Fetcher{client: c, log: log}
}

// Fetch downloads and decodes the manifest at url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Manifest, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch manifest: http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Paths flattens all categories into one list. Categories are visited in
// sorted order; within a category the published order is kept. Values that
// are not arrays, and array entries that are not strings, are ignored.
func (m *Manifest) Paths() []string {
	cats := make([]string, 0, len(m.Files))
	for c := range m.Files {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var out []string
	for _, c := range cats {
		var items []any
		if err := json.Unmarshal(m.Files[c], &items); err != nil {
			continue
		}
		for _, it := range items {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// CheckPath rejects empty, absolute (Unix or Windows) and parent-escaping
// paths.
func CheckPath(p string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return fmt.Errorf("%w: empty", ErrUnsafePath)
	case strings.HasPrefix(p, "/"), strings.HasPrefix(p, `\`):
		return fmt.Errorf("%w: absolute path %q", ErrUnsafePath, p)
	case len(p) >= 2 && p[1] == ':' && isLetter(p[0]):
		return fmt.Errorf("%w: drive path %q", ErrUnsafePath, p)
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("%w: parent segment in %q", ErrUnsafePath, p)
		}
	}
	return nil
}

func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

// Sanitize splits paths into accepted and rejected entries, logging each
// rejection.
func Sanitize(paths []string, log *slog.Logger) (accepted, rejected []string) {
	if log == nil {
		log = slog.Default()
	}
	accepted = make([]string, 0, len(paths))
	for _, p := range paths {
		if err := CheckPath(p); err != nil {
			log.Warn("skipping manifest entry", "path", p, "err", err)
			rejected = append(rejected, p)
			continue
		}
		accepted = append(accepted, p)
	}
	return accepted, rejected
}
