package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/lyceum-cloud/uplink/internal/common"
	"github.com/lyceum-cloud/uplink/internal/uplink/token"
)

// Listing is read-only, so transient failures are retried with a short
// backoff. Uploads are never retried here; the engine's task-level retry
// owns that.
const (
	listMaxRetries   = 2
	listRetryBackoff = 200 * time.Millisecond

	// existsProbeLimit is how many entries an existence probe requests.
	// The key is also a prefix of sibling keys ("a.csv" vs "a.csv.bak"),
	// so a single-entry listing could miss the exact match.
	existsProbeLimit = 32
)

// HTTPStore talks to the platform's object-storage HTTP API. One base URL,
// one token source; every request carries the current bearer token.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	tokens  *token.Source
}

// NewHTTPStore binds the store to one API base URL. client may be nil, in
// which case a default client is used; passing one lets the composition root
// share a single client (timeouts, proxies, instrumentation) across all
// requests.
func NewHTTPStore(baseURL string, tokens *token.Source, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPStore{
		baseURL: baseURL,
		client:  client,
		tokens:  tokens,
	}
}

type listEntry struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

func (s *HTTPStore) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(common.AccessTokenHeaderName, "Bearer "+s.tokens.Token())
	return req, nil
}

func (s *HTTPStore) List(ctx context.Context, prefix string, maxFiles int) ([]ObjectInfo, error) {
	q := url.Values{}
	q.Set("prefix", prefix)
	q.Set("max_files", strconv.Itoa(maxFiles))

	var entries []listEntry
	backoff := retry.WithMaxRetries(listMaxRetries, retry.NewFibonacci(listRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := s.newRequest(ctx, http.MethodGet, "/v1/storage/list", q, nil)
		if err != nil {
			return err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("list objects: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("list objects: %s", resp.Status))
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("list objects: %s; body: %s", resp.Status, string(b))
		}

		entries = entries[:0]
		if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
			return fmt.Errorf("decode listing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		info := ObjectInfo{Key: e.Key, Size: e.Size}
		if ts, err := time.Parse(time.RFC3339, e.LastModified); err == nil {
			info.LastModified = ts
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *HTTPStore) Exists(ctx context.Context, key string) (bool, error) {
	entries, err := s.List(ctx, key, existsProbeLimit)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *HTTPStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	q := url.Values{}
	q.Set("path", key)

	req, err := s.newRequest(ctx, http.MethodPut, "/v1/storage/upload", q, r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload %s: %s; body: %s", key, resp.Status, string(b))
	}
	return nil
}

func (s *HTTPStore) StartChunked(ctx context.Context, key string, size, chunkSize int64) (ChunkedUpload, error) {
	return &httpChunkedUpload{store: s, key: key, size: size, chunkSize: chunkSize}, nil
}

// httpChunkedUpload sends each chunk as a ranged PUT; the platform assembles
// the object server-side and finalizes it when the last range arrives.
type httpChunkedUpload struct {
	store     *HTTPStore
	key       string
	size      int64
	chunkSize int64
}

func (u *httpChunkedUpload) PutChunk(ctx context.Context, index int, data []byte) error {
	start := int64(index) * u.chunkSize
	end := start + int64(len(data)) - 1

	q := url.Values{}
	q.Set("path", u.key)

	req, err := u.store.newRequest(ctx, http.MethodPut, "/v1/storage/upload", q, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, u.size))

	resp, err := u.store.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload chunk %d of %s: %w", index, u.key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload chunk %d of %s: %s; body: %s", index, u.key, resp.Status, string(b))
	}
	return nil
}

func (u *httpChunkedUpload) Complete(ctx context.Context) error {
	// Nothing to finalize: the final ranged PUT completes the object.
	return nil
}

func (u *httpChunkedUpload) Abort(ctx context.Context) error {
	q := url.Values{}
	q.Set("path", u.key)

	req, err := u.store.newRequest(ctx, http.MethodDelete, "/v1/storage/upload", q, nil)
	if err != nil {
		return err
	}
	resp, err := u.store.client.Do(req)
	if err != nil {
		return fmt.Errorf("abort upload %s: %w", u.key, err)
	}
	defer resp.Body.Close()
	return nil
}
