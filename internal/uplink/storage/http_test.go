package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/lyceum-cloud/uplink/internal/uplink/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *HTTPStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := token.NewSource()
	tokens.Set("test-token")
	return NewHTTPStore(srv.URL, tokens, srv.Client())
}

func TestHTTPStore_List(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/storage/list", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "runs/", r.URL.Query().Get("prefix"))
		assert.Equal(t, "1000", r.URL.Query().Get("max_files"))

		fmt.Fprint(w, `[
			{"key":"runs/a.txt","size":10,"last_modified":"2026-01-02T15:04:05Z"},
			{"key":"runs/sub/b.txt","size":20,"last_modified":"2026-01-03T15:04:05Z"}
		]`)
	})

	objs, err := store.List(context.Background(), "runs/", 1000)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "runs/a.txt", objs[0].Key)
	assert.Equal(t, int64(10), objs[0].Size)
	assert.Equal(t, 2026, objs[0].LastModified.Year())
}

func TestHTTPStore_List_ServerError(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	_, err := store.List(context.Background(), "runs/", 10)
	require.Error(t, err)
}

func TestHTTPStore_List_RetriesTransientError(t *testing.T) {
	var calls int
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"key":"runs/a.txt","size":10,"last_modified":"2026-01-02T15:04:05Z"}]`))
	})

	objs, err := store.List(context.Background(), "runs/", 10)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, 2, calls)
}

func TestHTTPStore_Exists(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "runs/a.txt" {
			fmt.Fprint(w, `[{"key":"runs/a.txt","size":10,"last_modified":""}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	ok, err := store.Exists(context.Background(), "runs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "runs/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPStore_Exists_PrefixMatchIsNotExact(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"key":"runs/a.txt.bak","size":1,"last_modified":""}]`)
	})

	ok, err := store.Exists(context.Background(), "runs/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPStore_Exists_SharedPrefixSibling(t *testing.T) {
	keys := []string{"runs/a.txt.bak", "runs/a.txt"}
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		max, err := strconv.Atoi(r.URL.Query().Get("max_files"))
		require.NoError(t, err)
		out := keys
		if max < len(out) {
			out = out[:max]
		}
		entries := make([]map[string]any, 0, len(out))
		for _, k := range out {
			entries = append(entries, map[string]any{"key": k, "size": 1, "last_modified": ""})
		}
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	})

	// a sibling sharing the key as its prefix must not shadow the exact match
	ok, err := store.Exists(context.Background(), "runs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHTTPStore_Put(t *testing.T) {
	var gotBody []byte
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/storage/upload", r.URL.Path)
		assert.Equal(t, "runs/a.txt", r.URL.Query().Get("path"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusCreated)
	})

	body := []byte("hello world")
	err := store.Put(context.Background(), "runs/a.txt", bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	assert.Equal(t, body, gotBody)
}

func TestHTTPStore_ChunkedUpload_Ranges(t *testing.T) {
	var ranges []string
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Content-Range"))
		w.WriteHeader(http.StatusOK)
	})

	up, err := store.StartChunked(context.Background(), "runs/big.bin", 10, 4)
	require.NoError(t, err)

	require.NoError(t, up.PutChunk(context.Background(), 0, []byte("aaaa")))
	require.NoError(t, up.PutChunk(context.Background(), 1, []byte("bbbb")))
	require.NoError(t, up.PutChunk(context.Background(), 2, []byte("cc")))
	require.NoError(t, up.Complete(context.Background()))

	assert.Equal(t, []string{
		"bytes 0-3/10",
		"bytes 4-7/10",
		"bytes 8-9/10",
	}, ranges)
}
