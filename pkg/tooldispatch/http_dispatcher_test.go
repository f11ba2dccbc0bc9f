package tooldispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDispatcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dispatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, string(FileWrite), req.Tool)
		assert.Equal(t, "a.txt", req.Input["path"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dispatchResponse{Result: json.RawMessage(`{"path":"a.txt","size":3}`)})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, nil)
	result, err := d.Dispatch(context.Background(), Request{Tool: FileWrite, Input: map[string]any{"path": "a.txt", "content": "abc"}})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "a.txt")
}

func TestHTTPDispatcherBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dispatchResponse{IsError: true, Error: "permission denied"})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, nil)
	result, err := d.Dispatch(context.Background(), Request{Tool: FileRead, Input: map[string]any{"path": "/etc/shadow"}})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHTTPDispatcherUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, nil)
	_, err := d.Dispatch(context.Background(), Request{Tool: FileRead, Input: map[string]any{"path": "x"}})
	assert.Error(t, err)
}
