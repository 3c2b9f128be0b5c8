package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/client"
)

func TestQuery(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"faces\":[]}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	text, err := c.Query(context.Background(), "qwen2.5-vl", "find faces", "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, `{"faces":[]}`, text)

	assert.Equal(t, "qwen2.5-vl", got.Model)
	require.Len(t, got.Messages, 1)
	parts, ok := got.Messages[0].Content.([]interface{})
	require.True(t, ok)
	assert.Len(t, parts, 2)
}

func TestQueryContentParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"hello"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	text, err := c.Query(context.Background(), "m", "p", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		unavailable bool
	}{
		{"server error", http.StatusInternalServerError, "boom", false},
		{"unknown model", http.StatusNotFound, "model not found", true},
		{"loading", http.StatusServiceUnavailable, "loading model", true},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
		{"empty text", http.StatusOK, `{"choices":[{"message":{"content":""}}]}`, false},
		{"bad json", http.StatusOK, `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewClient(srv.URL)
			_, err := c.Query(context.Background(), "m", "p", "")
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, errors.Is(err, client.ErrUnavailable))
		})
	}
}

func TestQueryServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	_, err = c.Query(context.Background(), "m", "p", "")
	assert.ErrorIs(t, err, client.ErrUnavailable)
}
