package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/client"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://localhost:11434/api/chat")
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = NewClient("localhost")
	assert.Error(t, err)
}

func TestModelOptions(t *testing.T) {
	opts := modelOptions("openbmb/minicpm-v4.5:q4")
	assert.Equal(t, 4096, opts["num_ctx"])
	assert.Equal(t, 0.1, opts["temperature"])

	opts = modelOptions("llava:13b")
	assert.NotContains(t, opts, "num_ctx")
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		unavailable bool
	}{
		{"model not pulled", http.StatusNotFound, `{"error":"model \"llava\" not found, try pulling it first"}`, true},
		{"server error", http.StatusInternalServerError, `{"error":"out of memory"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL)
			require.NoError(t, err)
			_, err = c.Query(context.Background(), "llava", "p", "")
			require.Error(t, err)
			if tt.unavailable {
				assert.ErrorIs(t, err, client.ErrUnavailable)
			} else {
				assert.NotErrorIs(t, err, client.ErrUnavailable)
			}
		})
	}
}

func TestQueryServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	_, err = c.Query(context.Background(), "llava", "p", "")
	assert.ErrorIs(t, err, client.ErrUnavailable)
}
