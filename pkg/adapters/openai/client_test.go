package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/errand/pkg/adapters/openai"
	"github.com/aretw0/errand/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"ok\":true}"}}]
		}`))
	}))
	defer srv.Close()

	c := openai.New("test-model", openai.WithAPIKey("sk-test"), openai.WithBaseURL(srv.URL))
	out, err := c.Complete(context.Background(), llm.Request{
		Name:   "extract",
		System: "be terse",
		Prompt: "hello",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "test-model", got["model"])
	assert.Len(t, got["messages"], 2)
	format, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestClient_ErrorCategories(t *testing.T) {
	tests := []struct {
		status      int
		category    llm.Category
		recoverable bool
	}{
		{http.StatusTooManyRequests, llm.CategoryAPI, true},
		{http.StatusBadGateway, llm.CategoryAPI, true},
		{http.StatusBadRequest, llm.CategoryValidation, false},
		{http.StatusUnauthorized, llm.CategoryAPI, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			}))
			defer srv.Close()

			c := openai.New("m", openai.WithAPIKey("k"), openai.WithBaseURL(srv.URL))
			_, err := c.Complete(context.Background(), llm.Request{Prompt: "x"})

			var le *llm.Error
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.category, le.Category)
			assert.Equal(t, tt.recoverable, le.Recoverable)
			assert.Equal(t, tt.status, le.StatusCode)
		})
	}
}
