package azure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agriviewer-chat-api/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-test/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Soil moisture is low."}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL+"/", "secret", "2024-02-15-preview", "gpt-test", "", time.Second)
	reply, err := client.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
	}, llm.DefaultParams(0.7))
	require.NoError(t, err)

	assert.Equal(t, "Soil moisture is low.", reply)
	assert.Equal(t, "azure:gpt-test", client.Name())
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 0.1, got.FrequencyPenalty, 1e-9)
}

func TestCompleteErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key."}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "bad", "v", "d", "", time.Second)
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}, llm.DefaultParams(0.7))
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrBackendAuth)
	assert.Contains(t, err.Error(), "invalid subscription key")

	noKey := NewOpenAIClient(server.URL, "", "v", "d", "", time.Second)
	_, err = noKey.Complete(context.Background(), nil, llm.DefaultParams(0.7))
	assert.ErrorIs(t, err, llm.ErrBackendAuth)
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(server.URL, "k", "v", "d", "", time.Second)
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}}, llm.DefaultParams(0.7))
	assert.ErrorIs(t, err, llm.ErrEmptyReply)
}
