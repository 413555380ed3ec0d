package gemini

import (
	"context"
	"errors"
	"testing"

	"agriviewer-chat-api/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

func TestToContents(t *testing.T) {
	contents, system := toContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "be helpful"},
		{Role: llm.RoleUser, Content: "q1"},
		{Role: llm.RoleAssistant, Content: "a1"},
		{Role: llm.RoleUser, Content: "q2"},
	})

	assert.Equal(t, "be helpful", system)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "q2", contents[2].Parts[0].Text)
}

func TestClassify(t *testing.T) {
	err := classify(genai.APIError{Code: 403, Message: "permission denied"})
	assert.ErrorIs(t, err, llm.ErrBackendAccessDenied)

	err = classify(genai.APIError{Code: 401, Message: "bad key"})
	assert.ErrorIs(t, err, llm.ErrBackendAuth)

	err = classify(context.DeadlineExceeded)
	assert.ErrorIs(t, err, llm.ErrBackendTimeout)

	err = classify(errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, llm.ErrBackendUnreachable)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Options{Model: "gemini-2.5-flash"})
	assert.ErrorIs(t, err, llm.ErrBackendAuth)
}
