// Package llmtest はテスト用の台本付きバックエンドを提供します。
package llmtest

import (
	"context"
	"errors"
	"sync"

	"agriviewer-chat-api/pkg/llm"
)

// ErrScriptExhausted は用意した応答を使い切った場合のエラー
var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

// Reply は1回分の応答です。
type Reply struct {
	Text string
	Err  error
}

// Call は受け取ったリクエストの記録です。
type Call struct {
	Messages []llm.Message
	Params   llm.Params
}

// Backend は順番に応答を返すフェイクです。
type Backend struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
	// Cleaner が設定されていればClean呼び出しに使われます
	Cleaner func(string) string
}

// New は文字列の応答を順番に返すバックエンドを作ります。
func New(replies ...string) *Backend {
	b := &Backend{}
	for _, r := range replies {
		b.replies = append(b.replies, Reply{Text: r})
	}
	return b
}

// Push は応答を追加します。
func (b *Backend) Push(r Reply) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, r)
	return b
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) Clean(reply string) string {
	if b.Cleaner != nil {
		return b.Cleaner(reply)
	}
	return reply
}

func (b *Backend) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Messages: append([]llm.Message(nil), messages...), Params: params})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(b.replies) == 0 {
		return "", ErrScriptExhausted
	}
	r := b.replies[0]
	b.replies = b.replies[1:]
	return r.Text, r.Err
}

// Calls は記録された呼び出しを返します。
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}
