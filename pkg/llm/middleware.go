package llm

import (
	"context"
	"errors"
	"log"
	"time"
)

func isErr(err, target error) bool { return errors.Is(err, target) }

// WithLogging はリクエストサイズ・所要時間・エラーをログとメトリクスに記録するBackendを返します。
// loggerがnilならlog.Default()を使います。
func WithLogging(next Backend, logger *log.Logger) Backend {
	if logger == nil {
		logger = log.Default()
	}
	return &logging{next: next, log: logger}
}

type logging struct {
	next Backend
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }

// Clean は内側のバックエンドのクリーナーを透過させます。
func (l *logging) Clean(reply string) string {
	if c, ok := l.next.(Cleaner); ok {
		return c.Clean(reply)
	}
	return reply
}

func (l *logging) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	size := 0
	for _, m := range messages {
		size += len(m.Content)
	}
	name := l.next.Name()
	l.log.Printf("🤖 [LLM] request (%s): %d messages, %d bytes", name, len(messages), size)

	start := time.Now()
	reply, err := l.next.Complete(ctx, messages, params)
	elapsed := time.Since(start)

	BackendRequestsTotal.WithLabelValues(name).Inc()
	BackendLatencySeconds.WithLabelValues(name).Observe(elapsed.Seconds())
	if err != nil {
		BackendErrorsTotal.WithLabelValues(name, errorReason(err)).Inc()
		l.log.Printf("❌ [LLM] error (%s) after %s: %v", name, elapsed.Round(time.Millisecond), err)
		return "", err
	}
	l.log.Printf("✅ [LLM] reply (%s) in %s: %d bytes", name, elapsed.Round(time.Millisecond), len(reply))
	return reply, nil
}
