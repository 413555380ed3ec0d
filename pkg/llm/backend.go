package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// メッセージの役割
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message は役割付きのメッセージです。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params は生成パラメータです。
type Params struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	DoSample          bool
}

// DefaultParams は分析・抽出で使う既定の生成パラメータを返します。
func DefaultParams(temperature float64) Params {
	return Params{
		MaxNewTokens:      512,
		Temperature:       temperature,
		TopP:              0.9,
		RepetitionPenalty: 1.1,
		DoSample:          true,
	}
}

// Backend はテキスト生成サービスの抽象です。
type Backend interface {
	Name() string
	Complete(ctx context.Context, messages []Message, params Params) (string, error)
}

// Cleaner はチャットテンプレートの制御トークンを応答から取り除けるバックエンドが実装します。
type Cleaner interface {
	Clean(reply string) string
}

// CleanReply はバックエンドがCleanerなら制御トークンを除去し、前後の空白を落とします。
func CleanReply(b Backend, reply string) string {
	if c, ok := b.(Cleaner); ok {
		reply = c.Clean(reply)
	}
	return strings.TrimSpace(reply)
}

// バックエンドのエラー分類
var (
	ErrBackendUnreachable  = errors.New("language model backend unreachable")
	ErrBackendTimeout      = errors.New("language model backend timed out")
	ErrBackendAuth         = errors.New("language model backend rejected credentials")
	ErrBackendAccessDenied = errors.New("language model backend denied access")
	ErrBackendStatus       = errors.New("language model backend returned an error")
	ErrEmptyReply          = errors.New("language model backend returned an empty reply")
)

// StatusError はHTTPステータスを伴うバックエンドエラーです。
type StatusError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API エラー (status: %d): %s", e.Backend, e.StatusCode, e.Message)
}

// Unwrap はステータスコードに対応する分類エラーを返します。
func (e *StatusError) Unwrap() error {
	return ClassifyStatus(e.StatusCode)
}

// ClassifyStatus はHTTPステータスを分類エラーに変換します。
func ClassifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return ErrBackendAuth
	case http.StatusForbidden:
		return ErrBackendAccessDenied
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrBackendTimeout
	default:
		return ErrBackendStatus
	}
}

// ClassifyTransport はHTTPクライアントのエラーを分類エラーで包みます。
func ClassifyTransport(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", backend, ErrBackendTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%s: %w: %v", backend, ErrBackendTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %v", backend, ErrBackendTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", backend, ErrBackendUnreachable, err)
}

// GenericApology は分類できないエラーの返信文
const GenericApology = "I'm sorry, something went wrong while processing your request. Please try again."

// UserMessage はバックエンドのエラーをユーザー向けの定型文に変換します。
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrBackendAuth):
		return "I couldn't authenticate with the language model service. Please check the API key configuration."
	case errors.Is(err, ErrBackendAccessDenied):
		return "Access to the language model was denied. Please check that your account can use the configured model."
	case errors.Is(err, ErrBackendTimeout):
		return "The language model took too long to respond. Please try again in a moment."
	case errors.Is(err, ErrBackendUnreachable):
		return "I couldn't reach the language model service. Please try again later."
	case errors.Is(err, ErrBackendStatus), errors.Is(err, ErrEmptyReply):
		return "The language model service returned an error. Please try again later."
	default:
		return GenericApology
	}
}

// IsBackendError は分類済みのバックエンドエラーかを返します。
func IsBackendError(err error) bool {
	for _, target := range []error{ErrBackendAuth, ErrBackendAccessDenied, ErrBackendTimeout, ErrBackendUnreachable, ErrBackendStatus, ErrEmptyReply} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
