package ai

import (
	"errors"
	"fmt"
)

// maxErrorBodyChars bounds how much of a failed response body is quoted.
const maxErrorBodyChars = 200

var (
	ErrToolsUnsupported = errors.New("tool calling is not supported by this provider")
	ErrStreamIdle       = errors.New("provider stream idle timeout")
)

// APIError reports a non-200 provider response or a transport failure.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("API请求失败: %v", e.Err)
	}
	msg := fmt.Sprintf("API错误: %d", e.StatusCode)
	if e.Body != "" {
		msg += " - " + e.Body
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
