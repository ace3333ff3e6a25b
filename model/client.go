// Package model wraps one OpenAI-compatible chat-completion endpoint. A client
// is stateless between calls and performs exactly one network attempt per call;
// retry policy belongs to the caller.
package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/onnwee/chatbridge/history"
)

// ErrorKind classifies a failed completion. Everything except Unauthorized is
// retryable from the caller's point of view.
type ErrorKind int

const (
	ErrUnreachable ErrorKind = iota
	ErrRateLimited
	ErrUnauthorized
	ErrTimeout
	ErrMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrRateLimited:
		return "rate-limited"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrTimeout:
		return "timeout"
	case ErrMalformed:
		return "malformed"
	}
	return "unreachable"
}

type Error struct {
	Kind       ErrorKind
	RetryAfter time.Duration // only meaningful for ErrRateLimited, zero if unknown
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("model %s: %v", e.Kind, e.cause)
	}
	return "model " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether a later call could succeed.
func (e *Error) Retryable() bool { return e.Kind != ErrUnauthorized }

// GeneratedTurn is one completion produced by the model.
type GeneratedTurn struct {
	Text  string
	Model string
}

// Client calls the chat-completion endpoint. Safe for use from multiple channel
// loops; it holds no per-conversation state.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

func New(apiKey, baseURL, modelID string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: modelID, timeout: timeout}
}

// Complete sends the system prompt plus the window and returns one generated
// turn. The window maps to API roles by origin: self turns become assistant
// turns, everything else a user turn prefixed with the speaker's nick.
func (c *Client) Complete(ctx context.Context, systemPrompt string, w history.Window) (GeneratedTurn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, 0, len(w.Turns)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, t := range w.Turns {
		if t.Origin == history.OriginSelf {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Text})
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: t.Speaker + " - " + t.Text,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{Model: c.model, Messages: msgs})
	if err != nil {
		return GeneratedTurn{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedTurn{}, &Error{Kind: ErrMalformed, cause: errors.New("response has no choices")}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return GeneratedTurn{}, &Error{Kind: ErrMalformed, cause: errors.New("empty completion")}
	}
	return GeneratedTurn{Text: text, Model: resp.Model}, nil
}

// classify maps transport and API failures onto the error taxonomy.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, cause: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTimeout, cause: err}
	}
	return &Error{Kind: ErrUnreachable, cause: err}
}

func classifyStatus(status int, err error) *Error {
	switch {
	case status == 401 || status == 403:
		return &Error{Kind: ErrUnauthorized, cause: err}
	case status == 429:
		return &Error{Kind: ErrRateLimited, RetryAfter: retryAfter(err), cause: err}
	case status >= 500:
		return &Error{Kind: ErrUnreachable, cause: err}
	default:
		return &Error{Kind: ErrMalformed, cause: err}
	}
}

// retryAfter digs a Retry-After hint out of the error text when present. Best
// effort; zero means unknown.
func retryAfter(err error) time.Duration {
	s := err.Error()
	i := strings.Index(strings.ToLower(s), "retry after ")
	if i < 0 {
		return 0
	}
	rest := s[i+len("retry after "):]
	var digits strings.Builder
	for _, r := range rest {
		if r < '0' || r > '9' {
			break
		}
		digits.WriteRune(r)
	}
	if digits.Len() == 0 {
		return 0
	}
	n, _ := strconv.Atoi(digits.String())
	return time.Duration(n) * time.Second
}
