// Package generator invokes text-generation services and retries throttled
// calls with capped exponential backoff.
package generator

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request is the payload sent to a generator: a system instruction followed
// by alternating prior turns, the last of which is the current question.
type Request struct {
	System    string    `json:"system"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
}

type Client interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// ThrottlingError marks a rate-limit rejection reported by the service. It is
// the only error class the Invoker retries.
type ThrottlingError struct {
	Code string
	Err  error
}

func (e *ThrottlingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generator throttled: %s", e.Code)
	}
	return fmt.Sprintf("generator throttled: %s: %v", e.Code, e.Err)
}

func (e *ThrottlingError) Unwrap() error {
	return e.Err
}

func IsThrottling(err error) bool {
	var throttled *ThrottlingError
	return errors.As(err, &throttled)
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}
