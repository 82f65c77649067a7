package model

import (
	"time"
)

// QuestionEvent is the typed inbound event at the messaging seam.
type QuestionEvent struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Stage names a transition of the question answering loop.
type Stage string

const (
	StageContext   Stage = "context"
	StageAsk       Stage = "ask"
	StageExecute   Stage = "execute"
	StageAutoFix   Stage = "autofix"
	StageCorrect   Stage = "correct"
	StageAnswered  Stage = "answered"
	StageNoQuery   Stage = "no_query"
	StageExhausted Stage = "exhausted"
)

// ProgressEvent reports a loop transition to interested callers.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Attempt int    `json:"attempt,omitempty"`
	Query   string `json:"query,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
