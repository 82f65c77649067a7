package model

import (
	"errors"
	"time"
)

// ErrTurnNotFound is returned when a follow-up names a turn the model
// transport no longer holds.
var ErrTurnNotFound = errors.New("turn not found")

// Role represents the role of a turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one request/response exchange with the language model.
// Follow-up turns link to their predecessor through ParentID.
type Turn struct {
	// Identity
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	// Content
	Prompt string `json:"prompt"`
	Text   string `json:"text"`

	// LLM Metadata
	Model      string `json:"model,omitempty"`
	TokensIn   int    `json:"tokens_in,omitempty"`
	TokensOut  int    `json:"tokens_out,omitempty"`
	LatencyMs  int64  `json:"latency_ms,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
