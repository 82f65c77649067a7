package model

import (
	"time"
)

// ReplyStatus classifies how a question ended.
type ReplyStatus string

const (
	ReplyAnswered           ReplyStatus = "answered"
	ReplyFailed             ReplyStatus = "failed"
	ReplyNeedsClarification ReplyStatus = "needs_clarification"
)

// Reply is the display-ready outcome of a question.
type Reply struct {
	Question          string      `json:"question"`
	ThreadID          string      `json:"thread_id"`
	Status            ReplyStatus `json:"status"`
	Text              string      `json:"text"`
	Query             string      `json:"query,omitempty"`
	Assumptions       string      `json:"assumptions,omitempty"`
	Error             string      `json:"error,omitempty"`
	Table             string      `json:"table,omitempty"`
	TruncatedRowCount int         `json:"truncated_row_count,omitempty"`
	CSV               string      `json:"csv,omitempty"`
	RowCount          int         `json:"row_count"`
}

// HistoryEntry is a persisted question and its reply.
type HistoryEntry struct {
	ConversationKey string    `json:"conversation_key"`
	Reply           Reply     `json:"reply"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListHistoryResponse is the response for listing a conversation's history.
type ListHistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	HasMore bool           `json:"has_more"`
}
