// Package service ties the question agent to its transports.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/agent"
	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/internal/table"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

const clarificationText = "I'm sorry, I'm not sure how to answer that, can you add more details?"

var (
	ErrEmptyQuestion = errors.New("question text is required")
	ErrMissingThread = errors.New("thread id is required")
)

// Answerer answers a question within a conversation.
type Answerer interface {
	AnswerWithProgress(ctx context.Context, question, conversationID string, progress agent.ProgressFunc) (*model.Answer, error)
}

// HistoryStore persists replies per conversation.
type HistoryStore interface {
	Append(ctx context.Context, conversationKey string, entry model.HistoryEntry) error
	List(ctx context.Context, conversationKey string, limit int) ([]model.HistoryEntry, bool, error)
}

// ReplyPublisher delivers replies to subscribers.
type ReplyPublisher interface {
	PublishReply(ctx context.Context, reply *model.Reply) error
}

// QuestionService handles question operations.
type QuestionService struct {
	answerer  Answerer
	history   HistoryStore
	publisher ReplyPublisher
	logger    *logger.Logger
}

// NewQuestionService creates a new question service. history and
// publisher may be nil.
func NewQuestionService(answerer Answerer, history HistoryStore, publisher ReplyPublisher, log *logger.Logger) *QuestionService {
	if log == nil {
		log = logger.Global()
	}
	return &QuestionService{
		answerer:  answerer,
		history:   history,
		publisher: publisher,
		logger:    log.Named("questions"),
	}
}

// ConversationKey scopes a thread to its tenant.
func ConversationKey(tenantID, threadID string) string {
	if tenantID == "" {
		return threadID
	}
	return tenantID + ":" + threadID
}

// Ask answers a question and returns the reply.
func (s *QuestionService) Ask(ctx context.Context, ev model.QuestionEvent) (*model.Reply, error) {
	return s.AskWithProgress(ctx, ev, nil)
}

// AskWithProgress is Ask with a callback for each step of the agent.
func (s *QuestionService) AskWithProgress(ctx context.Context, ev model.QuestionEvent, progress agent.ProgressFunc) (*model.Reply, error) {
	ev.Text = strings.TrimSpace(ev.Text)
	if ev.Text == "" {
		return nil, ErrEmptyQuestion
	}
	if ev.ThreadID == "" {
		return nil, ErrMissingThread
	}

	key := ConversationKey(ev.TenantID, ev.ThreadID)
	log := s.logger.With(zap.String("tenant_id", ev.TenantID)).WithConversation(key)

	start := time.Now()
	answer, err := s.answerer.AnswerWithProgress(ctx, ev.Text, key, progress)
	if err != nil {
		log.Error("failed to answer question", zap.Error(err))
		return nil, fmt.Errorf("failed to answer question: %w", err)
	}

	reply := BuildReply(ev, answer)
	log.Info("question answered",
		zap.String("status", string(reply.Status)),
		zap.Int("rows", reply.RowCount),
		zap.Duration("duration", time.Since(start)),
	)

	if s.history != nil {
		entry := model.HistoryEntry{Reply: *reply, CreatedAt: time.Now().UTC()}
		if err := s.history.Append(ctx, key, entry); err != nil {
			log.Warn("failed to store history", zap.Error(err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReply(ctx, reply); err != nil {
			log.Warn("failed to publish reply", zap.Error(err))
		}
	}

	return reply, nil
}

// History lists the most recent replies in a thread.
func (s *QuestionService) History(ctx context.Context, tenantID, threadID string, limit int) (*model.ListHistoryResponse, error) {
	if s.history == nil {
		return &model.ListHistoryResponse{Entries: []model.HistoryEntry{}}, nil
	}
	entries, hasMore, err := s.history.List(ctx, ConversationKey(tenantID, threadID), limit)
	if err != nil {
		return nil, err
	}
	return &model.ListHistoryResponse{Entries: entries, HasMore: hasMore}, nil
}

// BuildReply turns an answer into a display-ready reply.
func BuildReply(ev model.QuestionEvent, answer *model.Answer) *model.Reply {
	reply := &model.Reply{
		Question:    ev.Text,
		ThreadID:    ev.ThreadID,
		Query:       answer.Query,
		Assumptions: answer.Assumptions,
	}

	switch {
	case answer.HasResult:
		result := table.Render(answer.Rows)
		reply.Status = model.ReplyAnswered
		reply.Table = result.TableText
		reply.TruncatedRowCount = result.TruncatedRowCount
		reply.CSV = result.CSVText
		reply.RowCount = len(answer.Rows)
		reply.Text = answeredText(reply.RowCount, result.TruncatedRowCount)
	case answer.Err != "":
		reply.Status = model.ReplyFailed
		reply.Error = answer.Err
		reply.Text = "I couldn't get a working query for that question. The last error was: " + answer.Err
	default:
		reply.Status = model.ReplyNeedsClarification
		reply.Query = ""
		reply.Text = clarificationText
	}
	return reply
}

func answeredText(rows, truncated int) string {
	switch {
	case rows == 0:
		return "The query returned no rows."
	case truncated > 0:
		return fmt.Sprintf("The query returned %d rows. %d rows are not shown in the table; the CSV has all of them.", rows, truncated)
	case rows == 1:
		return "The query returned 1 row."
	default:
		return fmt.Sprintf("The query returned %d rows.", rows)
	}
}
