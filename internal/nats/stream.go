package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/pkg/metrics"
)

const (
	// StreamName is the name of the data question stream.
	StreamName = "DATAQA"

	// SubjectPrefix is the prefix for all data question subjects.
	SubjectPrefix = "dataqa"

	// QuestionsSubject receives inbound questions.
	QuestionsSubject = SubjectPrefix + ".questions"

	// QuestionsConsumer is the durable consumer answering questions.
	QuestionsConsumer = "dataqa-questions"
)

// QuestionHandler answers one inbound question.
type QuestionHandler func(ctx context.Context, ev model.QuestionEvent) error

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the data question stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Data questions and their replies",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// subjectToken makes s usable as a single subject token. Thread IDs are
// usually timestamps such as 1700000000.000100.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// ReplySubject returns the subject replies for a thread are published on.
func ReplySubject(threadID string) string {
	return fmt.Sprintf("%s.replies.%s", SubjectPrefix, subjectToken(threadID))
}

// PublishQuestion publishes a question for the consumer to answer.
func (m *StreamManager) PublishQuestion(ctx context.Context, ev model.QuestionEvent) (uint64, error) {
	data, err := encodeQuestion(ev)
	if err != nil {
		return 0, err
	}

	ack, err := m.client.JetStream().Publish(ctx, QuestionsSubject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish question: %w", err)
	}

	return ack.Sequence, nil
}

// Ask publishes a question and waits for the next reply on its thread.
// The reply subscription starts before the question is published, so a
// fast answer is not missed. ctx bounds the wait.
func (m *StreamManager) Ask(ctx context.Context, ev model.QuestionEvent) (*model.Reply, error) {
	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ReplySubject(ev.ThreadID)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to replies: %w", err)
	}

	seq, err := m.PublishQuestion(ctx, ev)
	if err != nil {
		return nil, err
	}
	m.client.logger.Debug("question published", zap.Uint64("seq", seq), zap.String("thread_id", ev.ThreadID))

	for {
		wait := 30 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			wait = time.Until(deadline)
		}
		if wait <= 0 {
			return nil, context.DeadlineExceeded
		}

		msg, err := consumer.Next(jetstream.FetchMaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to receive reply: %w", err)
		}

		reply, err := decodeReply(msg.Data())
		if err != nil {
			m.client.logger.Warn("skipping invalid reply", zap.Error(err))
			continue
		}
		return reply, nil
	}
}

// PublishReply publishes a reply on its thread's subject.
func (m *StreamManager) PublishReply(ctx context.Context, reply *model.Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, ReplySubject(reply.ThreadID), data); err != nil {
		metrics.RepliesPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish reply: %w", err)
	}

	metrics.RepliesPublishedTotal.WithLabelValues(string(reply.Status)).Inc()
	return nil
}

// ConsumeQuestions answers questions from the durable questions consumer
// until the returned context is stopped. A message is acked once handled,
// nacked when the handler fails, and terminated when it cannot be decoded.
func (m *StreamManager) ConsumeQuestions(ctx context.Context, handle QuestionHandler) (jetstream.ConsumeContext, error) {
	log := m.client.logger

	consumer, err := m.client.JetStream().CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       QuestionsConsumer,
		FilterSubject: QuestionsSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    3,
		Description:   "Answers inbound data questions",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ev, err := decodeQuestion(msg.Data())
		if err != nil {
			log.Warn("dropping invalid question", zap.Error(err))
			_ = msg.Term()
			return
		}

		if err := handle(ctx, ev); err != nil {
			log.Error("failed to handle question", zap.String("thread_id", ev.ThreadID), zap.Error(err))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume questions: %w", err)
	}

	return cc, nil
}

func encodeQuestion(ev model.QuestionEvent) ([]byte, error) {
	if strings.TrimSpace(ev.Text) == "" || ev.ThreadID == "" {
		return nil, errors.New("question requires text and thread_id")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question: %w", err)
	}
	return data, nil
}

func decodeReply(data []byte) (*model.Reply, error) {
	var reply model.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if reply.Status == "" {
		return nil, errors.New("reply has no status")
	}
	return &reply, nil
}

func decodeQuestion(data []byte) (model.QuestionEvent, error) {
	var ev model.QuestionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode question: %w", err)
	}
	if strings.TrimSpace(ev.Text) == "" || ev.ThreadID == "" {
		return ev, errors.New("question requires text and thread_id")
	}
	return ev, nil
}
