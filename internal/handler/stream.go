package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/internal/service"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
	"github.com/capitalize-ai/data-question-platform/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	questions *service.QuestionService
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(questions *service.QuestionService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		questions: questions,
		logger:    log,
		heartbeat: 15 * time.Second,
	}
}

type askResult struct {
	reply *model.Reply
	err   error
}

// StreamQuestion handles POST /api/v1/questions/stream
// It emits a progress event per agent step and finishes with the reply.
func (h *StreamHandler) StreamQuestion(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ev, err := decodeQuestion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	_ = sendSSEEvent(w, flusher, "connected", map[string]string{
		"thread_id": ev.ThreadID,
	})

	// Progress is produced on the answering goroutine; only this goroutine
	// writes to the response.
	progress := make(chan model.ProgressEvent, 16)
	done := make(chan askResult, 1)
	go func() {
		reply, err := h.questions.AskWithProgress(ctx, ev, func(p model.ProgressEvent) {
			select {
			case progress <- p:
			case <-ctx.Done():
			}
		})
		done <- askResult{reply: reply, err: err}
	}()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", zap.String("thread_id", ev.ThreadID))
			return

		case p := <-progress:
			_ = sendSSEEvent(w, flusher, "progress", p)

		case <-heartbeat.C:
			_ = sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})

		case res := <-done:
			h.drain(w, flusher, progress)
			if res.err != nil {
				h.logger.Error("failed to answer streamed question", zap.String("thread_id", ev.ThreadID), zap.Error(res.err))
				_ = sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
					Code:    "answer_error",
					Message: "failed to answer question",
				})
				return
			}
			_ = sendSSEEvent(w, flusher, "reply", res.reply)
			_ = sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
			return
		}
	}
}

// drain forwards progress events that were queued before the answer finished.
func (h *StreamHandler) drain(w http.ResponseWriter, flusher http.Flusher, progress <-chan model.ProgressEvent) {
	for {
		select {
		case p := <-progress:
			_ = sendSSEEvent(w, flusher, "progress", p)
		default:
			return
		}
	}
}
