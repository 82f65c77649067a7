package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/history"
	"github.com/capitalize-ai/data-question-platform/internal/middleware"
	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/internal/service"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// QuestionHandler handles question endpoints.
type QuestionHandler struct {
	questions *service.QuestionService
	logger    *logger.Logger
}

// NewQuestionHandler creates a new question handler.
func NewQuestionHandler(questions *service.QuestionService, log *logger.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		logger:    log,
	}
}

// decodeQuestion reads and validates a question body. The tenant always
// comes from the authenticated request; a missing thread starts a new one.
func decodeQuestion(r *http.Request) (model.QuestionEvent, error) {
	var ev model.QuestionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		return ev, errors.New("invalid request body")
	}
	if err := middleware.ValidateQuestionText(ev.Text); err != nil {
		return ev, err
	}
	if ev.ThreadID == "" {
		ev.ThreadID = uuid.Must(uuid.NewV7()).String()
	}
	if err := middleware.ValidateThreadID(ev.ThreadID); err != nil {
		return ev, err
	}
	ev.TenantID = middleware.GetTenantID(r.Context())
	return ev, nil
}

// Ask handles POST /api/v1/questions
func (h *QuestionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ev, err := decodeQuestion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.questions.Ask(r.Context(), ev)
	if err != nil {
		h.logger.Error("failed to answer question",
			zap.String("thread_id", ev.ThreadID),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to answer question")
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// History handles GET /api/v1/conversations/{threadId}/history
func (h *QuestionHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threadID := chi.URLParam(r, "threadId")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxHistoryLimit {
			limit = parsed
		}
	}

	resp, err := h.questions.History(ctx, middleware.GetTenantID(ctx), threadID, limit)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to list history", zap.String("thread_id", threadID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
