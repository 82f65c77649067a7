package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/data-question-platform/internal/agent"
	"github.com/capitalize-ai/data-question-platform/internal/history"
	"github.com/capitalize-ai/data-question-platform/internal/middleware"
	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/internal/service"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

type stubAnswerer struct {
	answer *model.Answer
	err    error
}

func (s stubAnswerer) AnswerWithProgress(_ context.Context, _, _ string, progress agent.ProgressFunc) (*model.Answer, error) {
	if progress != nil {
		progress(model.ProgressEvent{Stage: model.StageAsk, Attempt: 1})
		progress(model.ProgressEvent{Stage: model.StageExecute, Attempt: 1, Query: s.answer.Query})
	}
	return s.answer, s.err
}

type readyFlag bool

func (r readyFlag) Ready() bool { return bool(r) }

var usersAnswer = &model.Answer{
	Query:     "SELECT TOP 5 * FROM users",
	HasResult: true,
	Rows: model.RowSet{
		model.NewRow([]string{"id", "name"}, []any{1, "alice"}),
	},
}

func newTestRouter(t *testing.T, answerer service.Answerer) http.Handler {
	t.Helper()
	store, err := history.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := logger.NewNop()
	svc := service.NewQuestionService(answerer, store, nil, log)
	questions := NewQuestionHandler(svc, log)
	streams := NewStreamHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.Logging(log))
	r.Post("/questions", questions.Ask)
	r.Post("/questions/stream", streams.StreamQuestion)
	r.Get("/conversations/{threadId}/history", questions.History)
	return r
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAskQuestion(t *testing.T) {
	router := newTestRouter(t, stubAnswerer{answer: usersAnswer})

	rec := postJSON(router, "/questions", `{"text":"top 5 users","thread_id":"T1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply model.Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.Equal(t, model.ReplyAnswered, reply.Status)
	assert.Equal(t, "T1", reply.ThreadID)
	assert.Equal(t, "id,name\n1,alice", reply.CSV)

	hist := httptest.NewRecorder()
	router.ServeHTTP(hist, httptest.NewRequest(http.MethodGet, "/conversations/T1/history?limit=5", nil))
	require.Equal(t, http.StatusOK, hist.Code)

	var resp model.ListHistoryResponse
	require.NoError(t, json.NewDecoder(hist.Body).Decode(&resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "top 5 users", resp.Entries[0].Reply.Question)
}

func TestAskQuestionStartsThread(t *testing.T) {
	router := newTestRouter(t, stubAnswerer{answer: usersAnswer})

	rec := postJSON(router, "/questions", `{"text":"top 5 users"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply model.Reply
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reply))
	assert.NotEmpty(t, reply.ThreadID)
}

func TestAskQuestionErrors(t *testing.T) {
	router := newTestRouter(t, stubAnswerer{answer: usersAnswer})

	assert.Equal(t, http.StatusBadRequest, postJSON(router, "/questions", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(router, "/questions", `{"text":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(router, "/questions", `{"text":"q","thread_id":"a b"}`).Code)

	failing := newTestRouter(t, stubAnswerer{answer: usersAnswer, err: errors.New("llm down")})
	assert.Equal(t, http.StatusBadGateway, postJSON(failing, "/questions", `{"text":"q","thread_id":"T1"}`).Code)
}

func TestHistoryNotFound(t *testing.T) {
	router := newTestRouter(t, stubAnswerer{answer: usersAnswer})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/unknown/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamQuestion(t *testing.T) {
	router := newTestRouter(t, stubAnswerer{answer: usersAnswer})

	rec := postJSON(router, "/questions/stream", `{"text":"top 5 users","thread_id":"T1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	connected := strings.Index(body, "event: connected")
	progress := strings.Index(body, "event: progress")
	reply := strings.Index(body, "event: reply")
	done := strings.Index(body, "event: done")

	assert.GreaterOrEqual(t, connected, 0)
	assert.Greater(t, progress, connected)
	assert.Greater(t, reply, progress)
	assert.Greater(t, done, reply)
	assert.Equal(t, 2, strings.Count(body, "event: progress"))
	assert.Contains(t, body, `"status":"answered"`)
}

func TestStreamQuestionError(t *testing.T) {
	router := newTestRouter(t, stubAnswerer{answer: usersAnswer, err: errors.New("llm down")})

	rec := postJSON(router, "/questions/stream", `{"text":"q","thread_id":"T1"}`)
	assert.Contains(t, rec.Body.String(), "event: error")
	assert.NotContains(t, rec.Body.String(), "event: reply")
}

func TestReady(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(readyFlag(true), nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(readyFlag(false), nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(nil, nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyChecksBroker(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("NATS not connected") })

	rec := httptest.NewRecorder()
	NewHealthHandler(readyFlag(true), down).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "NATS not connected")

	up := pingFunc(func(context.Context) error { return nil })
	rec = httptest.NewRecorder()
	NewHealthHandler(readyFlag(true), up).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
