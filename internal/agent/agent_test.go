package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/data-question-platform/internal/llm"
	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

type sentTurn struct {
	prompt string
	parent string
}

// fakeLLM replies with scripted texts in order.
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	sent    []sentTurn
	err     error
	expired map[string]bool
}

func (f *fakeLLM) SendTurn(_ context.Context, prompt, previousTurnID string) (*model.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.expired[previousTurnID] {
		return nil, fmt.Errorf("%w: %s", model.ErrTurnNotFound, previousTurnID)
	}
	f.sent = append(f.sent, sentTurn{prompt: prompt, parent: previousTurnID})
	n := len(f.sent)
	text := ""
	if n <= len(f.replies) {
		text = f.replies[n-1]
	}
	return &model.Turn{ID: fmt.Sprintf("turn-%d", n), ParentID: previousTurnID, Prompt: prompt, Text: text}, nil
}

// fakeSource fails the first len(execErrs) executions with the given errors
// (nil entries succeed).
type fakeSource struct {
	readyErr       error
	execErrs       []error
	fix            *model.Answer
	fixErr         error
	contextPrompts int
	queries        []string
	fixed          []string
}

var sampleRows = model.RowSet{
	model.NewRow([]string{"id", "name"}, []any{1, "alice"}),
}

func (f *fakeSource) AwaitReady(context.Context) error { return f.readyErr }

func (f *fakeSource) ContextPrompt(tableIDs []string) string {
	f.contextPrompts++
	return fmt.Sprintf("context for %v", tableIDs)
}

func (f *fakeSource) QuestionPrompt(question string) string { return "question: " + question }

func (f *fakeSource) RunQuery(_ context.Context, query string) (model.RowSet, error) {
	i := len(f.queries)
	f.queries = append(f.queries, query)
	if i < len(f.execErrs) && f.execErrs[i] != nil {
		return nil, f.execErrs[i]
	}
	return sampleRows, nil
}

func (f *fakeSource) TryFixAndRun(_ context.Context, query string) (*model.Answer, error) {
	f.fixed = append(f.fixed, query)
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	if f.fix != nil {
		return f.fix, nil
	}
	return &model.Answer{Query: query, HasResult: false, Err: "no fix"}, nil
}

type fakeIndex struct {
	ids []string
	err error
}

func (f fakeIndex) Search(context.Context, string) ([]string, error) { return f.ids, f.err }

func newTestAgent(src *fakeSource, llm *fakeLLM) *Agent {
	return New(src, fakeIndex{ids: []string{"dbo.users"}}, llm, NewContextStore(0), logger.NewNop())
}

func TestAnswerSuccess(t *testing.T) {
	src := &fakeSource{}
	llm := &fakeLLM{replies: []string{
		"Understood.",
		"Assuming users are all accounts.\n```sql\nSELECT * FROM users LIMIT 5\n```",
	}}
	a := newTestAgent(src, llm)

	answer, err := a.Answer(context.Background(), "top 5 users", "C1")
	require.NoError(t, err)

	assert.True(t, answer.HasResult)
	assert.Equal(t, "SELECT * FROM users LIMIT 5", answer.Query)
	assert.Equal(t, sampleRows, answer.Rows)
	assert.Empty(t, answer.Err)
	assert.Equal(t, "Assuming users are all accounts.", answer.Assumptions)

	require.Len(t, llm.sent, 2)
	assert.Equal(t, "context for [dbo.users]", llm.sent[0].prompt)
	assert.Empty(t, llm.sent[0].parent)
	assert.Equal(t, "question: top 5 users", llm.sent[1].prompt)
	assert.Equal(t, "turn-1", llm.sent[1].parent)

	last, ok := a.Store().LastTurn("C1")
	assert.True(t, ok)
	assert.Equal(t, "turn-2", last)
}

func TestAnswerProseOnlyNeedsClarification(t *testing.T) {
	src := &fakeSource{}
	llm := &fakeLLM{replies: []string{"ok", "Which region do you mean?"}}
	a := newTestAgent(src, llm)

	answer, err := a.Answer(context.Background(), "sales?", "C1")
	require.NoError(t, err)

	assert.False(t, answer.HasResult)
	assert.Empty(t, answer.Err)
	assert.Empty(t, answer.Query)
	assert.Empty(t, src.queries)
}

func TestAnswerRejectsNonReadQuery(t *testing.T) {
	src := &fakeSource{}
	llm := &fakeLLM{replies: []string{"ok", "```sql\nDELETE FROM users\n```"}}
	a := newTestAgent(src, llm)

	answer, err := a.Answer(context.Background(), "remove users", "C1")
	require.NoError(t, err)

	assert.False(t, answer.HasResult)
	assert.Empty(t, answer.Err)
	assert.Empty(t, src.queries)
}

func TestAnswerAcceptsCommonTableExpression(t *testing.T) {
	src := &fakeSource{}
	llm := &fakeLLM{replies: []string{"ok", "```sql\nWITH t AS (SELECT 1 AS x) SELECT x FROM t\n```"}}
	a := newTestAgent(src, llm)

	answer, err := a.Answer(context.Background(), "x?", "C1")
	require.NoError(t, err)

	assert.True(t, answer.HasResult)
	assert.Equal(t, []string{"WITH t AS (SELECT 1 AS x) SELECT x FROM t"}, src.queries)
}

func TestAnswerFailsTwiceThenUnparsable(t *testing.T) {
	src := &fakeSource{execErrs: []error{errors.New("invalid column a"), errors.New("invalid column b")}}
	llm := &fakeLLM{replies: []string{
		"ok",
		"```sql\nSELECT a FROM t\n```",
		"```sql\nSELECT b FROM t\n```",
		"I am not sure how to write this query.",
	}}
	a := newTestAgent(src, llm)

	answer, err := a.Answer(context.Background(), "q", "C1")
	require.NoError(t, err)

	assert.False(t, answer.HasResult)
	assert.Equal(t, "invalid column b", answer.Err)
	assert.Equal(t, "SELECT b FROM t", answer.Query)
	assert.Equal(t, []string{"SELECT a FROM t", "SELECT b FROM t"}, src.fixed)

	require.Len(t, llm.sent, 4)
	assert.Contains(t, llm.sent[2].prompt, "SELECT a FROM t")
	assert.Contains(t, llm.sent[2].prompt, "invalid column a")
	assert.Equal(t, "turn-2", llm.sent[2].parent)
	assert.Equal(t, "turn-3", llm.sent[3].parent)
}

func TestAnswerAutoFixShortCircuits(t *testing.T) {
	fixed := &model.Answer{Query: "SELECT TOP 5 * FROM users", HasResult: true, Rows: sampleRows}
	src := &fakeSource{execErrs: []error{errors.New("Incorrect syntax near 'LIMIT'")}, fix: fixed}
	llm := &fakeLLM{replies: []string{"ok", "```sql\nSELECT * FROM users LIMIT 5\n```"}}
	a := newTestAgent(src, llm)

	answer, err := a.Answer(context.Background(), "top 5 users", "C1")
	require.NoError(t, err)

	assert.Same(t, fixed, answer)
	assert.Len(t, llm.sent, 2)
}

func TestAnswerBoundsRoundTrips(t *testing.T) {
	src := &fakeSource{execErrs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3"), errors.New("e4")}}
	llm := &fakeLLM{replies: []string{
		"ok",
		"```sql\nSELECT 1\n```",
		"```sql\nSELECT 2\n```",
		"```sql\nSELECT 3\n```",
		"```sql\nSELECT 4\n```",
	}}
	a := newTestAgent(src, llm)

	var stages []model.Stage
	answer, err := a.AnswerWithProgress(context.Background(), "q", "C1", func(ev model.ProgressEvent) {
		stages = append(stages, ev.Stage)
	})
	require.NoError(t, err)

	assert.False(t, answer.HasResult)
	assert.Equal(t, "e3", answer.Err)
	assert.Equal(t, "SELECT 3", answer.Query)
	// one context turn plus MaxAttempts question/correction turns
	assert.Len(t, llm.sent, 1+MaxAttempts)
	assert.Len(t, src.queries, MaxAttempts)
	assert.Equal(t, model.StageExhausted, stages[len(stages)-1])
}

func TestAnswerSendsContextOncePerConversation(t *testing.T) {
	src := &fakeSource{}
	llm := &fakeLLM{replies: []string{
		"ok",
		"```sql\nSELECT 1\n```",
		"```sql\nSELECT 2\n```",
	}}
	a := newTestAgent(src, llm)

	_, err := a.Answer(context.Background(), "first", "C1")
	require.NoError(t, err)
	_, err = a.Answer(context.Background(), "second", "C1")
	require.NoError(t, err)

	assert.Equal(t, 1, src.contextPrompts)
	require.Len(t, llm.sent, 3)
	assert.Equal(t, "turn-2", llm.sent[2].parent)
}

func TestAnswerKeepsConversationsApart(t *testing.T) {
	src := &fakeSource{}
	llm := &fakeLLM{replies: []string{
		"ok",
		"```sql\nSELECT 1\n```",
		"ok",
		"```sql\nSELECT 2\n```",
	}}
	a := newTestAgent(src, llm)

	_, err := a.Answer(context.Background(), "first", "C1")
	require.NoError(t, err)
	_, err = a.Answer(context.Background(), "second", "C2")
	require.NoError(t, err)

	assert.Equal(t, 2, src.contextPrompts)
	assert.Empty(t, llm.sent[2].parent)
	assert.Equal(t, "turn-3", llm.sent[3].parent)
}

func TestAnswerProgressOnSuccess(t *testing.T) {
	src := &fakeSource{}
	llm := &fakeLLM{replies: []string{"ok", "```sql\nSELECT 1\n```"}}
	a := newTestAgent(src, llm)

	var stages []model.Stage
	_, err := a.AnswerWithProgress(context.Background(), "q", "C1", func(ev model.ProgressEvent) {
		stages = append(stages, ev.Stage)
	})
	require.NoError(t, err)

	assert.Equal(t, []model.Stage{
		model.StageContext,
		model.StageAsk,
		model.StageExecute,
		model.StageAnswered,
	}, stages)
}

func TestAnswerPropagatesUpstreamFailures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("data source not ready", func(t *testing.T) {
		a := newTestAgent(&fakeSource{readyErr: boom}, &fakeLLM{})
		_, err := a.Answer(context.Background(), "q", "C1")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("index", func(t *testing.T) {
		a := New(&fakeSource{}, fakeIndex{err: boom}, &fakeLLM{}, NewContextStore(0), logger.NewNop())
		_, err := a.Answer(context.Background(), "q", "C1")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("llm", func(t *testing.T) {
		a := newTestAgent(&fakeSource{}, &fakeLLM{err: boom})
		_, err := a.Answer(context.Background(), "q", "C1")
		assert.ErrorIs(t, err, boom)
		_, ok := a.Store().LastTurn("C1")
		assert.False(t, ok)
	})

	t.Run("auto-fix", func(t *testing.T) {
		src := &fakeSource{execErrs: []error{errors.New("bad")}, fixErr: boom}
		llm := &fakeLLM{replies: []string{"ok", "```sql\nSELECT 1\n```"}}
		_, err := newTestAgent(src, llm).Answer(context.Background(), "q", "C1")
		assert.ErrorIs(t, err, boom)
	})
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateSuccess, StateFixed, StateNotAQuery, StateExhausted} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []State{StateAskQuestion, StateInspect, StateExecute, StateAutoFix, StateCorrectAndRetry} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.Equal(t, "unknown", State(42).String())
}

func TestAnswerResendsContextWhenTurnsExpire(t *testing.T) {
	src := &fakeSource{}
	sql := "```sql\nSELECT * FROM users\n```"
	fake := &fakeLLM{replies: []string{"ok", sql, "ok", sql}}
	a := newTestAgent(src, fake)

	_, err := a.Answer(context.Background(), "users", "C1")
	require.NoError(t, err)

	fake.expired = map[string]bool{"turn-2": true}
	answer, err := a.Answer(context.Background(), "users again", "C1")
	require.NoError(t, err)
	assert.True(t, answer.HasResult)

	require.Len(t, fake.sent, 4)
	assert.Equal(t, "context for [dbo.users]", fake.sent[2].prompt)
	assert.Empty(t, fake.sent[2].parent)
	assert.Equal(t, "turn-3", fake.sent[3].parent)
	assert.Equal(t, 2, src.contextPrompts)

	last, ok := a.Store().LastTurn("C1")
	require.True(t, ok)
	assert.Equal(t, "turn-4", last)
}

func TestAnswerFailsWhenFreshContextIsAlsoUnknown(t *testing.T) {
	src := &fakeSource{}
	fake := &fakeLLM{replies: []string{"ok", "```sql\nSELECT 1\n```", "ok"}}
	a := newTestAgent(src, fake)

	_, err := a.Answer(context.Background(), "q", "C1")
	require.NoError(t, err)

	fake.expired = map[string]bool{"turn-2": true, "turn-3": true}
	_, err = a.Answer(context.Background(), "q", "C1")
	assert.ErrorIs(t, err, model.ErrTurnNotFound)
}

// scriptedClient is a completion client returning replies in order.
type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.replies[c.calls%len(c.replies)]
	c.calls++
	return &llm.CompletionResponse{Content: text, Model: "scripted-1"}, nil
}

func TestAnswerOutlivesTurnTTL(t *testing.T) {
	client := &scriptedClient{replies: []string{"ok", "```sql\nSELECT * FROM users\n```"}}
	turns := llm.NewTurnClient(client, llm.TurnConfig{Model: "scripted-1", TTL: 50 * time.Millisecond}, logger.NewNop())
	src := &fakeSource{}
	a := New(src, fakeIndex{ids: []string{"dbo.users"}}, turns, NewContextStore(0), logger.NewNop())

	_, err := a.Answer(context.Background(), "users", "C1")
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	answer, err := a.Answer(context.Background(), "users", "C1")
	require.NoError(t, err)
	assert.True(t, answer.HasResult)
	assert.Equal(t, 2, src.contextPrompts)
}
