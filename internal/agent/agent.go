package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
	"github.com/capitalize-ai/data-question-platform/pkg/metrics"
)

var tracer = otel.Tracer("data-question-platform/agent")

// Agent answers questions about a data source.
type Agent struct {
	source DataSource
	index  ContextIndex
	llm    TurnSender
	store  *ContextStore
	logger *logger.Logger
}

// New creates an agent. The store is shared across all conversations.
func New(source DataSource, index ContextIndex, llm TurnSender, store *ContextStore, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.Global()
	}
	return &Agent{
		source: source,
		index:  index,
		llm:    llm,
		store:  store,
		logger: log.Named("agent"),
	}
}

// Store returns the agent's conversation store.
func (a *Agent) Store() *ContextStore {
	return a.store
}

// Answer answers a question within a conversation.
func (a *Agent) Answer(ctx context.Context, question, conversationID string) (*model.Answer, error) {
	return a.AnswerWithProgress(ctx, question, conversationID, nil)
}

// AnswerWithProgress is Answer with a callback for each loop transition.
// Errors returned are failures of a collaborator; a query that could not be
// produced or executed is reported through the Answer instead.
func (a *Agent) AnswerWithProgress(ctx context.Context, question, conversationID string, progress ProgressFunc) (*model.Answer, error) {
	ctx, span := tracer.Start(ctx, "agent.Answer", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	r := &run{
		agent:          a,
		question:       question,
		conversationID: conversationID,
		progress:       progress,
		logger:         a.logger.WithConversation(conversationID),
	}

	answer, state, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordQuestion("error")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("agent.final_state", state.String()),
		attribute.Int("agent.attempts", r.attempt),
		attribute.Bool("agent.has_result", answer.HasResult),
	)
	metrics.RecordQuestion(state.String())
	return answer, nil
}

// run holds the state of one Answer call.
type run struct {
	agent          *Agent
	question       string
	conversationID string
	progress       ProgressFunc
	logger         *logger.Logger

	tableIDs []string
	resent   bool

	prompt  string
	turn    *model.Turn
	attempt int
	query   string
	execErr error
	lastErr string
	result  *model.Answer
}

func (r *run) execute(ctx context.Context) (*model.Answer, State, error) {
	a := r.agent

	if err := a.source.AwaitReady(ctx); err != nil {
		return nil, 0, fmt.Errorf("data source not ready: %w", err)
	}

	tableIDs, err := a.index.Search(ctx, r.question)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search context index: %w", err)
	}

	r.tableIDs = tableIDs
	if err := r.ensureContext(ctx); err != nil {
		return nil, 0, err
	}

	r.prompt = a.source.QuestionPrompt(r.question)
	r.logger.Debug("question prompt", zap.String("prompt", r.prompt))

	state := StateAskQuestion
	for !state.Terminal() {
		next, err := r.step(ctx, state)
		if err != nil {
			return nil, state, err
		}
		r.logger.Debug("state transition",
			zap.Stringer("from", state),
			zap.Stringer("to", next),
			zap.Int("attempt", r.attempt),
		)
		state = next
	}

	return r.finish(state), state, nil
}

func (r *run) ensureContext(ctx context.Context) error {
	a := r.agent
	if _, ok := a.store.LastTurn(r.conversationID); !ok {
		r.emit(model.ProgressEvent{Stage: model.StageContext})
	}
	return a.store.EnsureContext(ctx, r.conversationID, func() string {
		prompt := a.source.ContextPrompt(r.tableIDs)
		r.logger.Debug("context prompt", zap.String("prompt", prompt))
		return prompt
	}, a.llm.SendTurn)
}

func (r *run) step(ctx context.Context, state State) (State, error) {
	switch state {
	case StateAskQuestion:
		return r.ask(ctx)
	case StateInspect:
		return r.inspect(), nil
	case StateExecute:
		return r.runQuery(ctx), nil
	case StateAutoFix:
		return r.autoFix(ctx)
	case StateCorrectAndRetry:
		return r.correct(), nil
	default:
		return state, fmt.Errorf("no transition from state %s", state)
	}
}

func (r *run) ask(ctx context.Context) (State, error) {
	a := r.agent
	parent, _ := a.store.LastTurn(r.conversationID)

	r.attempt++
	r.emit(model.ProgressEvent{Stage: model.StageAsk, Attempt: r.attempt})

	turn, err := a.llm.SendTurn(ctx, r.prompt, parent)
	if errors.Is(err, model.ErrTurnNotFound) && !r.resent {
		// The transport expired the conversation's turns; start it over
		// with a fresh context turn instead of failing every later question.
		r.logger.Warn("conversation turns expired, resending context", zap.String("turn_id", parent))
		r.resent = true
		a.store.Forget(r.conversationID)
		if err := r.ensureContext(ctx); err != nil {
			return StateAskQuestion, err
		}
		parent, _ = a.store.LastTurn(r.conversationID)
		turn, err = a.llm.SendTurn(ctx, r.prompt, parent)
	}
	if err != nil {
		return StateAskQuestion, fmt.Errorf("failed to send turn %d: %w", r.attempt, err)
	}
	a.store.RecordTurn(r.conversationID, turn.ID)
	r.turn = turn

	r.logger.Debug("model response", zap.String("turn_id", turn.ID), zap.String("text", turn.Text))
	return StateInspect, nil
}

func (r *run) inspect() State {
	code, ok := ExtractCodeBlock(r.turn.Text)
	r.logger.Debug("extracted query", zap.String("query", code))
	if !ok || !isQuery(code) {
		return StateNotAQuery
	}
	r.query = strings.TrimSpace(code)
	return StateExecute
}

func (r *run) runQuery(ctx context.Context) State {
	r.logger.Info("executing generated query",
		zap.String("question", r.question),
		zap.String("query", r.query),
		zap.Int("attempt", r.attempt),
	)
	r.emit(model.ProgressEvent{Stage: model.StageExecute, Attempt: r.attempt, Query: r.query})

	rows, err := r.agent.source.RunQuery(ctx, r.query)
	if err != nil {
		metrics.RecordExecution("error")
		r.execErr = err
		r.logger.Debug("query failed", zap.Error(err))
		return StateAutoFix
	}

	metrics.RecordExecution("success")
	r.result = &model.Answer{
		Query:       r.query,
		HasResult:   true,
		Rows:        rows,
		Assumptions: ExtractAssumptions(r.turn.Text),
	}
	return StateSuccess
}

func (r *run) autoFix(ctx context.Context) (State, error) {
	r.emit(model.ProgressEvent{Stage: model.StageAutoFix, Attempt: r.attempt, Query: r.query})

	fixed, err := r.agent.source.TryFixAndRun(ctx, r.query)
	if err != nil {
		return StateAutoFix, fmt.Errorf("auto-fix failed: %w", err)
	}
	if fixed != nil && fixed.HasResult {
		metrics.RecordAutoFix("fixed")
		r.logger.Info("query fixed by data source", zap.String("query", fixed.Query))
		r.result = fixed
		return StateFixed, nil
	}

	metrics.RecordAutoFix("unfixed")
	r.lastErr = r.execErr.Error()
	return StateCorrectAndRetry, nil
}

func (r *run) correct() State {
	if r.attempt >= MaxAttempts {
		return StateExhausted
	}

	r.prompt = correctionPrompt(r.query, r.lastErr)
	r.logger.Debug("correction prompt", zap.String("prompt", r.prompt))
	r.emit(model.ProgressEvent{Stage: model.StageCorrect, Attempt: r.attempt, Query: r.query, Error: r.lastErr})
	return StateAskQuestion
}

func (r *run) finish(state State) *model.Answer {
	switch state {
	case StateSuccess, StateFixed:
		r.emit(model.ProgressEvent{Stage: model.StageAnswered, Attempt: r.attempt, Query: r.result.Query})
		return r.result
	case StateNotAQuery:
		r.logger.Info("model reply holds no query",
			zap.String("question", r.question),
			zap.String("last_error", r.lastErr),
		)
		r.emit(model.ProgressEvent{Stage: model.StageNoQuery, Attempt: r.attempt, Error: r.lastErr})
		return &model.Answer{Query: r.query, HasResult: false, Err: r.lastErr}
	default:
		query := r.query
		if query == "" {
			query = noQueryPlaceholder
		}
		r.logger.Info("not able to generate query",
			zap.String("question", r.question),
			zap.String("last_response", r.turn.Text),
			zap.String("last_error", r.lastErr),
		)
		r.emit(model.ProgressEvent{Stage: model.StageExhausted, Attempt: r.attempt, Query: query, Error: r.lastErr})
		return &model.Answer{Query: query, HasResult: false, Err: r.lastErr}
	}
}

func (r *run) emit(ev model.ProgressEvent) {
	if r.progress != nil {
		r.progress(ev)
	}
}

func correctionPrompt(query, errMsg string) string {
	return fmt.Sprintf("There was an error running the query:\n%s\nThe error message is: %s\nPlease correct it and send again.", query, errMsg)
}
