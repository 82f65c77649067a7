// Package agent answers natural-language questions by asking a language model
// for SQL, running it against a data source and feeding failures back to the
// model until a query succeeds or the attempt bound is reached.
package agent

import (
	"context"

	"github.com/capitalize-ai/data-question-platform/internal/model"
)

// DataSource is the database the questions are about.
type DataSource interface {
	// AwaitReady blocks until the source has finished initializing.
	AwaitReady(ctx context.Context) error

	// ContextPrompt builds the prompt that gives the model schema background
	// for the given tables.
	ContextPrompt(tableIDs []string) string

	// QuestionPrompt builds the prompt for a single question.
	QuestionPrompt(question string) string

	// RunQuery executes a query. Any error is treated as an execution failure.
	RunQuery(ctx context.Context, query string) (model.RowSet, error)

	// TryFixAndRun attempts a best-effort repair of a failing query. A nil
	// error with HasResult=false means no fix worked.
	TryFixAndRun(ctx context.Context, query string) (*model.Answer, error)
}

// ContextIndex selects the tables relevant to a question.
type ContextIndex interface {
	Search(ctx context.Context, question string) ([]string, error)
}

// TurnSender sends a prompt to the language model, optionally threaded to a
// previous turn. An empty previousTurnID starts a new thread.
type TurnSender interface {
	SendTurn(ctx context.Context, prompt, previousTurnID string) (*model.Turn, error)
}

// SendFunc adapts TurnSender.SendTurn for the context store.
type SendFunc func(ctx context.Context, prompt, previousTurnID string) (*model.Turn, error)

// ProgressFunc receives loop transitions as they happen.
type ProgressFunc func(model.ProgressEvent)
