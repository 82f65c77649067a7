package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

type fakeClient struct {
	requests []*CompletionRequest
	err      error
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &CompletionResponse{
		Content:   fmt.Sprintf("reply %d", len(f.requests)),
		Model:     "fake-1",
		TokensIn:  10,
		TokensOut: 5,
	}, nil
}

func newTestTurnClient(client Client) *TurnClient {
	return NewTurnClient(client, TurnConfig{Model: "fake-1", MaxTokens: 256}, logger.NewNop())
}

func TestSendTurnWithoutParent(t *testing.T) {
	fc := &fakeClient{}
	tc := newTestTurnClient(fc)

	turn, err := tc.SendTurn(context.Background(), "describe the schema", "")
	require.NoError(t, err)

	assert.NotEmpty(t, turn.ID)
	assert.Empty(t, turn.ParentID)
	assert.Equal(t, "reply 1", turn.Text)
	assert.Equal(t, 10, turn.TokensIn)

	require.Len(t, fc.requests, 1)
	assert.Equal(t, "fake-1", fc.requests[0].Model)
	assert.Equal(t, 256, fc.requests[0].MaxTokens)
	assert.Equal(t, []ChatMessage{{Role: "user", Content: "describe the schema"}}, fc.requests[0].Messages)

	stored, ok := tc.Turn(turn.ID)
	require.True(t, ok)
	assert.Equal(t, turn, stored)
}

func TestSendTurnReplaysAncestors(t *testing.T) {
	fc := &fakeClient{}
	tc := newTestTurnClient(fc)
	ctx := context.Background()

	first, err := tc.SendTurn(ctx, "context", "")
	require.NoError(t, err)
	second, err := tc.SendTurn(ctx, "question", first.ID)
	require.NoError(t, err)
	third, err := tc.SendTurn(ctx, "correction", second.ID)
	require.NoError(t, err)

	assert.Equal(t, second.ID, third.ParentID)
	assert.NotEqual(t, first.ID, second.ID)

	assert.Equal(t, []ChatMessage{
		{Role: "user", Content: "context"},
		{Role: "assistant", Content: "reply 1"},
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "reply 2"},
		{Role: "user", Content: "correction"},
	}, fc.requests[2].Messages)
}

func TestSendTurnUnknownParent(t *testing.T) {
	fc := &fakeClient{}
	tc := newTestTurnClient(fc)

	_, err := tc.SendTurn(context.Background(), "question", "missing")
	assert.ErrorIs(t, err, ErrTurnNotFound)
	assert.Empty(t, fc.requests)
}

func TestSendTurnClientError(t *testing.T) {
	boom := errors.New("rate limited")
	tc := newTestTurnClient(&fakeClient{err: boom})

	_, err := tc.SendTurn(context.Background(), "question", "")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, tc.turns.ItemCount())
}

func TestNewClientUnknownProvider(t *testing.T) {
	_, err := NewClient("mystery", "key")
	assert.Error(t, err)

	_, err = NewClient(ProviderOpenAI, "")
	assert.Error(t, err)
}
