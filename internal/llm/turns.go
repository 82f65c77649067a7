package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/model"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
	"github.com/capitalize-ai/data-question-platform/pkg/metrics"
)

// ErrTurnNotFound is returned when a follow-up names an unknown turn.
var ErrTurnNotFound = model.ErrTurnNotFound

// TurnConfig configures a TurnClient.
type TurnConfig struct {
	Model     string
	MaxTokens int
	// TTL is how long an idle turn is kept. Zero keeps turns forever.
	TTL time.Duration
}

// TurnClient gives a stateless completion client threaded conversations.
// Each turn is stored under a generated ID; a follow-up replays the chain
// of its ancestors as chat history.
type TurnClient struct {
	client    Client
	model     string
	maxTokens int
	turns     *cache.Cache
	logger    *logger.Logger
}

// NewTurnClient creates a turn client on top of client.
func NewTurnClient(client Client, cfg TurnConfig, log *logger.Logger) *TurnClient {
	if log == nil {
		log = logger.Global()
	}
	expiration := cache.NoExpiration
	var cleanup time.Duration
	if cfg.TTL > 0 {
		expiration = cfg.TTL
		cleanup = cfg.TTL
	}
	return &TurnClient{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		turns:     cache.New(expiration, cleanup),
		logger:    log.Named("llm"),
	}
}

// SendTurn sends prompt as a new user message. When previousTurnID is set
// the conversation leading up to that turn is sent along with it.
func (c *TurnClient) SendTurn(ctx context.Context, prompt, previousTurnID string) (*model.Turn, error) {
	messages, err := c.history(previousTurnID)
	if err != nil {
		return nil, err
	}
	messages = append(messages, ChatMessage{Role: string(model.RoleUser), Content: prompt})

	start := time.Now()
	resp, err := c.client.Complete(ctx, &CompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		metrics.RecordLLMTurn(c.modelLabel(), "error", time.Since(start).Seconds(), 0, 0)
		return nil, fmt.Errorf("%s completion: %w", c.client.Name(), err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate turn id: %w", err)
	}

	turn := &model.Turn{
		ID:         id.String(),
		ParentID:   previousTurnID,
		Prompt:     prompt,
		Text:       resp.Content,
		Model:      resp.Model,
		TokensIn:   resp.TokensIn,
		TokensOut:  resp.TokensOut,
		LatencyMs:  resp.LatencyMs,
		StopReason: resp.StopReason,
		CreatedAt:  time.Now().UTC(),
	}
	c.turns.SetDefault(turn.ID, turn)

	metrics.RecordLLMTurn(c.modelLabel(), "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	c.logger.Debug("turn completed",
		zap.String("turn_id", turn.ID),
		zap.String("parent_id", previousTurnID),
		zap.Int("history", len(messages)-1),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)

	return turn, nil
}

// Turn returns a stored turn.
func (c *TurnClient) Turn(id string) (*model.Turn, bool) {
	v, ok := c.turns.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*model.Turn), true
}

// history rebuilds the chat messages ending at turn id, oldest first.
// Every ancestor is touched so an active chain does not expire piecemeal.
func (c *TurnClient) history(id string) ([]ChatMessage, error) {
	var chain []*model.Turn
	for id != "" {
		turn, ok := c.Turn(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTurnNotFound, id)
		}
		if len(chain) > c.turns.ItemCount() {
			return nil, fmt.Errorf("turn chain at %s does not terminate", id)
		}
		c.turns.SetDefault(id, turn)
		chain = append(chain, turn)
		id = turn.ParentID
	}

	messages := make([]ChatMessage, 0, 2*len(chain)+1)
	for i := len(chain) - 1; i >= 0; i-- {
		messages = append(messages,
			ChatMessage{Role: string(model.RoleUser), Content: chain[i].Prompt},
			ChatMessage{Role: string(model.RoleAssistant), Content: chain[i].Text},
		)
	}
	return messages, nil
}

func (c *TurnClient) modelLabel() string {
	if c.model == "" {
		return c.client.Name()
	}
	return c.model
}
