// Package app wires the data question components from configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/agent"
	"github.com/capitalize-ai/data-question-platform/internal/config"
	"github.com/capitalize-ai/data-question-platform/internal/datasource"
	"github.com/capitalize-ai/data-question-platform/internal/history"
	"github.com/capitalize-ai/data-question-platform/internal/index"
	"github.com/capitalize-ai/data-question-platform/internal/llm"
	natsclient "github.com/capitalize-ai/data-question-platform/internal/nats"
	"github.com/capitalize-ai/data-question-platform/internal/service"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

// App holds the long-lived components of a process.
type App struct {
	Source    *datasource.SQLServer
	Agent     *agent.Agent
	History   *history.Store
	Questions *service.QuestionService
	NATS      *natsclient.Client
	Streams   *natsclient.StreamManager

	logger *logger.Logger
}

// New builds the components described by cfg. NATS is connected only when
// cfg.NATSEnabled is set.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{logger: log}

	source, err := datasource.NewSQLServer(datasource.Config{
		Server:       cfg.SQLServer,
		Port:         cfg.SQLPort,
		Database:     cfg.SQLDatabase,
		User:         cfg.SQLUser,
		Password:     cfg.SQLPassword,
		Encrypt:      cfg.SQLEncrypt,
		SchemaFilter: cfg.SQLSchemaFilter,
	}, log)
	if err != nil {
		return nil, err
	}
	a.Source = source

	client, err := llm.NewClient(llm.Provider(cfg.LLMProvider), cfg.LLMAPIKey())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	turns := llm.NewTurnClient(client, llm.TurnConfig{
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
		TTL:       cfg.TurnTTL,
	}, log)

	var idx agent.ContextIndex
	switch index.Mode(cfg.IndexMode) {
	case index.ModeKeyword:
		idx = index.NewKeyword(source, cfg.IndexMaxTables)
	default:
		idx = index.NewStatic(source)
	}

	a.Agent = agent.New(source, idx, turns, agent.NewContextStore(cfg.ContextTTL), log)

	a.History, err = history.Open(cfg.HistoryPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher service.ReplyPublisher
	if cfg.NATSEnabled {
		a.NATS, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Streams = natsclient.NewStreamManager(a.NATS)
		if err := a.Streams.EnsureStream(ctx); err != nil {
			a.Close()
			return nil, err
		}
		publisher = a.Streams
	}

	a.Questions = service.NewQuestionService(a.Agent, a.History, publisher, log)

	log.Info("components ready",
		zap.String("llm_provider", client.Name()),
		zap.String("index_mode", cfg.IndexMode),
		zap.Bool("nats", cfg.NATSEnabled),
		zap.Bool("persistent_history", cfg.HistoryPath != ""),
	)
	return a, nil
}

// Close releases every component that was opened.
func (a *App) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			a.logger.Warn("failed to close history", zap.Error(err))
		}
	}
	if a.Source != nil {
		if err := a.Source.Close(); err != nil {
			a.logger.Warn("failed to close data source", zap.Error(err))
		}
	}
}
