package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/data-question-platform/internal/app"
	"github.com/capitalize-ai/data-question-platform/internal/config"
	"github.com/capitalize-ai/data-question-platform/internal/model"
	natsclient "github.com/capitalize-ai/data-question-platform/internal/nats"
	"github.com/capitalize-ai/data-question-platform/internal/table"
	"github.com/capitalize-ai/data-question-platform/pkg/logger"
)

func newAskCommand() *cobra.Command {
	var (
		threadID string
		asCSV    bool
		verbose  bool
		viaNATS  bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question against the configured database",
		Long: `Answer a question against the configured database.

By default the question is answered in this process, so every invocation
starts a new conversation and --thread only groups the stored history.
With --via-nats the question is sent to a running API server, which keeps
conversations between invocations: asking again on the same --thread is
a follow-up.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewNop()
			if verbose {
				l, err := logger.NewDevelopment()
				if err != nil {
					return err
				}
				log = l
			}
			logger.SetGlobal(log)

			cfg := config.Load()
			ev := model.QuestionEvent{Text: strings.Join(args, " "), ThreadID: threadID}

			var (
				reply *model.Reply
				err   error
			)
			if viaNATS {
				reply, err = askViaNATS(cmd.Context(), cfg, ev, timeout, log)
			} else {
				reply, err = askLocal(cmd.Context(), cfg, ev, verbose, log)
			}
			if err != nil {
				return err
			}

			return printReply(cmd, reply, asCSV)
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "cli", "Conversation thread; follow-ups keep context only with --via-nats")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Print every row as CSV instead of the table")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log each step of the agent")
	cmd.Flags().BoolVar(&viaNATS, "via-nats", false, "Send the question to a running server over NATS (NATS_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for a reply with --via-nats")
	return cmd
}

func askLocal(ctx context.Context, cfg *config.Config, ev model.QuestionEvent, verbose bool, log *logger.Logger) (*model.Reply, error) {
	cfg.NATSEnabled = false
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	components, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	return components.Questions.AskWithProgress(ctx, ev, func(p model.ProgressEvent) {
		if verbose {
			log.Info("progress", zap.String("stage", string(p.Stage)), zap.Int("attempt", p.Attempt))
		}
	})
}

func askViaNATS(ctx context.Context, cfg *config.Config, ev model.QuestionEvent, timeout time.Duration, log *logger.Logger) (*model.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	streams := natsclient.NewStreamManager(client)
	if err := streams.EnsureStream(ctx); err != nil {
		return nil, err
	}

	reply, err := streams.Ask(ctx, ev)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("no reply on thread %q within %s", ev.ThreadID, timeout)
	}
	return reply, err
}

func printReply(cmd *cobra.Command, reply *model.Reply, asCSV bool) error {
	out := cmd.OutOrStdout()

	if reply.Assumptions != "" {
		fmt.Fprintf(out, "Assumptions: %s\n\n", reply.Assumptions)
	}

	switch reply.Status {
	case model.ReplyAnswered:
		printResult(cmd, table.Result{
			TableText:         reply.Table,
			TruncatedRowCount: reply.TruncatedRowCount,
			CSVText:           reply.CSV,
		}, asCSV)
	default:
		fmt.Fprintln(out, reply.Text)
	}

	if reply.Query != "" {
		fmt.Fprintf(out, "\nQuery:\n%s\n", reply.Query)
	}
	if reply.Status == model.ReplyFailed {
		return fmt.Errorf("question could not be answered")
	}
	return nil
}
