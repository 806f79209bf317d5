package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/hmi/internal/presentation/tui"
	"github.com/aretw0/hmi/pkg/adapters/process"
	redisAdapter "github.com/aretw0/hmi/pkg/adapters/redis"
	"github.com/aretw0/hmi/pkg/ports"
	"github.com/aretw0/hmi/pkg/simulate"
	"github.com/spf13/cobra"
)

var serveMockCmd = &cobra.Command{
	Use:   "serve-mock",
	Short: "Run a simulated speech endpoint",
	Long: `Serves the endpoint's goal queue with a simulated speaker, for trying
queries without a speech recognizer. Modes:

  random  answer with a random sentence of the query grammar (default)
  say     always answer with --sentence
  silent  keep sending feedback but never answer
  fail    fail every goal
  exec    run the recognizer command described by --recognizer per goal

With --embedded an in-process Redis is started and its address printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		mode, _ := cmd.Flags().GetString("mode")
		sentence, _ := cmd.Flags().GetString("sentence")
		listen, _ := cmd.Flags().GetDuration("listen")
		recognizer, _ := cmd.Flags().GetString("recognizer")
		handler, err := mockHandler(mode, sentence, recognizer, logger, simulate.WithListenTime(listen))
		if err != nil {
			return err
		}

		if embedded, _ := cmd.Flags().GetBool("embedded"); embedded {
			mr, err := miniredis.Run()
			if err != nil {
				return fmt.Errorf("failed to start embedded redis: %w", err)
			}
			defer mr.Close()
			cfg.Redis.Addr = mr.Addr()
			fmt.Fprintf(cmd.OutOrStdout(), "embedded redis listening on %s\n", mr.Addr())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rdb := newRedisClient(cfg)
		defer rdb.Close()

		tui.NewPrinter(cmd.ErrOrStderr()).Banner()
		logger.Info("serving simulated endpoint", "endpoint", cfg.Endpoint, "mode", mode, "redis", cfg.Redis.Addr)
		return redisAdapter.NewServer(rdb, cfg.Endpoint, handler,
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
			redisAdapter.WithLogger(logger),
		).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveMockCmd)
	serveMockCmd.Flags().String("mode", "random", "random, say, silent, fail or exec")
	serveMockCmd.Flags().String("recognizer", "recognizer.yaml", "Recognizer command config used in exec mode")
	serveMockCmd.Flags().String("sentence", "", "Sentence answered in say mode")
	serveMockCmd.Flags().Duration("listen", 500*time.Millisecond, "Simulated listening time before answering")
	serveMockCmd.Flags().Bool("embedded", false, "Start an in-process Redis instead of connecting to one")
}

func mockHandler(mode, sentence, recognizer string, logger *slog.Logger, opts ...simulate.Option) (ports.Handler, error) {
	switch mode {
	case "exec":
		cfg, err := process.LoadConfig(recognizer)
		if err != nil {
			return nil, err
		}
		return process.Recognizer(cfg, process.WithLogger(logger)), nil
	case "random":
		return simulate.RandomSentence(opts...), nil
	case "say":
		if sentence == "" {
			return nil, fmt.Errorf("say mode needs --sentence")
		}
		return simulate.Say(sentence, opts...), nil
	case "silent":
		return simulate.Silent(opts...), nil
	case "fail":
		return simulate.Failing(opts...), nil
	}
	return nil, fmt.Errorf("unknown mode %q: use random, say, silent, fail or exec", mode)
}
