package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/hmi"
	"github.com/aretw0/hmi/internal/config"
	"github.com/aretw0/hmi/internal/logging"
	redisAdapter "github.com/aretw0/hmi/pkg/adapters/redis"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hmi",
	Short: "hmi asks people questions and listens for answers",
	Long: `hmi submits interpretation queries to a speech endpoint and waits for
the sentence a person said, decoded against a grammar of acceptable answers.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "hmi.yaml", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("endpoint", "", "Name of the speech endpoint (overrides config)")
	rootCmd.PersistentFlags().String("redis", "", "Redis address of the goal channel (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().Duration("wait", 30*time.Second, "How long to wait for the endpoint to become ready")
}

// loadSettings reads the config file and applies flag overrides.
func loadSettings(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}

	overrides := map[string]*string{
		"endpoint":  &cfg.Endpoint,
		"redis":     &cfg.Redis.Addr,
		"log-level": &cfg.LogLevel,
	}
	for name, field := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*field = f.Value.String()
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logging.New(level), nil
}

func newRedisClient(cfg config.Config) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// connect binds a client to the configured endpoint. The returned func
// closes the client and its Redis connection.
func connect(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger *slog.Logger, opts ...hmi.Option) (*hmi.Client, func(), error) {
	wait, _ := cmd.Flags().GetDuration("wait")
	dialer := redisAdapter.NewDialer(newRedisClient(cfg),
		redisAdapter.WithPrefix(cfg.Redis.Prefix),
		redisAdapter.WithLogger(logger),
	)

	dialCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	opts = append([]hmi.Option{
		hmi.WithDialer(dialer),
		hmi.WithLogger(logger),
		hmi.WithGracePeriod(time.Duration(cfg.GracePeriod)),
	}, opts...)
	client, err := hmi.New(dialCtx, cfg.Endpoint, opts...)
	if err != nil {
		_ = dialer.Close()
		return nil, nil, err
	}

	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close client", "error", err)
		}
		_ = dialer.Close()
	}, nil
}

// timeoutFlag returns --timeout, falling back to the configured timeout.
func timeoutFlag(cmd *cobra.Command, cfg config.Config) time.Duration {
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		return timeout
	}
	return time.Duration(cfg.Timeout)
}
