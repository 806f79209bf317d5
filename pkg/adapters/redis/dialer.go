package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/hmi/pkg/domain"
	"github.com/aretw0/hmi/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

var _ ports.Dialer = (*Dialer)(nil)

// Dialer binds endpoint names to Redis transports once their server is ready.
type Dialer struct {
	client *backend.Client
	opts   []Option
	cfg    config
}

// NewDialer creates a dialer. opts are passed on to every transport.
func NewDialer(client *backend.Client, opts ...Option) *Dialer {
	return &Dialer{
		client: client,
		opts:   opts,
		cfg:    newConfig(opts),
	}
}

// Dial polls the readiness key of name until a server advertises it or ctx is done.
func (d *Dialer) Dial(ctx context.Context, name string) (ports.Transport, error) {
	ready := keys{prefix: d.cfg.prefix, name: name}.ready()

	ticker := time.NewTicker(d.cfg.poll)
	defer ticker.Stop()

	for {
		err := d.client.Get(ctx, ready).Err()
		switch {
		case err == nil:
			d.cfg.logger.Debug("server ready", "name", name)
			return NewTransport(d.client, name, d.opts...), nil
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrServerUnavailable, name, ctx.Err())
		case !errors.Is(err, backend.Nil):
			return nil, fmt.Errorf("redis error checking readiness: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrServerUnavailable, name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close closes the underlying Redis client.
func (d *Dialer) Close() error {
	return d.client.Close()
}
