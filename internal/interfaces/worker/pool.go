package worker

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Consumer is the slice of *kafka.Consumer the pool drives.
type Consumer interface {
	Subscribe(topic string, handler kafka.MessageHandler) error
	Start(ctx context.Context) error
	Wait()
	Close() error
}

// ConsumerFactory builds the i-th consumer of the pool.
type ConsumerFactory func(i int) (Consumer, error)

// KafkaConsumers returns a factory of group consumers sharing cfg, each
// reporting retries to h.
func KafkaConsumers(cfg kafka.ConsumerConfig, h *JobHandler, logger logging.Logger) ConsumerFactory {
	return func(i int) (Consumer, error) {
		c, err := kafka.NewConsumer(cfg, logger.With(logging.Int("consumer", i)))
		if err != nil {
			return nil, err
		}
		c.OnRetry = h.OnRetry
		return c, nil
	}
}

// Pool runs Size consumers of one group; Kafka spreads the partitions of
// Topic across them.
type Pool struct {
	Topic   string
	Size    int
	Factory ConsumerFactory
	Handler kafka.MessageHandler
	Logger  logging.Logger
}

// Run starts the consumers and blocks until ctx is done, then closes them
// all.  A consumer that fails to start cancels the others.
func (p *Pool) Run(ctx context.Context) error {
	if p.Size < 1 {
		return errors.Newf(errors.ErrCodeValidation, "worker pool size must be >= 1, got %d", p.Size)
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	consumers := make([]Consumer, 0, p.Size)
	closeAll := func() {
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
		}
	}
	for i := 0; i < p.Size; i++ {
		c, err := p.Factory(i)
		if err != nil {
			closeAll()
			return errors.Wrap(err, errors.ErrCodeMessagingError, "create consumer")
		}
		consumers = append(consumers, c)
		if err := c.Subscribe(p.Topic, p.Handler); err != nil {
			closeAll()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		c := c
		g.Go(func() error {
			if err := c.Start(gctx); err != nil {
				return errors.Wrap(err, errors.ErrCodeMessagingError, "start consumer")
			}
			c.Wait()
			return nil
		})
	}
	logger.Info("worker pool started", logging.String("topic", p.Topic), logging.Int("consumers", p.Size))

	err := g.Wait()
	closeAll()
	logger.Info("worker pool stopped")
	return err
}

//Personal.AI order the ending
