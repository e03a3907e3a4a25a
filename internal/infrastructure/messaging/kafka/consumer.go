// internal/infrastructure/messaging/kafka/consumer.go
package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler must return nil only when the message is done and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// ErrPoison marks a message that can never succeed; it is committed without retry
var ErrPoison = errors.New("unprocessable message")

// Consumer reads a topic as part of a consumer group and fans messages out to workers
type Consumer struct {
	r          *kafka.Reader
	workers    int
	maxRetries int
	backoff    time.Duration
	logger     logrus.FieldLogger
}

// NewConsumer creates a group consumer with manual offset commits
func NewConsumer(brokers []string, group, topic string, workers int, logger logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:          r,
		workers:    workers,
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		logger:     logger.WithField("topic", topic),
	}
}

// Start blocks until ctx is cancelled or the reader fails
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers*4)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				c.process(ctx, id, h, m)
			}
		}(i)
	}

	err := c.dispatch(ctx, jobs)
	close(jobs)
	wg.Wait()
	return err
}

func (c *Consumer) dispatch(ctx context.Context, jobs chan<- kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, worker int, h Handler, m kafka.Message) {
	log := c.logger.WithFields(logrus.Fields{
		"worker":    worker,
		"partition": m.Partition,
		"offset":    m.Offset,
	})

	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err = h(ctx, m); err == nil || errors.Is(err, ErrPoison) {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Message handler failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		log.WithError(err).Error("Dropping message after failed attempts")
	}

	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Failed to commit offset")
	}
}
