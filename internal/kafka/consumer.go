package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/playfab-session/internal/config"
	"github.com/playfab-session/internal/domain"
)

var errInvalidSubmission = errors.New("invalid stat submission")

// StatHandler applies queued stat submissions
type StatHandler interface {
	SubmitStatBatch(ctx context.Context, batch domain.BatchStatSubmission) error
}

// Consumer reads stat submissions from Kafka and hands them to a StatHandler in batches
type Consumer struct {
	config  *config.KafkaConfig
	handler StatHandler
	logger  *slog.Logger
	group   sarama.ConsumerGroup
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

const (
	startTimeout = 30 * time.Second
	retryBackoff = time.Second
)

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler StatHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}
	return newConsumer(cfg, group, handler, logger), nil
}

func newConsumer(cfg *config.KafkaConfig, group sarama.ConsumerGroup, handler StatHandler, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:  cfg,
		handler: handler,
		logger:  logger.With("topic", cfg.StatsTopic),
		group:   group,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start joins the consumer group and returns once the first session is set up. If the
// first join fails, or no session is set up within startTimeout, the consumer is
// stopped and the error returned.
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer", "brokers", c.config.Brokers, "group_id", c.config.GroupID)

	ready := make(chan struct{})
	failed := make(chan error, 1)
	var once sync.Once
	handler := &consumerGroupHandler{
		consumer: c,
		onSetup:  func() { once.Do(func() { close(ready) }) },
	}

	c.wg.Add(2)
	go c.consume(handler, failed)
	go c.watchErrors()

	timeout := time.NewTimer(startTimeout)
	defer timeout.Stop()

	var err error
	select {
	case <-ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case err = <-failed:
		err = fmt.Errorf("joining consumer group: %w", err)
	case <-timeout.C:
		err = fmt.Errorf("joining consumer group: no session after %s", startTimeout)
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	if stopErr := c.Stop(); stopErr != nil {
		c.logger.Warn("failed to close consumer group", "error", stopErr)
	}
	return err
}

// consume rejoins the group after every rebalance until the consumer is stopped.
// Join errors are reported on failed while nobody has read one yet.
func (c *Consumer) consume(handler sarama.ConsumerGroupHandler, failed chan<- error) {
	defer c.wg.Done()
	topics := []string{c.config.StatsTopic}
	for c.ctx.Err() == nil {
		err := c.group.Consume(c.ctx, topics, handler)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return
		}
		if err == nil {
			continue
		}

		c.logger.Error("error from consumer", "error", err)
		select {
		case failed <- err:
		default:
		}
		select {
		case <-c.ctx.Done():
		case <-time.After(retryBackoff):
		}
	}
}

func (c *Consumer) watchErrors() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			c.logger.Error("consumer group error", "error", err)
		}
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

// decodeSubmission parses one message value into a stat submission
func decodeSubmission(value []byte) (domain.StatSubmission, error) {
	var submission domain.StatSubmission
	if err := json.Unmarshal(value, &submission); err != nil {
		return submission, fmt.Errorf("unmarshal stat submission: %w", err)
	}
	if submission.SessionID == "" || submission.StatName == "" {
		return submission, fmt.Errorf("%w: session_id=%q stat_name=%q",
			errInvalidSubmission, submission.SessionID, submission.StatName)
	}
	return submission, nil
}

// statBatch accumulates submissions until flushed
type statBatch struct {
	handler StatHandler
	logger  *slog.Logger
	size    int
	timeout time.Duration
	items   []domain.StatSubmission
}

func newStatBatch(handler StatHandler, logger *slog.Logger, size int, timeout time.Duration) *statBatch {
	if size <= 0 {
		size = 1
	}
	return &statBatch{
		handler: handler,
		logger:  logger,
		size:    size,
		timeout: timeout,
		items:   make([]domain.StatSubmission, 0, size),
	}
}

// add queues a submission and reports whether the batch is full
func (b *statBatch) add(submission domain.StatSubmission) bool {
	b.items = append(b.items, submission)
	return len(b.items) >= b.size
}

func (b *statBatch) flush() {
	if len(b.items) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	stats := make([]domain.StatSubmission, len(b.items))
	copy(stats, b.items)
	if err := b.handler.SubmitStatBatch(ctx, domain.BatchStatSubmission{Stats: stats}); err != nil {
		b.logger.Error("failed to process batch", "error", err, "batch_size", len(stats))
	} else {
		b.logger.Debug("processed batch", "batch_size", len(stats))
	}

	b.items = b.items[:0]
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	onSetup  func()
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.onSetup()
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim batches the submissions of one partition. Offsets are marked as soon as
// a message is queued; submissions are best-effort.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	logger := h.consumer.logger
	batch := newStatBatch(h.consumer.handler, logger, cfg.BatchSize, 30*time.Second)

	timer := time.NewTimer(cfg.BatchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-session.Context().Done():
			batch.flush()
			return nil

		case <-timer.C:
			batch.flush()
			timer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				batch.flush()
				return nil
			}

			submission, err := decodeSubmission(message.Value)
			session.MarkMessage(message, "")
			if err != nil {
				logger.Warn("skipping stat message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			if batch.add(submission) {
				batch.flush()
				timer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
