package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ticketly/internal/shared/config"
	"ticketly/pkg/logger"

	"github.com/IBM/sarama"
)

// Consumer drains the ticket topic with a pool of consumer-group
// workers.
type Consumer interface {
	StartConsumers(ctx context.Context, numWorkers int) error
	Stop() error
}

type kafkaConsumer struct {
	group  sarama.ConsumerGroup
	topics []string
	worker *Worker
	logger *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(cfg *config.Config, worker *Worker) (Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = 30 * time.Second
	saramaConfig.Consumer.Group.Heartbeat.Interval = 3 * time.Second
	saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second

	group, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create ticket consumer group: %w", err)
	}

	return &kafkaConsumer{
		group:  group,
		topics: []string{cfg.Kafka.TicketTopic},
		worker: worker,
		logger: logger.GetDefault(),
	}, nil
}

func (c *kafkaConsumer) StartConsumers(ctx context.Context, numWorkers int) error {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.drainErrors()

	for i := 0; i < numWorkers; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			c.runWorker(runCtx, workerID)
		}(i)
	}

	c.logger.InfoWithContext(ctx, "ticket consumers started", map[string]interface{}{
		"workers": numWorkers,
		"topics":  c.topics,
	})
	return nil
}

func (c *kafkaConsumer) runWorker(ctx context.Context, workerID int) {
	handler := &groupHandler{worker: c.worker, workerID: workerID, logger: c.logger}
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := c.group.Consume(ctx, c.topics, handler); err != nil {
				c.logger.ErrorWithContext(ctx, "ticket consumer session failed", err, map[string]interface{}{
					"worker_id": workerID,
				})
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *kafkaConsumer) drainErrors() {
	for err := range c.group.Errors() {
		c.logger.ErrorWithContext(context.Background(), "ticket consumer group error", err, nil)
	}
}

func (c *kafkaConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close ticket consumer group: %w", err)
	}
	return nil
}

type groupHandler struct {
	worker   *Worker
	workerID int
	logger   *logger.Logger
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.DebugWithContext(session.Context(), "ticket consumer session assigned", map[string]interface{}{
		"worker_id": h.workerID,
		"claims":    session.Claims(),
	})
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handleMessage(session, message)
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) handleMessage(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) {
	ctx := session.Context()

	var job Job
	if err := json.Unmarshal(message.Value, &job); err != nil {
		// Malformed payloads are unrecoverable; skip past them.
		h.logger.ErrorWithContext(ctx, "discarding malformed ticket job", err, map[string]interface{}{
			"partition": message.Partition,
			"offset":    message.Offset,
		})
		session.MarkMessage(message, "")
		return
	}

	h.waitUntil(ctx, job.NotBefore)

	if err := h.executeWithRetry(ctx, &job); err != nil {
		// Retries exhausted. Marking anyway keeps a poison job from
		// wedging the partition; the progress record carries the error.
		h.logger.ErrorWithContext(ctx, "ticket job failed after retries", err, map[string]interface{}{
			"job_id":      job.ID,
			"kind":        string(job.Kind),
			"booking_ref": job.BookingRef,
		})
	}
	session.MarkMessage(message, "")
}

// waitUntil honours a job's NotBefore delay without blocking shutdown.
func (h *groupHandler) waitUntil(ctx context.Context, notBefore time.Time) {
	delay := time.Until(notBefore)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (h *groupHandler) executeWithRetry(ctx context.Context, job *Job) error {
	var lastErr error
	for attempt := 1; attempt <= maxJobAttempts; attempt++ {
		lastErr = h.worker.HandleJob(ctx, job)
		if lastErr == nil {
			return nil
		}
		if attempt == maxJobAttempts {
			break
		}

		backoff := retryDelay(job.Kind, attempt)
		h.logger.DebugWithContext(ctx, "retrying ticket job", map[string]interface{}{
			"job_id":  job.ID,
			"kind":    string(job.Kind),
			"attempt": attempt,
			"backoff": backoff.String(),
			"error":   lastErr.Error(),
		})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
