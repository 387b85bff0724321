package tickets

import (
	"context"
	"fmt"
	"time"

	"ticketly/internal/shared/config"
	"ticketly/pkg/logger"

	"github.com/IBM/sarama"
)

// Producer enqueues ticket jobs onto the generation topic.
type Producer interface {
	Enqueue(ctx context.Context, job *Job) error
	Close() error
}

type kafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logger.Logger
}

// NewProducer builds a synchronous, idempotent producer. Acks from all
// in-sync replicas plus one in-flight request keep a booking's jobs
// exactly-once and ordered within their partition.
func NewProducer(cfg *config.Config) (Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Timeout = 10 * time.Second
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Net.MaxOpenRequests = 1
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create ticket producer: %w", err)
	}

	return &kafkaProducer{
		producer: producer,
		topic:    cfg.Kafka.TicketTopic,
		logger:   logger.GetDefault(),
	}, nil
}

func (p *kafkaProducer) Enqueue(ctx context.Context, job *Job) error {
	payload, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal ticket job: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(job.PartitionKey()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("job_kind"), Value: []byte(job.Kind)},
			{Key: []byte("job_id"), Value: []byte(job.ID)},
		},
		Timestamp: job.CreatedAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("enqueue ticket job: %w", err)
	}

	p.logger.DebugWithContext(ctx, "ticket job enqueued", map[string]interface{}{
		"job_id":    job.ID,
		"kind":      string(job.Kind),
		"partition": partition,
		"offset":    offset,
	})
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.producer.Close()
}
