// Package messagebus предоставляет адаптеры шины сообщений для различных брокеров.
package messagebus

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/metrics"
	"github.com/akriventsev/dealsaga/transport"
)

// KafkaConfig конфигурация для Kafka адаптера
type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	Compression   string // none, gzip, snappy, lz4, zstd
	BatchSize     int
	FlushInterval time.Duration
	Consumer      KafkaConsumerConfig
	Producer      KafkaProducerConfig
}

// KafkaConsumerConfig конфигурация для Kafka consumer
type KafkaConsumerConfig struct {
	MinBytes    int
	MaxBytes    int
	MaxWait     time.Duration
	StartOffset int64 // kafka.FirstOffset, kafka.LastOffset или конкретный offset
}

// KafkaProducerConfig конфигурация для Kafka producer
type KafkaProducerConfig struct {
	RequiredAcks int // 0, 1, -1 (all)
	MaxAttempts  int
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if broker == "" {
			return fmt.Errorf("broker[%d] cannot be empty", i)
		}
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	if c.GroupID == "" {
		return fmt.Errorf("group ID cannot be empty")
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		GroupID:       "dealsaga",
		Compression:   "snappy",
		BatchSize:     100,
		FlushInterval: 10 * time.Millisecond,
		Consumer: KafkaConsumerConfig{
			MinBytes:    10e3, // 10KB
			MaxBytes:    10e6, // 10MB
			MaxWait:     1 * time.Second,
			StartOffset: kafka.LastOffset,
		},
		Producer: KafkaProducerConfig{
			RequiredAcks: -1, // all
			MaxAttempts:  3,
		},
	}
}

type kafkaSubscription struct {
	reader *kafka.Reader
	cancel context.CancelFunc
}

// KafkaAdapter реализация MessageBus через Kafka. Offset фиксируется
// только после успешной обработки, повторная доставка неподтвержденных
// сообщений происходит при перезапуске consumer group.
type KafkaAdapter struct {
	config  KafkaConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	writer  *kafka.Writer
	subs    map[string]*kafkaSubscription
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewKafkaAdapter создает новый Kafka адаптер
func NewKafkaAdapter(config KafkaConfig) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka config: %w", err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequiredAcks(config.Producer.RequiredAcks),
		MaxAttempts:  config.Producer.MaxAttempts,
		BatchSize:    config.BatchSize,
		BatchTimeout: config.FlushInterval,
		Compression:  kafkaCompression(config.Compression),
	}

	return &KafkaAdapter{
		config: config,
		logger: zap.NewNop(),
		writer: writer,
		subs:   make(map[string]*kafkaSubscription),
	}, nil
}

// WithLogger устанавливает логгер
func (k *KafkaAdapter) WithLogger(logger *zap.Logger) *KafkaAdapter {
	if logger != nil {
		k.logger = logger
	}
	return k
}

// WithMetrics устанавливает метрики транспорта
func (k *KafkaAdapter) WithMetrics(m *metrics.Metrics) *KafkaAdapter {
	k.metrics = m
	return k
}

// kafkaCompression преобразует строку в kafka.Compression
func kafkaCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return nil
	}

	k.running = true
	k.logger.Info("kafka adapter started", zap.Strings("brokers", k.config.Brokers))
	return nil
}

// Stop останавливает читателей и закрывает writer (реализация core.Lifecycle)
func (k *KafkaAdapter) Stop(ctx context.Context) error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return nil
	}

	for topic, sub := range k.subs {
		sub.cancel()
		_ = sub.reader.Close()
		delete(k.subs, topic)
	}
	k.running = false
	k.mu.Unlock()

	k.wg.Wait()

	if k.writer != nil {
		if err := k.writer.Close(); err != nil {
			k.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}

	k.logger.Info("kafka adapter stopped")
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (k *KafkaAdapter) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

// Name возвращает имя компонента (реализация core.Component)
func (k *KafkaAdapter) Name() string {
	return "kafka-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (k *KafkaAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет доступность брокера (реализация core.HealthCheckable)
func (k *KafkaAdapter) HealthCheck(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "kafka broker is unreachable")
	}
	return conn.Close()
}

// Publish публикует сообщение в топик
func (k *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	msg := kafka.Message{
		Topic: subject,
		Value: data,
	}
	if len(headers) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(headers))
		for key, value := range headers {
			msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}

	err := k.writer.WriteMessages(ctx, msg)
	if k.metrics != nil {
		k.metrics.RecordTransport(ctx, "kafka", time.Since(start), err == nil)
	}
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to publish message to "+subject)
	}
	return nil
}

// Subscribe подписывается на топик. Очередь из опций становится
// consumer group, без очереди используется группа из конфигурации.
func (k *KafkaAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler, opts ...transport.SubscribeOption) error {
	options := transport.ApplySubscribeOptions(opts...)

	groupID := k.config.GroupID
	if options.Queue != "" {
		groupID = options.Queue
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       subject,
		GroupID:     groupID,
		MinBytes:    k.config.Consumer.MinBytes,
		MaxBytes:    k.config.Consumer.MaxBytes,
		MaxWait:     k.config.Consumer.MaxWait,
		StartOffset: k.config.Consumer.StartOffset,
	})

	consumeCtx, cancel := context.WithCancel(ctx)

	k.mu.Lock()
	if _, exists := k.subs[subject]; exists {
		k.mu.Unlock()
		cancel()
		_ = reader.Close()
		return core.NewErrorf(core.ErrAlreadyExists, "already subscribed to %s", subject)
	}
	k.subs[subject] = &kafkaSubscription{reader: reader, cancel: cancel}
	k.wg.Add(1)
	k.mu.Unlock()

	go k.consume(consumeCtx, subject, reader, handler)
	return nil
}

// consume читает сообщения до закрытия reader или отмены контекста.
func (k *KafkaAdapter) consume(ctx context.Context, subject string, reader *kafka.Reader, handler transport.MessageHandler) {
	defer k.wg.Done()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			k.logger.Warn("kafka fetch failed",
				zap.String("topic", subject),
				zap.Error(err))
			continue
		}

		m := &transport.Message{
			Subject: msg.Topic,
			Data:    msg.Value,
			Headers: make(map[string]string, len(msg.Headers)),
		}
		for _, h := range msg.Headers {
			m.Headers[h.Key] = string(h.Value)
		}

		if err := handler(ctx, m); err != nil {
			// Offset не фиксируется, сообщение вернется после
			// перезапуска consumer group.
			k.logger.Warn("kafka handler failed, message left uncommitted",
				zap.String("topic", subject),
				zap.Error(err))
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("kafka commit failed",
				zap.String("topic", subject),
				zap.Error(err))
		}
	}
}

// Unsubscribe отписывается от топика
func (k *KafkaAdapter) Unsubscribe(subject string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	sub, exists := k.subs[subject]
	if !exists {
		return nil
	}

	sub.cancel()
	if err := sub.reader.Close(); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to close reader for "+subject)
	}
	delete(k.subs, subject)
	return nil
}
