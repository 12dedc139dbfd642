// Package messagebus предоставляет адаптеры шины сообщений для различных брокеров.
package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/metrics"
	"github.com/akriventsev/dealsaga/transport"
)

// RedisConfig конфигурация для Redis адаптера
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	MaxRetries    int
	StreamPrefix  string // Префикс имен streams
	StreamMaxLen  int64  // Максимальная длина stream (0 = без ограничений)
	ConsumerGroup string // Группа по умолчанию, если подписка без очереди
	BlockTimeout  time.Duration
	ClaimMinIdle  time.Duration // Возраст pending сообщения для передачи другому consumer
	ClaimInterval time.Duration // Период проверки pending сообщений
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.StreamPrefix == "" {
		return fmt.Errorf("stream prefix cannot be empty")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("consumer group cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		DB:            0,
		PoolSize:      10,
		MaxRetries:    3,
		StreamPrefix:  "dealsaga",
		StreamMaxLen:  10000,
		ConsumerGroup: "dealsaga",
		BlockTimeout:  5 * time.Second,
		ClaimMinIdle:  1 * time.Minute,
		ClaimInterval: 1 * time.Minute,
	}
}

type redisSubscription struct {
	cancel context.CancelFunc
}

// RedisAdapter реализация MessageBus через Redis Streams. Сообщение
// подтверждается XACK только после успешной обработки, зависшие
// pending сообщения периодически забираются через XAUTOCLAIM.
type RedisAdapter struct {
	config  RedisConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	client  *redis.Client
	subs    map[string]*redisSubscription
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewRedisAdapter создает новый Redis адаптер
func NewRedisAdapter(config RedisConfig) (*RedisAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: config.MaxRetries,
	})

	return &RedisAdapter{
		config: config,
		logger: zap.NewNop(),
		client: client,
		subs:   make(map[string]*redisSubscription),
	}, nil
}

// WithLogger устанавливает логгер
func (r *RedisAdapter) WithLogger(logger *zap.Logger) *RedisAdapter {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithMetrics устанавливает метрики транспорта
func (r *RedisAdapter) WithMetrics(m *metrics.Metrics) *RedisAdapter {
	r.metrics = m
	return r
}

// Start проверяет подключение к Redis (реализация core.Lifecycle)
func (r *RedisAdapter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to connect to Redis")
	}

	r.running = true
	r.logger.Info("redis adapter started", zap.String("addr", r.config.Addr))
	return nil
}

// Stop останавливает читателей и закрывает клиент (реализация core.Lifecycle)
func (r *RedisAdapter) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}

	for subject, sub := range r.subs {
		sub.cancel()
		delete(r.subs, subject)
	}
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()

	if err := r.client.Close(); err != nil {
		r.logger.Warn("failed to close redis client", zap.Error(err))
	}

	r.logger.Info("redis adapter stopped")
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (r *RedisAdapter) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Name возвращает имя компонента (реализация core.Component)
func (r *RedisAdapter) Name() string {
	return "redis-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (r *RedisAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет подключение (реализация core.HealthCheckable)
func (r *RedisAdapter) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "redis connection is down")
	}
	return nil
}

// Publish публикует сообщение в stream (XADD)
func (r *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()
	stream := r.streamName(subject)

	values := map[string]interface{}{
		"data": string(data),
	}
	if len(headers) > 0 {
		headersJSON, err := json.Marshal(headers)
		if err != nil {
			return core.Wrap(err, core.ErrInternal, "failed to encode headers")
		}
		values["headers"] = string(headersJSON)
	}

	args := redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if r.config.StreamMaxLen > 0 {
		args.MaxLen = r.config.StreamMaxLen
		args.Approx = true
	}

	err := r.client.XAdd(ctx, &args).Err()
	if r.metrics != nil {
		r.metrics.RecordTransport(ctx, "redis", time.Since(start), err == nil)
	}
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to publish message to "+subject)
	}
	return nil
}

// Subscribe подписывается на stream (XREADGROUP). Очередь из опций
// становится consumer group, без очереди используется группа из
// конфигурации.
func (r *RedisAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler, opts ...transport.SubscribeOption) error {
	options := transport.ApplySubscribeOptions(opts...)

	group := r.config.ConsumerGroup
	if options.Queue != "" {
		group = options.Queue
	}
	stream := r.streamName(subject)
	consumer := fmt.Sprintf("%s-%d", group, time.Now().UnixNano())

	err := r.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return core.Wrap(err, core.ErrUnavailable, "failed to create consumer group for "+subject)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if _, exists := r.subs[subject]; exists {
		r.mu.Unlock()
		cancel()
		return core.NewErrorf(core.ErrAlreadyExists, "already subscribed to %s", subject)
	}
	r.subs[subject] = &redisSubscription{cancel: cancel}
	r.wg.Add(2)
	r.mu.Unlock()

	go r.consume(consumeCtx, subject, stream, group, consumer, handler)
	go r.reclaim(consumeCtx, subject, stream, group, consumer, handler)
	return nil
}

// consume читает новые сообщения группы до отмены контекста.
func (r *RedisAdapter) consume(ctx context.Context, subject, stream, group, consumer string, handler transport.MessageHandler) {
	defer r.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    r.config.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			r.logger.Warn("redis read failed",
				zap.String("stream", stream),
				zap.Error(err))
			select {
			case <-time.After(1 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				r.handleMessage(ctx, subject, s.Stream, group, msg, handler)
			}
		}
	}
}

// reclaim периодически забирает зависшие pending сообщения группы
// (XAUTOCLAIM) и повторяет их обработку.
func (r *RedisAdapter) reclaim(ctx context.Context, subject, stream, group, consumer string, handler transport.MessageHandler) {
	defer r.wg.Done()

	interval := r.config.ClaimInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := "0-0"
			for {
				msgs, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
					Stream:   stream,
					Group:    group,
					Consumer: consumer,
					MinIdle:  r.config.ClaimMinIdle,
					Start:    start,
					Count:    100,
				}).Result()
				if err != nil {
					if ctx.Err() == nil {
						r.logger.Warn("redis autoclaim failed",
							zap.String("stream", stream),
							zap.Error(err))
					}
					break
				}

				for _, msg := range msgs {
					r.handleMessage(ctx, subject, stream, group, msg, handler)
				}

				if next == "0-0" || len(msgs) == 0 {
					break
				}
				start = next
			}
		}
	}
}

// handleMessage декодирует сообщение stream и подтверждает его только
// после успешной обработки.
func (r *RedisAdapter) handleMessage(ctx context.Context, subject, stream, group string, msg redis.XMessage, handler transport.MessageHandler) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		// Сообщение без полезной нагрузки подтверждается, чтобы
		// не застревать в pending навсегда.
		r.logger.Warn("redis message has no data field",
			zap.String("stream", stream),
			zap.String("id", msg.ID))
		_ = r.client.XAck(ctx, stream, group, msg.ID).Err()
		return
	}

	m := &transport.Message{
		Subject: subject,
		Data:    []byte(data),
		Headers: make(map[string]string),
	}
	if headersStr, ok := msg.Values["headers"].(string); ok {
		_ = json.Unmarshal([]byte(headersStr), &m.Headers)
	}

	if err := handler(ctx, m); err != nil {
		// Без XACK сообщение остается pending и будет забрано
		// через XAUTOCLAIM.
		r.logger.Warn("redis handler failed, message left pending",
			zap.String("stream", stream),
			zap.String("id", msg.ID),
			zap.Error(err))
		return
	}

	if err := r.client.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
		r.logger.Warn("redis ack failed",
			zap.String("stream", stream),
			zap.String("id", msg.ID),
			zap.Error(err))
	}
}

// Unsubscribe отписывается от stream
func (r *RedisAdapter) Unsubscribe(subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subs[subject]
	if !exists {
		return nil
	}

	sub.cancel()
	delete(r.subs, subject)
	return nil
}

// streamName преобразует subject в имя stream
func (r *RedisAdapter) streamName(subject string) string {
	return fmt.Sprintf("%s:%s", r.config.StreamPrefix, subject)
}
