// Package messagebus предоставляет адаптеры шины сообщений для различных брокеров.
package messagebus

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/transport"
)

// NATSConfig конфигурация для NATS адаптера
type NATSConfig struct {
	URL               string
	MaxReconnects     int
	ReconnectWait     time.Duration
	DrainTimeout      time.Duration
	ConnectionTimeout time.Duration
	TLS               *tls.Config
	Token             string
	Username          string
	Password          string
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               "nats://localhost:4222",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		DrainTimeout:      30 * time.Second,
		ConnectionTimeout: 5 * time.Second,
	}
}

// NATSAdapter реализация MessageBus через NATS. Core NATS не хранит
// сообщения, поэтому повторная доставка при ошибке обработчика
// выполняется адаптером по политике повторов.
type NATSAdapter struct {
	config NATSConfig
	retry  transport.RetryPolicy
	logger *zap.Logger

	conn    *nats.Conn
	subs    map[string]*nats.Subscription
	mu      sync.RWMutex
	running bool
}

// NATSAdapterBuilder построитель для NATS адаптера
type NATSAdapterBuilder struct {
	config NATSConfig
	retry  transport.RetryPolicy
	logger *zap.Logger
}

// NewNATSAdapterBuilder создает новый построитель NATS адаптера
func NewNATSAdapterBuilder() *NATSAdapterBuilder {
	return &NATSAdapterBuilder{
		config: DefaultNATSConfig(),
		retry:  transport.DefaultRetryPolicy(),
		logger: zap.NewNop(),
	}
}

// WithURL устанавливает URL NATS сервера
func (b *NATSAdapterBuilder) WithURL(url string) *NATSAdapterBuilder {
	b.config.URL = url
	return b
}

// WithMaxReconnects устанавливает максимальное количество переподключений
func (b *NATSAdapterBuilder) WithMaxReconnects(maxReconnects int) *NATSAdapterBuilder {
	b.config.MaxReconnects = maxReconnects
	return b
}

// WithReconnectWait устанавливает задержку между переподключениями
func (b *NATSAdapterBuilder) WithReconnectWait(wait time.Duration) *NATSAdapterBuilder {
	b.config.ReconnectWait = wait
	return b
}

// WithDrainTimeout устанавливает таймаут для graceful shutdown
func (b *NATSAdapterBuilder) WithDrainTimeout(timeout time.Duration) *NATSAdapterBuilder {
	b.config.DrainTimeout = timeout
	return b
}

// WithConnectionTimeout устанавливает таймаут подключения
func (b *NATSAdapterBuilder) WithConnectionTimeout(timeout time.Duration) *NATSAdapterBuilder {
	b.config.ConnectionTimeout = timeout
	return b
}

// WithTLS устанавливает TLS конфигурацию
func (b *NATSAdapterBuilder) WithTLS(tlsConfig *tls.Config) *NATSAdapterBuilder {
	b.config.TLS = tlsConfig
	return b
}

// WithToken устанавливает токен аутентификации
func (b *NATSAdapterBuilder) WithToken(token string) *NATSAdapterBuilder {
	b.config.Token = token
	return b
}

// WithCredentials устанавливает username и password
func (b *NATSAdapterBuilder) WithCredentials(username, password string) *NATSAdapterBuilder {
	b.config.Username = username
	b.config.Password = password
	return b
}

// WithRetry устанавливает политику повторной доставки
func (b *NATSAdapterBuilder) WithRetry(retry transport.RetryPolicy) *NATSAdapterBuilder {
	b.retry = retry
	return b
}

// WithLogger устанавливает логгер
func (b *NATSAdapterBuilder) WithLogger(logger *zap.Logger) *NATSAdapterBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build создает NATS адаптер
func (b *NATSAdapterBuilder) Build() (*NATSAdapter, error) {
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nats config: %w", err)
	}

	return &NATSAdapter{
		config: b.config,
		retry:  b.retry,
		logger: b.logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// NewNATSAdapter создает новый NATS адаптер с конфигурацией по умолчанию
func NewNATSAdapter(url string) (*NATSAdapter, error) {
	return NewNATSAdapterBuilder().WithURL(url).Build()
}

// Start подключается к NATS (реализация core.Lifecycle)
func (n *NATSAdapter) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(n.config.ConnectionTimeout),
		nats.DrainTimeout(n.config.DrainTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				n.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	if n.config.TLS != nil {
		opts = append(opts, nats.Secure(n.config.TLS))
	}
	if n.config.Token != "" {
		opts = append(opts, nats.Token(n.config.Token))
	}
	if n.config.Username != "" && n.config.Password != "" {
		opts = append(opts, nats.UserInfo(n.config.Username, n.config.Password))
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to connect to NATS")
	}

	n.conn = conn
	n.running = true
	n.logger.Info("nats adapter started", zap.String("url", n.config.URL))
	return nil
}

// Stop отписывается, дренирует и закрывает соединение (реализация core.Lifecycle)
func (n *NATSAdapter) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	for subject, sub := range n.subs {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warn("failed to unsubscribe", zap.String("subject", subject), zap.Error(err))
		}
		delete(n.subs, subject)
	}

	if n.conn != nil && n.conn.IsConnected() {
		if err := n.conn.Drain(); err != nil {
			n.logger.Warn("nats drain failed", zap.Error(err))
		}
		n.conn.Close()
	}

	n.running = false
	n.logger.Info("nats adapter stopped")
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (n *NATSAdapter) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// Name возвращает имя компонента (реализация core.Component)
func (n *NATSAdapter) Name() string {
	return "nats-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (n *NATSAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет подключение (реализация core.HealthCheckable)
func (n *NATSAdapter) HealthCheck(ctx context.Context) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.running || n.conn == nil || !n.conn.IsConnected() {
		return core.NewError(core.ErrUnavailable, "nats connection is down")
	}
	return nil
}

// Publish публикует сообщение в subject
func (n *NATSAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()

	if conn == nil {
		return core.NewError(core.ErrUnavailable, "nats adapter is not connected")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	if len(headers) > 0 {
		msg.Header = make(nats.Header, len(headers))
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}

	if err := conn.PublishMsg(msg); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to publish message")
	}
	return nil
}

// Subscribe подписывается на subject. Очередь из опций превращается
// в queue subscription: сообщение получает один подписчик очереди.
func (n *NATSAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler, opts ...transport.SubscribeOption) error {
	options := transport.ApplySubscribeOptions(opts...)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return core.NewError(core.ErrUnavailable, "nats adapter is not connected")
	}
	if _, exists := n.subs[subject]; exists {
		return core.NewErrorf(core.ErrAlreadyExists, "already subscribed to %s", subject)
	}

	callback := func(msg *nats.Msg) {
		n.dispatch(ctx, handler, msg)
	}

	var sub *nats.Subscription
	var err error
	if options.Queue != "" {
		sub, err = n.conn.QueueSubscribe(subject, options.Queue, callback)
	} else {
		sub, err = n.conn.Subscribe(subject, callback)
	}
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to subscribe to "+subject)
	}

	n.subs[subject] = sub
	return nil
}

// dispatch вызывает обработчик с повторами при ошибке. Core NATS
// подтверждает доставку фактом вызова, поэтому повторы выполняются
// здесь, последовательно для сохранения порядка в рамках подписки.
func (n *NATSAdapter) dispatch(ctx context.Context, handler transport.MessageHandler, msg *nats.Msg) {
	m := &transport.Message{
		Subject: msg.Subject,
		Data:    msg.Data,
		Headers: make(map[string]string),
	}
	for k, vals := range msg.Header {
		if len(vals) > 0 {
			m.Headers[k] = vals[0]
		}
	}

	attempt := 1
	for {
		err := handler(ctx, m)
		if err == nil {
			return
		}
		if n.retry == nil || !n.retry.ShouldRetry(attempt, err) {
			n.logger.Error("message dropped after delivery attempts",
				zap.String("subject", msg.Subject),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}

		select {
		case <-time.After(n.retry.GetDelay(attempt)):
		case <-ctx.Done():
			n.logger.Warn("message delivery abandoned",
				zap.String("subject", msg.Subject),
				zap.Error(ctx.Err()))
			return
		}
		attempt++
	}
}

// Unsubscribe отписывается от subject
func (n *NATSAdapter) Unsubscribe(subject string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, exists := n.subs[subject]
	if !exists {
		return nil
	}

	if err := sub.Unsubscribe(); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to unsubscribe from "+subject)
	}
	delete(n.subs, subject)
	return nil
}
