package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/events"
	"github.com/akriventsev/dealsaga/saga"
)

// WebSocketConfig конфигурация для WebSocket адаптера
type WebSocketConfig struct {
	Port            int
	Path            string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	SendBufferSize  int
}

// Validate проверяет корректность конфигурации
func (c WebSocketConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if c.PingInterval >= c.PongWait {
		return fmt.Errorf("ping interval must be less than pong wait")
	}
	return nil
}

// DefaultWebSocketConfig возвращает конфигурацию WebSocket по умолчанию
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Port:            8083,
		Path:            "/ws",
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageSize:  512,
		SendBufferSize:  16,
	}
}

// wsEnvelope обертка исходящего сообщения
type wsEnvelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// wsClient подключенный клиент. Запись в соединение идет только
// из writePump, что сериализует конкурентные broadcast и ping.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketAdapter транслирует события жизненного цикла саг
// подключенным клиентам. Входящие сообщения от клиентов игнорируются,
// канал используется только для уведомлений.
type WebSocketAdapter struct {
	config   WebSocketConfig
	upgrader websocket.Upgrader
	bus      events.EventBus
	logger   *zap.Logger
	server   *http.Server
	handlers []events.EventHandler

	clients map[*wsClient]bool
	mu      sync.RWMutex
	running bool
}

// NewWebSocketAdapter создает новый WebSocket адаптер
func NewWebSocketAdapter(config WebSocketConfig, bus events.EventBus) (*WebSocketAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid websocket config: %w", err)
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus cannot be nil")
	}

	return &WebSocketAdapter{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // В production должна быть правильная проверка origin
			},
		},
		bus:     bus,
		logger:  zap.NewNop(),
		clients: make(map[*wsClient]bool),
	}, nil
}

// WithLogger устанавливает логгер
func (w *WebSocketAdapter) WithLogger(logger *zap.Logger) *WebSocketAdapter {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Start подписывается на события саг и запускает сервер
// (реализация core.Lifecycle)
func (w *WebSocketAdapter) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	for _, eventType := range []string{saga.EventTypeSagaStarted, saga.EventTypeStatusChanged} {
		handler := &events.EventHandlerFunc{
			Type: eventType,
			Fn: func(ctx context.Context, event events.Event) error {
				return w.Broadcast(wsEnvelope{
					Type:      event.EventType(),
					Timestamp: event.OccurredAt(),
					Payload:   event,
				})
			},
		}
		if err := w.bus.Subscribe(eventType, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
		w.handlers = append(w.handlers, handler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.config.Path, w.handleWebSocket)

	w.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", w.config.Port),
		Handler: mux,
	}

	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			w.logger.Error("websocket server failed", zap.Error(err))
		}
	}()

	w.running = true
	w.logger.Info("websocket adapter started",
		zap.Int("port", w.config.Port),
		zap.String("path", w.config.Path))
	return nil
}

// Stop отписывается от событий и закрывает соединения
// (реализация core.Lifecycle)
func (w *WebSocketAdapter) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false

	for _, handler := range w.handlers {
		_ = w.bus.Unsubscribe(handler.EventType(), handler)
	}
	w.handlers = nil

	for client := range w.clients {
		close(client.send)
		delete(w.clients, client)
	}
	w.mu.Unlock()

	if w.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := w.server.Shutdown(shutdownCtx); err != nil {
			return core.Wrap(err, core.ErrInternal, "failed to shutdown websocket server")
		}
	}

	w.logger.Info("websocket adapter stopped")
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (w *WebSocketAdapter) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Name возвращает имя компонента (реализация core.Component)
func (w *WebSocketAdapter) Name() string {
	return "websocket-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (w *WebSocketAdapter) Type() core.ComponentType {
	return core.ComponentTypeTransport
}

// ConnectionCount возвращает число подключенных клиентов
func (w *WebSocketAdapter) ConnectionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

// Broadcast отправляет сообщение всем подключенным клиентам.
// Клиент, чья очередь отправки переполнена, отключается.
func (w *WebSocketAdapter) Broadcast(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to marshal broadcast message")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for client := range w.clients {
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(w.clients, client)
			w.logger.Warn("websocket client dropped, send queue full")
		}
	}
	return nil
}

// handleWebSocket обрабатывает WebSocket соединения
func (w *WebSocketAdapter) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, w.config.SendBufferSize),
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = conn.Close()
		return
	}
	w.clients[client] = true
	w.mu.Unlock()

	go w.writePump(client)
	go w.readPump(client)
}

// readPump читает входящие сообщения до закрытия соединения.
// Содержимое игнорируется, чтение нужно для обработки pong и close.
func (w *WebSocketAdapter) readPump(client *wsClient) {
	defer func() {
		w.removeClient(client)
		_ = client.conn.Close()
	}()

	client.conn.SetReadLimit(w.config.MaxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(w.config.PongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump пишет сообщения из очереди и поддерживает ping
func (w *WebSocketAdapter) writePump(client *wsClient) {
	ticker := time.NewTicker(w.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient удаляет клиента из реестра
func (w *WebSocketAdapter) removeClient(client *wsClient) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.clients[client]; ok {
		delete(w.clients, client)
		close(client.send)
	}
}
