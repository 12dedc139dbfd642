// Package dealsaga реализует оркестратор саги покупки транспортного средства.
//
// Оркестратор координирует распределенную покупку через обмен командами и
// событиями с сервисами-участниками:
//   - машина состояний саги с прямым ходом и обратной компенсацией
//   - хранилище состояний с оптимистическими блокировками (in-memory, PostgreSQL, MongoDB)
//   - шина сообщений (in-memory, NATS, Kafka, Redis Streams)
//   - транспортный слой (REST, gRPC, WebSocket)
//   - метрики и трассировка на основе OpenTelemetry
//
// Пример запуска движка:
//
//	engine, err := saga.NewEngineBuilder().
//	    WithStore(store).
//	    WithMessageBus(bus).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(ctx)
package dealsaga

// Version представляет версию оркестратора
const (
	Version = "1.0.0"
	Major   = 1
	Minor   = 0
	Patch   = 0
)

// Metadata содержит метаданные о сервисе
type Metadata struct {
	Name        string
	Version     string
	Description string
	License     string
}

// GetMetadata возвращает метаданные сервиса
func GetMetadata() Metadata {
	return Metadata{
		Name:        "DealSaga",
		Version:     Version,
		Description: "Saga orchestrator for vehicle purchase workflows",
		License:     "MIT",
	}
}
