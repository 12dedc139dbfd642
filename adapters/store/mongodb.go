// Package store предоставляет адаптеры хранилища саг для различных backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/saga"
)

// MongoConfig конфигурация для MongoDB хранилища
type MongoConfig struct {
	URI                  string
	Database             string
	StatesCollection     string
	TransitionsCollection string
	ConnectTimeout       time.Duration
	MaxPoolSize          uint64
	MinPoolSize          uint64
}

// Validate проверяет корректность конфигурации
func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("URI cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	if c.StatesCollection == "" {
		return fmt.Errorf("states collection cannot be empty")
	}
	if c.TransitionsCollection == "" {
		return fmt.Errorf("transitions collection cannot be empty")
	}
	if c.MaxPoolSize == 0 {
		return fmt.Errorf("MaxPoolSize must be greater than 0")
	}
	return nil
}

// DefaultMongoConfig возвращает конфигурацию MongoDB по умолчанию
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:              "dealsaga",
		StatesCollection:      "saga_states",
		TransitionsCollection: "saga_transitions",
		ConnectTimeout:        10 * time.Second,
		MaxPoolSize:           100,
		MinPoolSize:           10,
	}
}

// purchaseDoc документ записи саги в MongoDB
type purchaseDoc struct {
	TransactionID   string    `bson:"_id"`
	CustomerID      int64     `bson:"customer_id"`
	VehicleID       int64     `bson:"vehicle_id"`
	PaymentType     string    `bson:"payment_type"`
	Amount          float64   `bson:"amount"`
	Status          string    `bson:"status"`
	PaymentCode     string    `bson:"payment_code,omitempty"`
	PaymentID       string    `bson:"payment_id,omitempty"`
	CompletedSteps  []string  `bson:"completed_steps"`
	FailureReason   string    `bson:"failure_reason,omitempty"`
	CancelRequested bool      `bson:"cancel_requested"`
	CancelledStep   string    `bson:"cancelled_step,omitempty"`
	Version         int64     `bson:"version"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toDoc(record *saga.Purchase) *purchaseDoc {
	return &purchaseDoc{
		TransactionID:   record.TransactionID,
		CustomerID:      record.CustomerID,
		VehicleID:       record.VehicleID,
		PaymentType:     string(record.PaymentType),
		Amount:          record.Amount,
		Status:          string(record.Status),
		PaymentCode:     record.PaymentCode,
		PaymentID:       record.PaymentID,
		CompletedSteps:  record.CompletedSteps,
		FailureReason:   record.FailureReason,
		CancelRequested: record.CancelRequested,
		CancelledStep:   record.CancelledStep,
		Version:         record.Version,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}

func (d *purchaseDoc) toRecord() *saga.Purchase {
	steps := d.CompletedSteps
	if steps == nil {
		steps = []string{}
	}
	return &saga.Purchase{
		TransactionID:   d.TransactionID,
		CustomerID:      d.CustomerID,
		VehicleID:       d.VehicleID,
		PaymentType:     saga.PaymentType(d.PaymentType),
		Amount:          d.Amount,
		Status:          saga.Status(d.Status),
		PaymentCode:     d.PaymentCode,
		PaymentID:       d.PaymentID,
		CompletedSteps:  steps,
		FailureReason:   d.FailureReason,
		CancelRequested: d.CancelRequested,
		CancelledStep:   d.CancelledStep,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// transitionDoc документ аудита перехода в MongoDB
type transitionDoc struct {
	TransactionID string    `bson:"transaction_id"`
	FromStatus    string    `bson:"from_status"`
	ToStatus      string    `bson:"to_status"`
	Event         string    `bson:"event"`
	Detail        string    `bson:"detail,omitempty"`
	OccurredAt    time.Time `bson:"occurred_at"`
}

// MongoStore хранилище саг в MongoDB. Оптимистичная блокировка
// реализована заменой документа по фильтру с версией.
type MongoStore struct {
	config      MongoConfig
	client      *mongo.Client
	states      *mongo.Collection
	transitions *mongo.Collection
}

// NewMongoStore создает новое MongoDB хранилище.
// Подключение устанавливается в Start.
func NewMongoStore(config MongoConfig) (*MongoStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb config: %w", err)
	}
	return &MongoStore{config: config}, nil
}

// Start подключается к MongoDB и создает индексы (реализация core.Lifecycle)
func (s *MongoStore) Start(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	opts := options.Client().
		ApplyURI(s.config.URI).
		SetConnectTimeout(s.config.ConnectTimeout).
		SetMaxPoolSize(s.config.MaxPoolSize).
		SetMinPoolSize(s.config.MinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return core.Wrap(err, core.ErrUnavailable, "failed to ping MongoDB")
	}

	s.client = client
	s.states = client.Database(s.config.Database).Collection(s.config.StatesCollection)
	s.transitions = client.Database(s.config.Database).Collection(s.config.TransitionsCollection)

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		s.client = nil
		return err
	}
	return nil
}

// ensureIndexes создает индексы выборок watchdog и истории переходов
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.states.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}},
	})
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to create saga states index")
	}

	_, err = s.transitions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "transaction_id", Value: 1}, {Key: "occurred_at", Value: 1}},
	})
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to create saga transitions index")
	}
	return nil
}

// Stop отключается от MongoDB (реализация core.Lifecycle)
func (s *MongoStore) Stop(ctx context.Context) error {
	if s.client != nil {
		err := s.client.Disconnect(ctx)
		s.client = nil
		return err
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (s *MongoStore) IsRunning() bool {
	return s.client != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (s *MongoStore) Name() string {
	return "mongodb-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (s *MongoStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет подключение (реализация core.HealthCheckable)
func (s *MongoStore) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return core.NewError(core.ErrUnavailable, "mongodb client is not initialized")
	}
	if err := s.client.Ping(ctx, nil); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "mongodb connection is down")
	}
	return nil
}

// Create сохраняет новую запись саги
func (s *MongoStore) Create(ctx context.Context, record *saga.Purchase) error {
	_, err := s.states.InsertOne(ctx, toDoc(record))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.NewErrorf(core.ErrAlreadyExists, "transaction %s already exists", record.TransactionID)
		}
		return core.Wrap(err, core.ErrUnavailable, "failed to insert saga state")
	}
	return nil
}

// Get возвращает снимок записи по идентификатору транзакции
func (s *MongoStore) Get(ctx context.Context, transactionID string) (*saga.Purchase, error) {
	var doc purchaseDoc
	err := s.states.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
		}
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to read saga state")
	}
	return doc.toRecord(), nil
}

// CompareAndSwap заменяет запись при совпадении ожидаемой версии.
// При успехе в переданную запись записывается новая версия.
func (s *MongoStore) CompareAndSwap(ctx context.Context, transactionID string, expectedVersion int64, record *saga.Purchase) error {
	newVersion := expectedVersion + 1
	doc := toDoc(record)
	doc.TransactionID = transactionID
	doc.Version = newVersion

	result, err := s.states.ReplaceOne(ctx,
		bson.M{"_id": transactionID, "version": expectedVersion}, doc)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to update saga state")
	}

	if result.MatchedCount == 0 {
		var current purchaseDoc
		err := s.states.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&current)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
		}
		if err != nil {
			return core.Wrap(err, core.ErrUnavailable, "failed to read saga state version")
		}
		return core.NewErrorf(core.ErrVersionConflict,
			"transaction %s version is %d, expected %d", transactionID, current.Version, expectedVersion)
	}

	record.Version = newVersion
	return nil
}

// List возвращает записи, удовлетворяющие фильтру,
// в порядке возрастания времени обновления.
func (s *MongoStore) List(ctx context.Context, filter saga.Filter) ([]*saga.Purchase, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if !filter.UpdatedBefore.IsZero() {
		query["updated_at"] = bson.M{"$lt": filter.UpdatedBefore}
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.states.Find(ctx, query, opts)
	if err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to query saga states")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var records []*saga.Purchase
	for cursor.Next(ctx) {
		var doc purchaseDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, core.Wrap(err, core.ErrInternal, "failed to decode saga state")
		}
		records = append(records, doc.toRecord())
	}
	if err := cursor.Err(); err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to iterate saga states")
	}
	return records, nil
}

// AppendTransition добавляет запись аудита перехода
func (s *MongoStore) AppendTransition(ctx context.Context, transition *saga.Transition) error {
	doc := transitionDoc{
		TransactionID: transition.TransactionID,
		FromStatus:    string(transition.FromStatus),
		ToStatus:      string(transition.ToStatus),
		Event:         transition.Event,
		Detail:        transition.Detail,
		OccurredAt:    transition.OccurredAt,
	}
	if _, err := s.transitions.InsertOne(ctx, doc); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to insert saga transition")
	}
	return nil
}

// History возвращает переходы саги в порядке возникновения
func (s *MongoStore) History(ctx context.Context, transactionID string) ([]*saga.Transition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	cursor, err := s.transitions.Find(ctx, bson.M{"transaction_id": transactionID}, opts)
	if err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to query saga transitions")
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var transitions []*saga.Transition
	for cursor.Next(ctx) {
		var doc transitionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, core.Wrap(err, core.ErrInternal, "failed to decode saga transition")
		}
		transitions = append(transitions, &saga.Transition{
			TransactionID: doc.TransactionID,
			FromStatus:    saga.Status(doc.FromStatus),
			ToStatus:      saga.Status(doc.ToStatus),
			Event:         doc.Event,
			Detail:        doc.Detail,
			OccurredAt:    doc.OccurredAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to iterate saga transitions")
	}
	return transitions, nil
}
