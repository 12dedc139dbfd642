// Package store предоставляет адаптеры хранилища саг для различных backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/saga"
)

const pgUniqueViolation = "23505"

// PostgresConfig конфигурация для PostgreSQL хранилища
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Validate проверяет корректность конфигурации
func (c PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("MaxConns must be greater than 0")
	}
	return nil
}

// DefaultPostgresConfig возвращает конфигурацию PostgreSQL по умолчанию
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		MaxConns:        25,
		MinConns:        5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// PostgresStore хранилище саг в PostgreSQL. Оптимистичная блокировка
// реализована условным UPDATE по версии, переходы пишутся в отдельную
// таблицу аудита. Схема создается миграциями.
type PostgresStore struct {
	config PostgresConfig
	pool   *pgxpool.Pool
}

// NewPostgresStore создает новое PostgreSQL хранилище.
// Подключение устанавливается в Start.
func NewPostgresStore(config PostgresConfig) (*PostgresStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	return &PostgresStore{config: config}, nil
}

// Start создает пул подключений (реализация core.Lifecycle)
func (s *PostgresStore) Start(ctx context.Context) error {
	if s.pool != nil {
		return nil
	}

	poolConfig, err := pgxpool.ParseConfig(s.config.DSN)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to parse postgres DSN")
	}
	poolConfig.MaxConns = s.config.MaxConns
	poolConfig.MinConns = s.config.MinConns
	poolConfig.MaxConnLifetime = s.config.ConnMaxLifetime
	poolConfig.ConnConfig.ConnectTimeout = s.config.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return core.Wrap(err, core.ErrUnavailable, "failed to connect to PostgreSQL")
	}

	s.pool = pool
	return nil
}

// Stop закрывает пул подключений (реализация core.Lifecycle)
func (s *PostgresStore) Stop(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (s *PostgresStore) IsRunning() bool {
	return s.pool != nil
}

// Name возвращает имя компонента (реализация core.Component)
func (s *PostgresStore) Name() string {
	return "postgres-store"
}

// Type возвращает тип компонента (реализация core.Component)
func (s *PostgresStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет подключение (реализация core.HealthCheckable)
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if s.pool == nil {
		return core.NewError(core.ErrUnavailable, "postgres pool is not initialized")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return core.Wrap(err, core.ErrUnavailable, "postgres connection is down")
	}
	return nil
}

// Create сохраняет новую запись саги
func (s *PostgresStore) Create(ctx context.Context, record *saga.Purchase) error {
	steps, err := json.Marshal(record.CompletedSteps)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to encode completed steps")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO saga_states (
			transaction_id, customer_id, vehicle_id, payment_type, amount,
			status, payment_code, payment_id, completed_steps, failure_reason,
			cancel_requested, cancelled_step, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		record.TransactionID, record.CustomerID, record.VehicleID, record.PaymentType, record.Amount,
		record.Status, record.PaymentCode, record.PaymentID, steps, record.FailureReason,
		record.CancelRequested, record.CancelledStep, record.Version, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return core.NewErrorf(core.ErrAlreadyExists, "transaction %s already exists", record.TransactionID)
		}
		return core.Wrap(err, core.ErrUnavailable, "failed to insert saga state")
	}
	return nil
}

// Get возвращает снимок записи по идентификатору транзакции
func (s *PostgresStore) Get(ctx context.Context, transactionID string) (*saga.Purchase, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT transaction_id, customer_id, vehicle_id, payment_type, amount,
			status, payment_code, payment_id, completed_steps, failure_reason,
			cancel_requested, cancelled_step, version, created_at, updated_at
		FROM saga_states WHERE transaction_id = $1`, transactionID)

	record, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
		}
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to read saga state")
	}
	return record, nil
}

// CompareAndSwap заменяет запись при совпадении ожидаемой версии.
// При успехе в переданную запись записывается новая версия.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, transactionID string, expectedVersion int64, record *saga.Purchase) error {
	steps, err := json.Marshal(record.CompletedSteps)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to encode completed steps")
	}

	newVersion := expectedVersion + 1
	tag, err := s.pool.Exec(ctx, `
		UPDATE saga_states SET
			status = $3, payment_code = $4, payment_id = $5, completed_steps = $6,
			failure_reason = $7, cancel_requested = $8, cancelled_step = $9,
			version = $10, updated_at = $11
		WHERE transaction_id = $1 AND version = $2`,
		transactionID, expectedVersion,
		record.Status, record.PaymentCode, record.PaymentID, steps,
		record.FailureReason, record.CancelRequested, record.CancelledStep,
		newVersion, record.UpdatedAt,
	)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to update saga state")
	}

	if tag.RowsAffected() == 0 {
		var currentVersion int64
		err := s.pool.QueryRow(ctx,
			`SELECT version FROM saga_states WHERE transaction_id = $1`, transactionID,
		).Scan(&currentVersion)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
		}
		if err != nil {
			return core.Wrap(err, core.ErrUnavailable, "failed to read saga state version")
		}
		return core.NewErrorf(core.ErrVersionConflict,
			"transaction %s version is %d, expected %d", transactionID, currentVersion, expectedVersion)
	}

	record.Version = newVersion
	return nil
}

// List возвращает записи, удовлетворяющие фильтру,
// в порядке возрастания времени обновления.
func (s *PostgresStore) List(ctx context.Context, filter saga.Filter) ([]*saga.Purchase, error) {
	query := `
		SELECT transaction_id, customer_id, vehicle_id, payment_type, amount,
			status, payment_code, payment_id, completed_steps, failure_reason,
			cancel_requested, cancelled_step, version, created_at, updated_at
		FROM saga_states WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	if !filter.UpdatedBefore.IsZero() {
		args = append(args, filter.UpdatedBefore)
		query += " AND updated_at < $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY updated_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to query saga states")
	}
	defer rows.Close()

	var records []*saga.Purchase
	for rows.Next() {
		record, err := scanPurchase(rows)
		if err != nil {
			return nil, core.Wrap(err, core.ErrInternal, "failed to scan saga state")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to iterate saga states")
	}
	return records, nil
}

// AppendTransition добавляет запись аудита перехода
func (s *PostgresStore) AppendTransition(ctx context.Context, transition *saga.Transition) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saga_transitions (transaction_id, from_status, to_status, event, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		transition.TransactionID, transition.FromStatus, transition.ToStatus,
		transition.Event, transition.Detail, transition.OccurredAt,
	)
	if err != nil {
		return core.Wrap(err, core.ErrUnavailable, "failed to insert saga transition")
	}
	return nil
}

// History возвращает переходы саги в порядке возникновения
func (s *PostgresStore) History(ctx context.Context, transactionID string) ([]*saga.Transition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT transaction_id, from_status, to_status, event, detail, occurred_at
		FROM saga_transitions WHERE transaction_id = $1
		ORDER BY occurred_at ASC, id ASC`, transactionID)
	if err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to query saga transitions")
	}
	defer rows.Close()

	var transitions []*saga.Transition
	for rows.Next() {
		var t saga.Transition
		if err := rows.Scan(&t.TransactionID, &t.FromStatus, &t.ToStatus, &t.Event, &t.Detail, &t.OccurredAt); err != nil {
			return nil, core.Wrap(err, core.ErrInternal, "failed to scan saga transition")
		}
		transitions = append(transitions, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(err, core.ErrUnavailable, "failed to iterate saga transitions")
	}
	return transitions, nil
}

// scanPurchase читает запись саги из строки выборки
func scanPurchase(row pgx.Row) (*saga.Purchase, error) {
	var record saga.Purchase
	var steps []byte

	err := row.Scan(
		&record.TransactionID, &record.CustomerID, &record.VehicleID, &record.PaymentType, &record.Amount,
		&record.Status, &record.PaymentCode, &record.PaymentID, &steps, &record.FailureReason,
		&record.CancelRequested, &record.CancelledStep, &record.Version, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.CompletedSteps = []string{}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &record.CompletedSteps); err != nil {
			return nil, fmt.Errorf("failed to decode completed steps: %w", err)
		}
	}
	return &record, nil
}
