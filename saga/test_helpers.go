package saga

import (
	"context"
	"sync"
	"time"

	"github.com/akriventsev/dealsaga/core"
	"github.com/akriventsev/dealsaga/events"
	"github.com/akriventsev/dealsaga/transport"
)

// busMessage сообщение, записанное mockBus
type busMessage struct {
	subject string
	data    []byte
	headers map[string]string
}

// mockBus mock реализация transport.MessageBus для тестов
type mockBus struct {
	mu         sync.Mutex
	published  []busMessage
	handlers   map[string]transport.MessageHandler
	queues     map[string]string
	publishErr error
}

func newMockBus() *mockBus {
	return &mockBus{
		handlers: make(map[string]transport.MessageHandler),
		queues:   make(map[string]string),
	}
}

func (b *mockBus) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, busMessage{subject: subject, data: data, headers: headers})
	return nil
}

func (b *mockBus) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler, opts ...transport.SubscribeOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	options := transport.ApplySubscribeOptions(opts...)
	b.handlers[subject] = handler
	b.queues[subject] = options.Queue
	return nil
}

func (b *mockBus) Unsubscribe(subject string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, subject)
	delete(b.queues, subject)
	return nil
}

// publishedSubjects возвращает subjects опубликованных сообщений по порядку
func (b *mockBus) publishedSubjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	subjects := make([]string, len(b.published))
	for i, msg := range b.published {
		subjects[i] = msg.subject
	}
	return subjects
}

// lastPublished возвращает последнее опубликованное сообщение
func (b *mockBus) lastPublished() (busMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		return busMessage{}, false
	}
	return b.published[len(b.published)-1], true
}

// reset очищает журнал публикаций
func (b *mockBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

// mockStore mock реализация Store для тестов. Соблюдает контракт
// CompareAndSwap, включая запись новой версии в переданную запись.
type mockStore struct {
	mu          sync.Mutex
	records     map[string]*Purchase
	transitions []*Transition
	casErr      error
	createErr   error
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]*Purchase)}
}

func (s *mockStore) Create(ctx context.Context, record *Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, exists := s.records[record.TransactionID]; exists {
		return core.NewErrorf(core.ErrAlreadyExists, "transaction %s already exists", record.TransactionID)
	}
	s.records[record.TransactionID] = record.Clone()
	return nil
}

func (s *mockStore) Get(ctx context.Context, transactionID string) (*Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.records[transactionID]
	if !exists {
		return nil, core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
	}
	return record.Clone(), nil
}

func (s *mockStore) CompareAndSwap(ctx context.Context, transactionID string, expectedVersion int64, record *Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casErr != nil {
		return s.casErr
	}
	current, exists := s.records[transactionID]
	if !exists {
		return core.NewErrorf(core.ErrNotFound, "transaction %s not found", transactionID)
	}
	if current.Version != expectedVersion {
		return core.NewErrorf(core.ErrVersionConflict, "transaction %s version is %d, expected %d",
			transactionID, current.Version, expectedVersion)
	}
	record.Version = expectedVersion + 1
	s.records[transactionID] = record.Clone()
	return nil
}

func (s *mockStore) List(ctx context.Context, filter Filter) ([]*Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*Purchase, 0)
	for _, record := range s.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !record.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		result = append(result, record.Clone())
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *mockStore) AppendTransition(ctx context.Context, transition *Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, transition)
	return nil
}

func (s *mockStore) History(ctx context.Context, transactionID string) ([]*Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*Transition, 0)
	for _, transition := range s.transitions {
		if transition.TransactionID == transactionID {
			result = append(result, transition)
		}
	}
	return result, nil
}

// put кладет запись в хранилище напрямую, минуя Create
func (s *mockStore) put(record *Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.TransactionID] = record.Clone()
}

// current возвращает актуальную запись напрямую
func (s *mockStore) current(transactionID string) *Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[transactionID].Clone()
}

// mockVehicleCatalog mock реализация VehicleCatalog для тестов
type mockVehicleCatalog struct {
	mu        sync.Mutex
	vehicle   *Vehicle
	getErr    error
	markErr   error
	markCalls int
}

func (c *mockVehicleCatalog) GetVehicle(ctx context.Context, vehicleID int64) (*Vehicle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	vehicle := *c.vehicle
	return &vehicle, nil
}

func (c *mockVehicleCatalog) MarkVehicleSold(ctx context.Context, vehicleID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markCalls++
	return c.markErr
}

func (c *mockVehicleCatalog) soldCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markCalls
}

// mockCustomerDirectory mock реализация CustomerDirectory для тестов
type mockCustomerDirectory struct {
	customer *Customer
	getErr   error
}

func (d *mockCustomerDirectory) GetCustomer(ctx context.Context, customerID int64) (*Customer, error) {
	if d.getErr != nil {
		return nil, d.getErr
	}
	customer := *d.customer
	return &customer, nil
}

// mockNotifier mock реализация events.EventPublisher для тестов
type mockNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *mockNotifier) Publish(ctx context.Context, event events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *mockNotifier) eventTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]string, len(n.events))
	for i, event := range n.events {
		types[i] = event.EventType()
	}
	return types
}

// testVehicle возвращает доступный для покупки автомобиль
func testVehicle() *Vehicle {
	return &Vehicle{
		ID:    42,
		Brand: "Toyota",
		Model: "Corolla",
		Year:  2022,
		Price: 95000,
	}
}

// testCustomer возвращает платежеспособного клиента
func testCustomer() *Customer {
	return &Customer{
		ID:              7,
		Name:            "Maria Silva",
		Email:           "maria@example.com",
		AccountBalance:  120000,
		AvailableCredit: 150000,
	}
}

// stale возвращает момент в прошлом для проверок watchdog
func stale(d time.Duration) time.Time {
	return time.Now().UTC().Add(-d)
}
