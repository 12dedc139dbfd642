package messagebus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akriventsev/dealsaga/transport"
)

func TestFactory_CreateInMemory(t *testing.T) {
	factory := NewFactory(zap.NewNop(), nil)

	// nil конфигурация дает адаптер по умолчанию
	bus, err := factory.Create("inmemory", nil)
	require.NoError(t, err)
	require.NotNil(t, bus)

	adapter, ok := bus.(*InMemoryAdapter)
	require.True(t, ok)
	assert.Equal(t, "inmemory-messagebus", adapter.Name())
}

func TestFactory_CreateNATS(t *testing.T) {
	factory := NewFactory(zap.NewNop(), nil)

	// Подключение происходит в Start, создание не требует сервера
	bus, err := factory.Create("nats", DefaultNATSConfig())
	require.NoError(t, err)
	require.NotNil(t, bus)

	// URL строкой тоже принимается
	bus, err = factory.Create("nats", "nats://localhost:4222")
	require.NoError(t, err)
	require.NotNil(t, bus)

	// Неверный тип конфигурации
	_, err = factory.Create("nats", 42)
	require.Error(t, err)
}

func TestFactory_CreateKafka(t *testing.T) {
	factory := NewFactory(zap.NewNop(), nil)

	bus, err := factory.Create("kafka", DefaultKafkaConfig())
	require.NoError(t, err)
	require.NotNil(t, bus)

	_, err = factory.Create("kafka", "not-a-config")
	require.Error(t, err)

	invalid := DefaultKafkaConfig()
	invalid.Brokers = nil
	_, err = factory.Create("kafka", invalid)
	require.Error(t, err)
}

func TestFactory_CreateRedis(t *testing.T) {
	factory := NewFactory(zap.NewNop(), nil)

	bus, err := factory.Create("redis", DefaultRedisConfig())
	require.NoError(t, err)
	require.NotNil(t, bus)

	invalid := DefaultRedisConfig()
	invalid.Addr = ""
	_, err = factory.Create("redis", invalid)
	require.Error(t, err)
}

func TestFactory_CreateUnknown(t *testing.T) {
	factory := NewFactory(zap.NewNop(), nil)

	_, err := factory.Create("rabbitmq", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown message bus type")
}

func TestFactory_Register(t *testing.T) {
	factory := NewFactory(zap.NewNop(), nil)

	err := factory.Register("custom", func(config interface{}) (transport.MessageBus, error) {
		return NewInMemoryAdapter(DefaultInMemoryConfig()), nil
	})
	require.NoError(t, err)

	bus, err := factory.Create("custom", nil)
	require.NoError(t, err)
	require.NotNil(t, bus)

	// Повторная регистрация под тем же именем запрещена
	err = factory.Register("custom", func(config interface{}) (transport.MessageBus, error) {
		return nil, nil
	})
	require.Error(t, err)

	// Пустое имя и nil creator запрещены
	require.Error(t, factory.Register("", nil))
	require.Error(t, factory.Register("empty-creator", nil))
}

func TestFactory_ListRegistered(t *testing.T) {
	factory := NewFactory(zap.NewNop(), nil)

	names := factory.ListRegistered()
	assert.Len(t, names, 4)
	assert.Contains(t, names, "inmemory")
	assert.Contains(t, names, "nats")
	assert.Contains(t, names, "kafka")
	assert.Contains(t, names, "redis")
}

func TestNATSConfig_Validate(t *testing.T) {
	valid := DefaultNATSConfig()
	require.NoError(t, valid.Validate())

	empty := valid
	empty.URL = ""
	require.Error(t, empty.Validate())

	badScheme := valid
	badScheme.URL = "http://localhost:4222"
	require.Error(t, badScheme.Validate())

	tls := valid
	tls.URL = "tls://localhost:4222"
	require.NoError(t, tls.Validate())
}

func TestKafkaConfig_Validate(t *testing.T) {
	valid := DefaultKafkaConfig()
	require.NoError(t, valid.Validate())

	noBrokers := valid
	noBrokers.Brokers = nil
	require.Error(t, noBrokers.Validate())

	badBroker := valid
	badBroker.Brokers = []string{"localhost"}
	require.Error(t, badBroker.Validate())

	noGroup := valid
	noGroup.GroupID = ""
	require.Error(t, noGroup.Validate())
}

func TestRedisConfig_Validate(t *testing.T) {
	valid := DefaultRedisConfig()
	require.NoError(t, valid.Validate())

	noAddr := valid
	noAddr.Addr = ""
	require.Error(t, noAddr.Validate())

	noPrefix := valid
	noPrefix.StreamPrefix = ""
	require.Error(t, noPrefix.Validate())

	noGroup := valid
	noGroup.ConsumerGroup = ""
	require.Error(t, noGroup.Validate())
}
