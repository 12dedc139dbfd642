package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/dealsaga/core"
)

func newVehicleClient(t *testing.T, baseURL string) *VehicleClient {
	t.Helper()
	config := DefaultVehicleServiceConfig()
	config.BaseURL = baseURL
	client, err := NewVehicleClient(config)
	require.NoError(t, err)
	return client
}

func newCustomerClient(t *testing.T, baseURL string) *CustomerClient {
	t.Helper()
	config := DefaultCustomerServiceConfig()
	config.BaseURL = baseURL
	client, err := NewCustomerClient(config)
	require.NoError(t, err)
	return client
}

func TestVehicleClient_GetVehicle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/vehicles/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 42, "brand": "Toyota", "model": "Corolla", "year": 2022,
			"price": 95000, "is_reserved": false, "is_sold": false
		}`))
	}))
	defer server.Close()

	client := newVehicleClient(t, server.URL)
	vehicle, err := client.GetVehicle(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), vehicle.ID)
	assert.Equal(t, "Toyota", vehicle.Brand)
	assert.Equal(t, "Corolla", vehicle.Model)
	assert.Equal(t, 2022, vehicle.Year)
	assert.Equal(t, 95000.0, vehicle.Price)
	assert.False(t, vehicle.IsReserved)
	assert.False(t, vehicle.IsSold)
}

func TestVehicleClient_GetVehicleNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Vehicle not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := newVehicleClient(t, server.URL)
	_, err := client.GetVehicle(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestVehicleClient_GetVehicleServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newVehicleClient(t, server.URL)
	_, err := client.GetVehicle(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrUnavailable))
}

func TestVehicleClient_GetVehicleUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newVehicleClient(t, server.URL)
	_, err := client.GetVehicle(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrUnavailable))
}

func TestVehicleClient_MarkVehicleSold(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "is_sold": true}`))
	}))
	defer server.Close()

	client := newVehicleClient(t, server.URL)
	require.NoError(t, client.MarkVehicleSold(context.Background(), 42))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/vehicles/42/mark_as_sold", gotPath)
}

func TestVehicleClient_MarkVehicleSoldNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Vehicle not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := newVehicleClient(t, server.URL)
	err := client.MarkVehicleSold(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestVehicleClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newVehicleClient(t, server.URL)
	require.NoError(t, client.HealthCheck(context.Background()))
	assert.Equal(t, "vehicle-service-client", client.Name())
	assert.Equal(t, core.ComponentTypeAdapter, client.Type())
}

func TestVehicleServiceConfig_Validate(t *testing.T) {
	valid := DefaultVehicleServiceConfig()
	require.NoError(t, valid.Validate())

	empty := valid
	empty.BaseURL = ""
	require.Error(t, empty.Validate())

	badScheme := valid
	badScheme.BaseURL = "ftp://vehicles"
	require.Error(t, badScheme.Validate())
}

func TestCustomerClient_GetCustomer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/customers/7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 7, "name": "Maria Silva", "email": "maria@example.com",
			"account_balance": 120000, "available_credit": 150000
		}`))
	}))
	defer server.Close()

	client := newCustomerClient(t, server.URL)
	customer, err := client.GetCustomer(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), customer.ID)
	assert.Equal(t, "Maria Silva", customer.Name)
	assert.Equal(t, "maria@example.com", customer.Email)
	assert.Equal(t, 120000.0, customer.AccountBalance)
	assert.Equal(t, 150000.0, customer.AvailableCredit)
}

func TestCustomerClient_GetCustomerNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Customer not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := newCustomerClient(t, server.URL)
	_, err := client.GetCustomer(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestCustomerClient_GetCustomerBadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newCustomerClient(t, server.URL)
	_, err := client.GetCustomer(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrInternal))
}

func TestCustomerServiceConfig_Validate(t *testing.T) {
	valid := DefaultCustomerServiceConfig()
	require.NoError(t, valid.Validate())

	empty := valid
	empty.BaseURL = ""
	require.Error(t, empty.Validate())
}
