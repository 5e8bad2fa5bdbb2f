package bosch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefuse/homefuse/pkg/provider"
	"github.com/homefuse/homefuse/pkg/types"
)

func hubProvider(t *testing.T, handler http.Handler) *Bosch {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(Config{
		APIKey:     "key-123",
		HubURL:     ts.URL,
		HTTPClient: ts.Client(),
	})
}

func TestHubDevices(t *testing.T) {
	var authCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		authCalls.Add(1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key-123", body["apiKey"])
		assert.Equal(t, "client_credentials", body["grant_type"])
		json.NewEncoder(w).Encode(map[string]any{"access_token": "hub-token", "expires_in": 3600})
	})
	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hub-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"thingId": "thing-1",
					"attributes": map[string]string{
						"name": "Radiator", "model": "bosch-radiator-ii", "location": "Bedroom",
					},
				},
				{"thingId": "thing-2"},
			},
		})
	})
	mux.HandleFunc("GET /devices/thing-1/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"temperature": 21.52, "childProtection": true,
		})
	})
	mux.HandleFunc("GET /devices/thing-2/state", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	b := hubProvider(t, mux)
	got, err := b.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "thing-1", got[0].DeviceID)
	assert.Equal(t, "Radiator", got[0].Name)
	assert.Equal(t, "Bedroom", got[0].Label)
	assert.Equal(t, "Smart Radiator Thermostat", got[0].DeviceTypeName)
	assert.Equal(t, "Bosch", got[0].Source)
	assert.Equal(t, []types.Capability{
		{Name: "Temperature", Value: "21.5°C"},
		{Name: "Child Lock", Value: "Enabled"},
	}, got[0].Capabilities)

	// missing attributes fall back to the thing id; failed state keeps the device
	assert.Equal(t, "thing-2", got[1].Name)
	assert.Equal(t, "Unknown", got[1].Label)
	assert.Empty(t, got[1].Capabilities)
	assert.NotNil(t, got[1].Capabilities)

	// token is reused on a second listing
	_, err = b.ListDevices(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, authCalls.Load())
}

func TestListDevicesNotConfigured(t *testing.T) {
	b := New(Config{})
	_, err := b.ListDevices(context.Background())
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
}

func TestHubAuthFailure(t *testing.T) {
	b := hubProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	_, err := b.ListDevices(context.Background())
	assert.ErrorIs(t, err, provider.ErrAuthentication)
}

func TestControllerDevices(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /smarthome/devices", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]string{
				{"id": "shc-1", "name": "Shutter", "deviceModel": "shutter-control-2", "roomId": "room-1"},
				{"id": "shc-2", "deviceModel": "twinguard-smoke"},
			},
		})
	})
	mux.HandleFunc("GET /smarthome/rooms/room-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"name": "Living Room"})
	})
	mux.HandleFunc("GET /smarthome/devices/shc-1/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"level": 75.0, "operationState": "STOPPED", "on": false,
		})
	})
	mux.HandleFunc("GET /smarthome/devices/shc-2/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	})

	ts := httptest.NewTLSServer(mux)
	defer ts.Close()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)

	b := New(Config{ControllerIP: u.Hostname(), HTTPClient: ts.Client()})
	// point the controller port at the test server
	b.controllerPort = u.Port()

	got, err := b.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "shc-1", got[0].DeviceID)
	assert.Equal(t, "Living Room", got[0].Label)
	assert.Equal(t, "Smart Shutter Control", got[0].DeviceTypeName)
	assert.Equal(t, []types.Capability{
		{Name: "Level", Value: "75%"},
		{Name: "Power", Value: "Off"},
		{Name: "Operation State", Value: "STOPPED"},
	}, got[0].Capabilities)

	// name falls back to the model, room lookup skipped without a room id
	assert.Equal(t, "twinguard-smoke", got[1].Name)
	assert.Equal(t, "Unknown", got[1].Label)
	assert.Equal(t, "Smoke Detector", got[1].DeviceTypeName)
	assert.Empty(t, got[1].Capabilities)
}

func TestControllerRejectionKeepsHubToken(t *testing.T) {
	var authCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /smarthome/devices", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		authCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "hub-token", "expires_in": 3600})
	})
	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hub-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"thingId": "thing-1"}},
		})
	})
	mux.HandleFunc("GET /devices/thing-1/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	})

	// one TLS server plays both the local controller and the hub
	ts := httptest.NewTLSServer(mux)
	defer ts.Close()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)

	b := New(Config{
		ControllerIP: u.Hostname(),
		HubURL:       ts.URL,
		APIKey:       "key-123",
		HTTPClient:   ts.Client(),
	})
	b.controllerPort = u.Port()

	got, err := b.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hub-token", b.session.Token(), "controller 401 must not drop the hub token")

	_, err = b.ListDevices(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, authCalls.Load(), "second listing reuses the hub token")
}

func TestFlattenState(t *testing.T) {
	raw := map[string]json.RawMessage{
		"temperature":     json.RawMessage(`19.25`),
		"humidity":        json.RawMessage(`55.6`),
		"on":              json.RawMessage(`true`),
		"childProtection": json.RawMessage(`false`),
		"unknownField":    json.RawMessage(`"ignored"`),
	}
	got := flattenState(raw)
	assert.Equal(t, []types.Capability{
		{Name: "Temperature", Value: "19.2°C"},
		{Name: "Humidity", Value: "56%"},
		{Name: "Power", Value: "On"},
		{Name: "Child Lock", Value: "Disabled"},
	}, got)

	assert.Empty(t, flattenState(nil))
	assert.NotNil(t, flattenState(nil))
}

func TestDeviceTypeForModel(t *testing.T) {
	assert.Equal(t, "Thermostat", deviceTypeForModel("Bosch Smart Thermostat"))
	assert.Equal(t, "Smart Radiator Thermostat", deviceTypeForModel("radiator-thermostat-ii"))
	assert.Equal(t, "Door/Window Contact", deviceTypeForModel("DOOR-contact"))
	assert.Equal(t, "Unknown", deviceTypeForModel(""))
	assert.Equal(t, "weird-model", deviceTypeForModel("weird-model"))
}
