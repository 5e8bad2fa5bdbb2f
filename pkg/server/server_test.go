package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homefuse/homefuse/pkg/provider"
	"github.com/homefuse/homefuse/pkg/session"
	"github.com/homefuse/homefuse/pkg/solar"
	"github.com/homefuse/homefuse/pkg/types"
)

type stubProvider struct {
	id      string
	devices []types.DeviceRecord
	err     error

	sendAccepted bool
	sendErr      error
}

func (p *stubProvider) ID() string { return p.id }

func (p *stubProvider) ListDevices(ctx context.Context) ([]types.DeviceRecord, error) {
	return p.devices, p.err
}

type stubSender struct {
	stubProvider
}

func (p *stubSender) SendCommand(ctx context.Context, deviceID, capability, command string, args []any) (bool, error) {
	return p.sendAccepted, p.sendErr
}

// brokenSolar returns a Service that cannot reach its vendor, so every query
// serves its fallback.
func brokenSolar() *solar.Service {
	return solar.New(solar.Config{
		Email:   "user@example.com",
		AppID:   "app",
		BaseURL: "http://127.0.0.1:1",
		Rand:    func() float64 { return 0.5 },
	})
}

func newTestServer(t *testing.T, pm *provider.Map, oauth map[string]OAuthTarget) *httptest.Server {
	t.Helper()
	if pm == nil {
		pm = provider.NewMap()
	}
	srv := &Server{
		providers:     pm,
		solar:         brokenSolar(),
		oauth:         oauth,
		publicBaseURL: "https://home.example.com",
		serverName:    "homefuse",
	}
	ts := httptest.NewServer(srv.setupHandler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHandleDevices(t *testing.T) {
	pm := provider.NewMap()
	pm.Register(&stubProvider{id: "broken", err: errors.New("vendor down")})
	pm.Register(&stubProvider{id: "ok", devices: []types.DeviceRecord{
		{DeviceID: "d1", Name: "outlet", Source: "SmartThings", Capabilities: []types.Capability{}},
	}})

	ts := newTestServer(t, pm, nil)
	resp, err := http.Get(ts.URL + "/api/devices")
	require.NoError(t, err)
	defer resp.Body.Close()

	// one provider failing never fails the endpoint
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var devices []types.DeviceRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "d1", devices[0].DeviceID)
}

func TestHandleDevicesEmptyIsArray(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp, err := http.Get(ts.URL + "/api/devices")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, "[]", string(raw), "no providers still yields an array, not null")
}

func TestHandleCommand(t *testing.T) {
	t.Run("VendorReject", func(t *testing.T) {
		pm := provider.NewMap()
		pm.Register(&stubSender{stubProvider{id: "smartthings", sendAccepted: false}})

		ts := newTestServer(t, pm, nil)
		resp, err := http.Post(ts.URL+"/api/devices/d1/command", "application/json",
			strings.NewReader(`{"capability":"switch","command":"on"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, "rejection is success:false, not an error status")
		var result types.CommandResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.False(t, result.Success)
	})

	t.Run("Accepted", func(t *testing.T) {
		pm := provider.NewMap()
		pm.Register(&stubSender{stubProvider{id: "smartthings", sendAccepted: true}})

		ts := newTestServer(t, pm, nil)
		resp, err := http.Post(ts.URL+"/api/devices/d1/command", "application/json",
			strings.NewReader(`{"capability":"switchLevel","command":"setLevel","arguments":[40]}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		var result types.CommandResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.True(t, result.Success)
	})

	t.Run("BadBody", func(t *testing.T) {
		ts := newTestServer(t, nil, nil)
		resp, err := http.Post(ts.URL+"/api/devices/d1/command", "application/json",
			strings.NewReader("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MissingFields", func(t *testing.T) {
		ts := newTestServer(t, nil, nil)
		resp, err := http.Post(ts.URL+"/api/devices/d1/command", "application/json",
			strings.NewReader(`{"capability":"switch"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSolarEndpointsFallbackShapes(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	t.Run("TodaySynthetic", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/solar/today")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got types.SolarSeries
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got.Labels, 13)
		assert.Equal(t, "06:00", got.Labels[0])
	})

	t.Run("DayEmpty", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/solar/day")
		require.NoError(t, err)
		defer resp.Body.Close()

		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		for _, field := range []string{"labels", "values", "batterySoc", "usePower"} {
			assert.JSONEq(t, "[]", string(raw[field]), "field %s must be [], not omitted", field)
		}
	})

	t.Run("MonthEmpty", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/solar/month")
		require.NoError(t, err)
		defer resp.Body.Close()

		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		for _, field := range []string{"labels", "values", "selfConsumed", "exportedToGrid"} {
			assert.JSONEq(t, "[]", string(raw[field]), "field %s must be [], not omitted", field)
		}
	})
}

func oauthTarget(t *testing.T, tokenHandler http.Handler) OAuthTarget {
	t.Helper()
	vendor := httptest.NewServer(tokenHandler)
	t.Cleanup(vendor.Close)
	sess := session.New(session.Config{
		ProviderID:    "smartthings",
		AuthURL:       vendor.URL + "/oauth/authorize",
		TokenURL:      vendor.URL + "/oauth/token",
		ClientID:      "client-id",
		ClientSecret:  "secret",
		TokenValidity: time.Hour,
		HTTPClient:    vendor.Client(),
	})
	return OAuthTarget{Session: sess, Scopes: []string{"r:devices:*"}}
}

func TestHandleLogin(t *testing.T) {
	target := oauthTarget(t, http.NotFoundHandler())
	ts := newTestServer(t, nil, map[string]OAuthTarget{"smartthings": target})

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/api/smartthings/login")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", loc.Path)
	assert.Equal(t, "client-id", loc.Query().Get("client_id"))
	assert.Equal(t, "https://home.example.com/api/smartthings/callback", loc.Query().Get("redirect_uri"))

	t.Run("UnknownProvider", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/nope/login")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandleCallback(t *testing.T) {
	readBody := func(t *testing.T, resp *http.Response) string {
		t.Helper()
		var sb strings.Builder
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			sb.Write(buf[:n])
			if err != nil {
				break
			}
		}
		return sb.String()
	}

	t.Run("Success", func(t *testing.T) {
		target := oauthTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "good-code", r.Form.Get("code"))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer"})
		}))
		ts := newTestServer(t, nil, map[string]OAuthTarget{"smartthings": target})

		resp, err := http.Get(ts.URL + "/api/smartthings/callback?code=good-code")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Contains(t, readBody(t, resp), "Authorization successful")
		assert.Equal(t, "tok", target.Session.Token())
	})

	t.Run("ExchangeFails", func(t *testing.T) {
		target := oauthTarget(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad code", http.StatusBadRequest)
		}))
		ts := newTestServer(t, nil, map[string]OAuthTarget{"smartthings": target})

		resp, err := http.Get(ts.URL + "/api/smartthings/callback?code=bad-code")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Contains(t, readBody(t, resp), "Failed to obtain access token")
	})

	t.Run("VendorError", func(t *testing.T) {
		target := oauthTarget(t, http.NotFoundHandler())
		ts := newTestServer(t, nil, map[string]OAuthTarget{"smartthings": target})

		resp, err := http.Get(ts.URL + "/api/smartthings/callback?error=access_denied<script>")
		require.NoError(t, err)
		defer resp.Body.Close()

		body := readBody(t, resp)
		assert.Contains(t, body, "Authorization failed: access_denied")
		assert.NotContains(t, body, "<script>", "vendor-supplied error must be escaped")
	})

	t.Run("NoCode", func(t *testing.T) {
		target := oauthTarget(t, http.NotFoundHandler())
		ts := newTestServer(t, nil, map[string]OAuthTarget{"smartthings": target})

		resp, err := http.Get(ts.URL + "/api/smartthings/callback")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Contains(t, readBody(t, resp), "No authorization code received")
	})
}

func TestHealthzAndServerHeader(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "homefuse", resp.Header.Get("Server"))
}

func TestIndexPage(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
