// Package bosch fetches devices from a local Bosch Smart Home Controller,
// falling back to the Bosch IoT Hub cloud when a hub API key is configured.
package bosch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/homefuse/homefuse/pkg/common"
	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/provider"
	"github.com/homefuse/homefuse/pkg/session"
	"github.com/homefuse/homefuse/pkg/types"
)

const (
	defaultHubURL = "https://api.bosch-iot-suite.com/hub/1"

	// the controller's local API listens on this port
	defaultControllerPort = "8444"
)

// Config holds the local controller address and the optional IoT Hub
// credentials. Either half may be empty; the provider uses whatever is
// configured.
type Config struct {
	ControllerIP string
	HubURL       string
	APIKey       string
	HTTPClient   *http.Client
}

// Bosch lists devices from the local controller and the IoT Hub.
type Bosch struct {
	client         *http.Client
	controllerIP   string
	controllerPort string
	hubURL         string
	apiKey         string
	session        *session.Session
}

// New returns a Bosch provider. The hub session re-authenticates itself with
// the API key; the local controller needs no token.
func New(cfg Config) *Bosch {
	if cfg.HubURL == "" {
		cfg.HubURL = defaultHubURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = common.HTTPClient(30 * time.Second)
	}
	b := &Bosch{
		client:         cfg.HTTPClient,
		controllerIP:   cfg.ControllerIP,
		controllerPort: defaultControllerPort,
		hubURL:         cfg.HubURL,
		apiKey:         cfg.APIKey,
	}
	b.session = session.New(session.Config{
		ProviderID: "bosch",
		Reauth:     b.hubLogin,
		HTTPClient: cfg.HTTPClient,
	})
	return b
}

// ID implements provider.Provider.
func (b *Bosch) ID() string { return "bosch" }

type shcDevice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DeviceModel string `json:"deviceModel"`
	RoomID      string `json:"roomId"`
}

type shcDevicesResult struct {
	Result []shcDevice `json:"result"`
}

type shcRoom struct {
	Name string `json:"name"`
}

type iotDevice struct {
	ThingID    string `json:"thingId"`
	Attributes struct {
		Name     string `json:"name"`
		Model    string `json:"model"`
		Location string `json:"location"`
	} `json:"attributes"`
}

type iotDevicesResult struct {
	Items []iotDevice `json:"items"`
}

// ListDevices queries the local controller and the IoT Hub, concatenating
// whatever each configured source returns. Only when every configured source
// fails does the provider fail as a whole.
func (b *Bosch) ListDevices(ctx context.Context) ([]types.DeviceRecord, error) {
	if b.controllerIP == "" && b.apiKey == "" {
		return nil, fmt.Errorf("%w: neither controller ip nor hub api key set", provider.ErrNotConfigured)
	}

	devices := make([]types.DeviceRecord, 0)
	var firstErr error

	if b.controllerIP != "" {
		shc, err := b.controllerDevices(ctx)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "bosch controller fetch failed", slog.Any("error", err))
			firstErr = err
		} else {
			devices = append(devices, shc...)
		}
	}

	if b.apiKey != "" {
		hub, err := b.hubDevices(ctx)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "bosch iot hub fetch failed", slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		} else {
			devices = append(devices, hub...)
		}
	}

	if len(devices) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return devices, nil
}

func (b *Bosch) controllerDevices(ctx context.Context) ([]types.DeviceRecord, error) {
	var list shcDevicesResult
	if err := b.getJSON(ctx, b.controllerURL("smarthome/devices"), "", &list); err != nil {
		return nil, err
	}

	// room names are shared across devices; look each id up once
	roomNames := make(map[string]string)

	records := make([]types.DeviceRecord, 0, len(list.Result))
	for _, d := range list.Result {
		name := d.Name
		if name == "" {
			name = d.DeviceModel
		}
		rec := types.DeviceRecord{
			DeviceID:       d.ID,
			Name:           name,
			Label:          b.roomName(ctx, d.RoomID, roomNames),
			DeviceTypeName: deviceTypeForModel(d.DeviceModel),
			Capabilities:   []types.Capability{},
			Source:         "Bosch",
			Manufacturer:   "Bosch",
		}

		var state map[string]json.RawMessage
		if err := b.getJSON(ctx, b.controllerURL("smarthome/devices/"+d.ID+"/state"), "", &state); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "bosch device state fetch failed, keeping bare device",
				slog.String("deviceID", d.ID), slog.Any("error", err))
		} else {
			rec.Capabilities = flattenState(state)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (b *Bosch) hubDevices(ctx context.Context) ([]types.DeviceRecord, error) {
	if err := b.session.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var list iotDevicesResult
	if err := b.getJSON(ctx, b.hubURL+"/devices", b.session.Token(), &list); err != nil {
		return nil, err
	}

	records := make([]types.DeviceRecord, 0, len(list.Items))
	for _, d := range list.Items {
		name := d.Attributes.Name
		if name == "" {
			name = d.ThingID
		}
		label := d.Attributes.Location
		if label == "" {
			label = "Unknown"
		}
		rec := types.DeviceRecord{
			DeviceID:       d.ThingID,
			Name:           name,
			Label:          label,
			DeviceTypeName: deviceTypeForModel(d.Attributes.Model),
			Capabilities:   []types.Capability{},
			Source:         "Bosch",
			Manufacturer:   "Bosch",
		}

		var state map[string]json.RawMessage
		if err := b.getJSON(ctx, b.hubURL+"/devices/"+d.ThingID+"/state", b.session.Token(), &state); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "bosch device state fetch failed, keeping bare device",
				slog.String("deviceID", d.ThingID), slog.Any("error", err))
		} else {
			rec.Capabilities = flattenState(state)
		}
		records = append(records, rec)
	}
	return records, nil
}

type hubAuthResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// hubLogin is the session's reauth hook: a client-credentials style POST
// exchanging the API key for a short-lived bearer token.
func (b *Bosch) hubLogin(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(map[string]string{
		"apiKey":     b.apiKey,
		"grant_type": "client_credentials",
	})
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.hubURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("%w: hub auth status %d", provider.ErrAuthentication, resp.StatusCode)
	}

	var res hubAuthResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", provider.ErrPayloadShape, err)
	}
	if res.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: hub auth returned no token", provider.ErrAuthentication)
	}
	return res.AccessToken, time.Now().Add(time.Duration(res.ExpiresIn) * time.Second), nil
}

func (b *Bosch) controllerURL(endpoint string) string {
	u := url.URL{Scheme: "https", Host: b.controllerIP + ":" + b.controllerPort}
	u.Path = "/" + endpoint
	return u.String()
}

func (b *Bosch) roomName(ctx context.Context, roomID string, cache map[string]string) string {
	if roomID == "" {
		return "Unknown"
	}
	if name, ok := cache[roomID]; ok {
		return name
	}
	var room shcRoom
	if err := b.getJSON(ctx, b.controllerURL("smarthome/rooms/"+roomID), "", &room); err != nil || room.Name == "" {
		cache[roomID] = "Unknown Room"
		return "Unknown Room"
	}
	cache[roomID] = room.Name
	return room.Name
}

func (b *Bosch) getJSON(ctx context.Context, rawURL, token string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// only hub calls carry the session token; a 401 from the local
		// controller must not drop a still-valid hub token
		if token != "" {
			b.session.Invalidate()
		}
		return fmt.Errorf("%w: bosch rejected token", provider.ErrAuthentication)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d on %s", provider.ErrTransport, resp.StatusCode, rawURL)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrPayloadShape, err)
	}
	return nil
}

// deviceTypeForModel maps a Bosch model string to a friendly type name by
// substring, falling back to the raw model.
func deviceTypeForModel(model string) string {
	if model == "" {
		return "Unknown"
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "radiator"):
		return "Smart Radiator Thermostat"
	case strings.Contains(m, "thermostat"):
		return "Thermostat"
	case strings.Contains(m, "shutter"):
		return "Smart Shutter Control"
	case strings.Contains(m, "motion"):
		return "Motion Detector"
	case strings.Contains(m, "door"):
		return "Door/Window Contact"
	case strings.Contains(m, "smoke"):
		return "Smoke Detector"
	case strings.Contains(m, "camera"):
		return "Security Camera"
	case strings.Contains(m, "switch"):
		return "Smart Switch"
	case strings.Contains(m, "plug"):
		return "Smart Plug"
	case strings.Contains(m, "light"):
		return "Smart Light"
	case strings.Contains(m, "sensor"):
		return "Universal Sensor"
	default:
		return model
	}
}
