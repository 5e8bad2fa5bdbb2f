// Package smartthings fetches devices from the Samsung SmartThings cloud and
// flattens their status into normalized capability records.
package smartthings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/homefuse/homefuse/pkg/common"
	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/provider"
	"github.com/homefuse/homefuse/pkg/session"
	"github.com/homefuse/homefuse/pkg/types"
)

const (
	defaultBaseURL = "https://api.smartthings.com/v1"

	// tokens from the authorization-code grant are good for 24 hours
	tokenValidity = 24 * time.Hour
)

// DefaultScopes is the scope set requested during authorization.
var DefaultScopes = []string{"r:devices:*"}

// DefaultProbes is the capability probe table applied to each device's "main"
// component. Order here is output order.
func DefaultProbes() []provider.CapabilityProbe {
	return []provider.CapabilityProbe{
		{Capability: "switch"},
		{Capability: "switchLevel"},
		{Capability: "temperatureMeasurement", Attribute: "temperature"},
		{Capability: "thermostatMode"},
		{Capability: "dryerOperatingState", Attribute: "machineState"},
		{Capability: "machineState"},
	}
}

// Config holds the app credentials issued by the SmartThings developer
// workspace. BaseURL and HTTPClient are overridable for tests.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	HTTPClient   *http.Client
}

// SmartThings lists and commands devices through the SmartThings cloud API.
type SmartThings struct {
	client   *http.Client
	baseURL  string
	clientID string
	probes   []provider.CapabilityProbe
	session  *session.Session
}

// New returns a SmartThings provider. An empty ClientID is allowed; the
// provider then reports itself unconfigured on every call instead of failing
// construction.
func New(cfg Config) *SmartThings {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = common.HTTPClient(time.Minute)
	}
	return &SmartThings{
		client:   cfg.HTTPClient,
		baseURL:  cfg.BaseURL,
		clientID: cfg.ClientID,
		probes:   DefaultProbes(),
		session: session.New(session.Config{
			ProviderID:    "smartthings",
			AuthURL:       cfg.BaseURL + "/oauth/authorize",
			TokenURL:      cfg.BaseURL + "/oauth/token",
			ClientID:      cfg.ClientID,
			ClientSecret:  cfg.ClientSecret,
			TokenValidity: tokenValidity,
			HTTPClient:    cfg.HTTPClient,
		}),
	}
}

// ID implements provider.Provider.
func (s *SmartThings) ID() string { return "smartthings" }

// Session exposes the OAuth session for the login and callback handlers.
func (s *SmartThings) Session() *session.Session { return s.session }

type deviceItem struct {
	DeviceID       string `json:"deviceId"`
	Name           string `json:"name"`
	Label          string `json:"label"`
	DeviceTypeName string `json:"deviceTypeName"`
}

type deviceListResult struct {
	Items []deviceItem `json:"items"`
}

type deviceStatusResult struct {
	Components map[string]provider.ComponentStatus `json:"components"`
}

// ListDevices fetches the device list and then each device's status,
// normalizing the "main" component through the probe table. A device whose
// status fetch fails still appears in the result with no capabilities; only a
// failure of the list call itself fails the provider.
func (s *SmartThings) ListDevices(ctx context.Context) ([]types.DeviceRecord, error) {
	if s.clientID == "" {
		return nil, fmt.Errorf("%w: smartthings client id not set", provider.ErrNotConfigured)
	}
	if err := s.session.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var list deviceListResult
	if err := s.get(ctx, "devices", &list); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	records := make([]types.DeviceRecord, 0, len(list.Items))
	for _, item := range list.Items {
		rec := types.DeviceRecord{
			DeviceID:       item.DeviceID,
			Name:           item.Name,
			Label:          item.Label,
			DeviceTypeName: item.DeviceTypeName,
			Capabilities:   []types.Capability{},
			Source:         "SmartThings",
			Manufacturer:   "Samsung",
		}

		var status deviceStatusResult
		if err := s.get(ctx, "devices/"+item.DeviceID+"/status", &status); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "device status fetch failed, keeping bare device",
				slog.String("deviceID", item.DeviceID), slog.Any("error", err))
		} else if main, ok := status.Components["main"]; ok {
			rec.Capabilities = provider.Normalize(main, s.probes)
		}

		records = append(records, rec)
	}
	return records, nil
}

type commandPayload struct {
	Commands []deviceCommand `json:"commands"`
}

type deviceCommand struct {
	Component  string `json:"component"`
	Capability string `json:"capability"`
	Command    string `json:"command"`
	Arguments  []any  `json:"arguments"`
}

// SendCommand dispatches one command against the device's "main" component.
// A vendor rejection (any non-2xx status) is reported as accepted=false, not
// as an error.
func (s *SmartThings) SendCommand(ctx context.Context, deviceID, capability, command string, args []any) (bool, error) {
	if err := s.session.EnsureAuthenticated(ctx); err != nil {
		return false, err
	}
	if args == nil {
		args = []any{}
	}

	payload := commandPayload{
		Commands: []deviceCommand{{
			Component:  "main",
			Capability: capability,
			Command:    command,
			Arguments:  args,
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	req, err := s.newRequest(ctx, "POST", "devices/"+deviceID+"/commands", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		s.session.Invalidate()
	}
	accepted := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !accepted {
		log.Ctx(ctx).WarnContext(ctx, "smartthings rejected command",
			slog.String("deviceID", deviceID), slog.String("capability", capability),
			slog.String("command", command), slog.Int("status", resp.StatusCode))
	}
	return accepted, nil
}

func (s *SmartThings) newRequest(ctx context.Context, method, endpoint string, body *bytes.Reader) (*http.Request, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", provider.ErrNotConfigured, err)
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	var r *http.Request
	if body != nil {
		r, err = http.NewRequestWithContext(ctx, method, u.String(), body)
	} else {
		r, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, err
	}
	r.Header.Set("Authorization", "Bearer "+s.session.Token())
	return r, nil
}

func (s *SmartThings) get(ctx context.Context, endpoint string, dest any) error {
	req, err := s.newRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		s.session.Invalidate()
		return fmt.Errorf("%w: smartthings rejected token", provider.ErrAuthentication)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d on %s", provider.ErrTransport, resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrPayloadShape, err)
	}
	return nil
}
