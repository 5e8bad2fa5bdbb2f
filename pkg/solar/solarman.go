// Package solar fetches production telemetry from the Solarman cloud and
// reshapes it into the chart series served by the API. Every public method
// degrades to a deterministic fallback instead of failing; callers never see
// an error from this package.
package solar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/homefuse/homefuse/pkg/common"
	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/metrics"
	"github.com/homefuse/homefuse/pkg/provider"
	"github.com/homefuse/homefuse/pkg/session"
	"github.com/homefuse/homefuse/pkg/types"
)

const (
	defaultBaseURL = "https://globalapi.solarmanpv.com"

	// Solarman tokens are valid for 30 minutes; the session's expiry margin
	// re-authenticates shortly before that.
	tokenValidity = 30 * time.Minute

	// history request granularities
	timeTypeHourly = 1
	timeTypeDaily  = 2

	monthWindowDays = 30
)

// Config holds the Solarman account credentials. BaseURL, HTTPClient, Now,
// Rand and Location are overridable for tests.
type Config struct {
	Email     string
	Password  string
	AppID     string
	AppSecret string

	BaseURL    string
	HTTPClient *http.Client
	Now        func() time.Time
	Rand       func() float64
	Location   *time.Location
}

// Service is the Solarman telemetry client.
type Service struct {
	cfg     Config
	client  *http.Client
	session *session.Session

	mu        sync.Mutex
	stationID int64
}

// New returns a Service. Missing credentials are allowed; every query then
// serves its fallback.
func New(cfg Config) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = common.HTTPClient(time.Minute)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Service{cfg: cfg, client: cfg.HTTPClient}
	s.session = session.New(session.Config{
		ProviderID: "solarman",
		Reauth:     s.login,
		HTTPClient: cfg.HTTPClient,
		Now:        cfg.Now,
	})
	return s
}

// Today returns today's production as the legacy single-channel series. Any
// failure or empty payload yields the synthetic curve, never an error.
func (s *Service) Today(ctx context.Context) types.SolarSeries {
	items, err := s.hourlyItems(ctx)
	if err != nil || len(items) == 0 {
		s.logFallback(ctx, "today", err)
		metrics.IncSolarFallback("today", metrics.FallbackSynthetic)
		return Synthetic(s.cfg.Rand)
	}
	return ConvertHourly(items, s.cfg.Location)
}

// Day returns the last day's samples with battery and load channels. Any
// failure or empty payload yields the empty series.
func (s *Service) Day(ctx context.Context) types.ExtendedSolarSeries {
	items, err := s.hourlyItems(ctx)
	if err != nil || len(items) == 0 {
		s.logFallback(ctx, "day", err)
		metrics.IncSolarFallback("day", metrics.FallbackEmpty)
		return EmptyExtended()
	}
	return ConvertExtendedHourly(items, s.cfg.Location)
}

// Month returns the trailing 30-day daily series. Any failure or empty
// payload yields the empty series.
func (s *Service) Month(ctx context.Context) types.DailySolarSeries {
	items, err := s.dailyItems(ctx)
	if err != nil || len(items) == 0 {
		s.logFallback(ctx, "month", err)
		metrics.IncSolarFallback("month", metrics.FallbackEmpty)
		return EmptyDaily()
	}
	return ConvertDaily(items)
}

func (s *Service) logFallback(ctx context.Context, endpoint string, err error) {
	if err == nil {
		log.Ctx(ctx).InfoContext(ctx, "solarman returned no data, serving fallback",
			slog.String("endpoint", endpoint))
		return
	}
	log.Ctx(ctx).WarnContext(ctx, "solarman fetch failed, serving fallback",
		slog.String("endpoint", endpoint), slog.String("kind", provider.Kind(err)),
		slog.Any("error", err))
}

type authResult struct {
	Success     bool   `json:"success"`
	Msg         string `json:"msg"`
	AccessToken string `json:"access_token"`
}

// login is the session's reauth hook: app credentials plus account login in
// one JSON POST to the token endpoint.
func (s *Service) login(ctx context.Context) (string, time.Time, error) {
	if s.cfg.AppID == "" || s.cfg.Email == "" {
		return "", time.Time{}, fmt.Errorf("%w: solarman credentials not set", provider.ErrNotConfigured)
	}

	body, err := json.Marshal(map[string]string{
		"appId":     s.cfg.AppID,
		"appSecret": s.cfg.AppSecret,
		"email":     s.cfg.Email,
		"password":  s.cfg.Password,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := s.newRequest(ctx, "POST", "account/v1.0/token", body, false)
	if err != nil {
		return "", time.Time{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("%w: token status %d", provider.ErrAuthentication, resp.StatusCode)
	}

	var res authResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", provider.ErrPayloadShape, err)
	}
	if !res.Success || res.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: solarman login rejected: %s", provider.ErrAuthentication, res.Msg)
	}
	return res.AccessToken, s.cfg.Now().Add(tokenValidity), nil
}

type station struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type stationListResult struct {
	Success     bool      `json:"success"`
	Msg         string    `json:"msg"`
	Total       int       `json:"total"`
	StationList []station `json:"stationList"`
}

// ensureStation resolves and caches the account's first station id.
func (s *Service) ensureStation(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stationID != 0 {
		return s.stationID, nil
	}

	req, err := s.newRequest(ctx, "GET", "station/v1.0/list?page=1&size=20", nil, true)
	if err != nil {
		return 0, err
	}

	var res stationListResult
	if err := s.doJSON(req, &res); err != nil {
		return 0, err
	}
	if !res.Success {
		return 0, fmt.Errorf("%w: station list rejected: %s", provider.ErrPayloadShape, res.Msg)
	}
	if len(res.StationList) == 0 {
		return 0, fmt.Errorf("%w: account has no stations", provider.ErrPayloadShape)
	}
	s.stationID = res.StationList[0].ID
	log.Ctx(ctx).InfoContext(ctx, "selected solarman station",
		slog.Int64("stationID", s.stationID), slog.String("name", res.StationList[0].Name))
	return s.stationID, nil
}

type historyRequest struct {
	StationID int64  `json:"stationId"`
	TimeType  int    `json:"timeType"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type hourlyHistoryResult struct {
	Success          bool         `json:"success"`
	Msg              string       `json:"msg"`
	StationDataItems []HourlyItem `json:"stationDataItems"`
}

type dailyHistoryResult struct {
	Success          bool        `json:"success"`
	Msg              string      `json:"msg"`
	StationDataItems []DailyItem `json:"stationDataItems"`
}

func (s *Service) hourlyItems(ctx context.Context) ([]HourlyItem, error) {
	if err := s.session.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	stationID, err := s.ensureStation(ctx)
	if err != nil {
		return nil, err
	}

	today := s.cfg.Now().In(s.cfg.Location).Format("2006-01-02")
	var res hourlyHistoryResult
	if err := s.history(ctx, historyRequest{
		StationID: stationID,
		TimeType:  timeTypeHourly,
		StartTime: today,
		EndTime:   today,
	}, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: history rejected: %s", provider.ErrPayloadShape, res.Msg)
	}
	return res.StationDataItems, nil
}

func (s *Service) dailyItems(ctx context.Context) ([]DailyItem, error) {
	if err := s.session.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	stationID, err := s.ensureStation(ctx)
	if err != nil {
		return nil, err
	}

	now := s.cfg.Now().In(s.cfg.Location)
	var res dailyHistoryResult
	if err := s.history(ctx, historyRequest{
		StationID: stationID,
		TimeType:  timeTypeDaily,
		StartTime: now.AddDate(0, 0, -(monthWindowDays - 1)).Format("2006-01-02"),
		EndTime:   now.Format("2006-01-02"),
	}, &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: history rejected: %s", provider.ErrPayloadShape, res.Msg)
	}
	return res.StationDataItems, nil
}

func (s *Service) history(ctx context.Context, hr historyRequest, dest any) error {
	body, err := json.Marshal(hr)
	if err != nil {
		return err
	}
	req, err := s.newRequest(ctx, "POST", "station/v1.0/history", body, true)
	if err != nil {
		return err
	}
	return s.doJSON(req, dest)
}

func (s *Service) newRequest(ctx context.Context, method, endpoint string, body []byte, authed bool) (*http.Request, error) {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", provider.ErrNotConfigured, err)
	}
	path := endpoint
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		path, u.RawQuery = endpoint[:i], endpoint[i+1:]
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return nil, err
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.session.Token())
	}
	return req, nil
}

func (s *Service) doJSON(req *http.Request, dest any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		s.session.Invalidate()
		return fmt.Errorf("%w: solarman rejected token", provider.ErrAuthentication)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d on %s", provider.ErrTransport, resp.StatusCode, req.URL.Path)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrPayloadShape, err)
	}
	return nil
}
