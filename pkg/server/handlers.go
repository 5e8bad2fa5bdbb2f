package server

import (
	"encoding/json"
	"html"
	"log/slog"
	"net/http"

	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/types"
)

// handleDevices returns the merged device list across every provider. A
// provider failing contributes nothing; the endpoint itself never 5xxs on
// vendor trouble.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.providers.ListDevices(r.Context())
	writeJSON(w, devices)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceId")

	var req types.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid command body", http.StatusBadRequest)
		return
	}
	if req.Capability == "" || req.Command == "" {
		writeJSONError(w, "capability and command are required", http.StatusBadRequest)
		return
	}

	success := s.providers.SendCommand(r.Context(), deviceID, req)
	writeJSON(w, types.CommandResult{Success: success})
}

func (s *Server) handleSolarToday(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.solar.Today(r.Context()))
}

func (s *Server) handleSolarDay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.solar.Day(r.Context()))
}

func (s *Server) handleSolarMonth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.solar.Month(r.Context()))
}

// handleLogin redirects the browser to the provider's authorize URL.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")
	target, ok := s.oauth[providerID]
	if !ok {
		writeJSONError(w, "unknown provider", http.StatusNotFound)
		return
	}

	authURL, err := target.Session.AuthorizationURL(s.callbackURL(providerID), target.Scopes)
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to build authorize url",
			slog.String("provider", providerID), slog.Any("error", err))
		writeJSONError(w, "provider not configured", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback completes the code exchange and renders a human-readable
// result page. Vendor-supplied query values are escaped before echoing.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")
	target, ok := s.oauth[providerID]
	if !ok {
		writeJSONError(w, "unknown provider", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		writeCallbackPage(w, "Authorization failed: "+html.EscapeString(errMsg))
		return
	}
	code := q.Get("code")
	if code == "" {
		writeCallbackPage(w, "No authorization code received.")
		return
	}

	if target.Session.ExchangeCode(r.Context(), code, s.callbackURL(providerID)) {
		writeCallbackPage(w, "Authorization successful! You can close this tab and refresh the dashboard.")
		return
	}
	writeCallbackPage(w, "Failed to obtain access token.")
}

func writeCallbackPage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte("<h2>" + msg + "</h2>")); err != nil {
		panic(http.ErrAbortHandler)
	}
}
