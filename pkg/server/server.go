package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/provider"
	"github.com/homefuse/homefuse/pkg/session"
	"github.com/homefuse/homefuse/pkg/solar"
)

// OAuthTarget is one provider's login surface: the session completing the
// code exchange and the scopes requested on the authorize redirect.
type OAuthTarget struct {
	Session *session.Session
	Scopes  []string
}

// Server handles the HTTP API for the HomeFuse aggregation service.
type Server struct {
	providers *provider.Map
	solar     *solar.Service
	oauth     map[string]OAuthTarget

	listenAddr    string
	publicBaseURL string
	serverName    string
	httpServer    *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(p *provider.Map, sol *solar.Service, oauth map[string]OAuthTarget) *Server {
	srv := &Server{
		providers:  p,
		solar:      sol,
		oauth:      oauth,
		serverName: "homefuse",
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	publicBaseURL := lflag.String("public-base-url", "http://localhost:"+port,
		"Externally reachable base URL, used to build OAuth redirect URIs")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.publicBaseURL = *publicBaseURL
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("POST /api/devices/{deviceId}/command", s.handleCommand)
	mux.HandleFunc("GET /api/solar/today", s.handleSolarToday)
	mux.HandleFunc("GET /api/solar/day", s.handleSolarDay)
	mux.HandleFunc("GET /api/solar/month", s.handleSolarMonth)
	mux.HandleFunc("GET /api/{provider}/login", s.handleLogin)
	mux.HandleFunc("GET /api/{provider}/callback", s.handleCallback)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.serverNameMiddleware(gziphandler.GzipHandler(mux))
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs, shutting down gracefully on cancel.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// callbackURL builds the externally reachable redirect URI for a provider's
// OAuth callback.
func (s *Server) callbackURL(providerID string) string {
	u, err := url.JoinPath(s.publicBaseURL, "api", providerID, "callback")
	if err != nil {
		// publicBaseURL is operator-supplied; fall back to naive concatenation
		return s.publicBaseURL + "/api/" + providerID + "/callback"
	}
	return u
}

func (s *Server) serverNameMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}
