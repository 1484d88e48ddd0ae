package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/httpserver/protocol"
	"github.com/tokligence/tokligence-relay/internal/ledger"
	"github.com/tokligence/tokligence-relay/internal/settings"
)

// MaxLedgerLimit bounds GET /v1/ledger?limit=.
const MaxLedgerLimit = 500

type settingsEndpoint struct {
	server *Server
}

func newSettingsEndpoint(server *Server) protocol.Endpoint {
	return &settingsEndpoint{server: server}
}

func (e *settingsEndpoint) Name() string { return "settings" }

func (e *settingsEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/v1/settings", Handler: http.HandlerFunc(e.server.handleGetSettings)},
		{Method: http.MethodPut, Path: "/v1/settings", Handler: http.HandlerFunc(e.server.handlePutSettings)},
	}
}

// handleGetSettings returns the saved record, or an empty one before the
// first save. ?redact=1 masks the API key.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings.Get(r.Context())
	if err != nil && !errors.Is(err, settings.ErrNotFound) {
		s.logger.Error("load settings", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if parseFlag(r.URL.Query().Get("redact")) {
		current = current.Redacted()
	}
	s.respondJSON(w, http.StatusOK, current)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := s.decodeJSON(w, r, &next); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err))
		return
	}
	next.APIKey = strings.TrimSpace(next.APIKey)
	next.SelectedProvider = strings.TrimSpace(next.SelectedProvider)
	saved, err := s.settings.Save(r.Context(), next)
	if err != nil {
		s.logger.Error("save settings", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("settings updated", zap.String("provider", saved.SelectedProvider))
	s.respondJSON(w, http.StatusOK, saved.Redacted())
}

type ledgerEndpoint struct {
	server *Server
}

func newLedgerEndpoint(server *Server) protocol.Endpoint {
	return &ledgerEndpoint{server: server}
}

func (e *ledgerEndpoint) Name() string { return "ledger" }

func (e *ledgerEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/v1/ledger", Handler: http.HandlerFunc(e.server.handleLedger)},
	}
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit := ledger.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, MaxLedgerLimit)
	}
	summary, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	entries, err := s.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	s.respondJSON(w, http.StatusOK, ledger.Report{Summary: summary, Entries: entries})
}

type metricsEndpoint struct {
	server *Server
}

func newMetricsEndpoint(server *Server) protocol.Endpoint {
	return &metricsEndpoint{server: server}
}

func (e *metricsEndpoint) Name() string { return "metrics" }

func (e *metricsEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/metrics", Handler: e.server.metrics.Handler()},
	}
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
