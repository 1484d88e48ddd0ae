package httpserver

import (
	"net/http"
	"time"

	"github.com/tokligence/tokligence-relay/internal/health"
	"github.com/tokligence/tokligence-relay/internal/httpserver/protocol"
)

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string { return "health" }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(e.server.HandleHealth)},
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.respondJSON(w, http.StatusOK, health.HealthStatus{Status: health.StatusHealthy, Timestamp: time.Now()})
		return
	}
	status := s.health.Check(r.Context())
	s.respondJSON(w, status.HTTPStatus(), status)
}
