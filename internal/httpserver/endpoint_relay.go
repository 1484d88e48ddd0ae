package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/httpserver/protocol"
	"github.com/tokligence/tokligence-relay/internal/port/wsport"
	"github.com/tokligence/tokligence-relay/internal/relay"
)

type relayEndpoint struct {
	server *Server
}

func newRelayEndpoint(server *Server) protocol.Endpoint {
	return &relayEndpoint{server: server}
}

func (e *relayEndpoint) Name() string { return "relay" }

func (e *relayEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/v1/relay", Handler: http.HandlerFunc(e.server.handleOneShot)},
		{Method: http.MethodGet, Path: "/v1/ports/{namespace}", Handler: http.HandlerFunc(e.server.handlePort)},
	}
}

// handleOneShot answers the one-shot channel. Relay failures travel inside
// the reply, so anything that decoded is answered with 200.
func (s *Server) handleOneShot(w http.ResponseWriter, r *http.Request) {
	var req relay.OutboundRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid relay request: %w", err))
		return
	}
	s.respondJSON(w, http.StatusOK, s.exec.HandleOneShot(r.Context(), req))
}

// handlePort upgrades to a websocket and serves one streaming port on it.
func (s *Server) handlePort(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if namespace != relay.StreamNamespace {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("unknown port namespace %q", namespace))
		return
	}
	conn, err := wsport.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		s.logger.Debug("port upgrade failed", zap.Error(err))
		return
	}
	p := wsport.New(namespace, conn, s.logger)
	if err := s.exec.ServeStream(s.baseCtx, p); err != nil {
		s.logger.Debug("stream port ended with failure", zap.Error(err))
	}
}
