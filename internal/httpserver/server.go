// Package httpserver exposes the executor over HTTP: the one-shot channel,
// websocket ports and the settings, ledger, health and metrics endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/health"
	"github.com/tokligence/tokligence-relay/internal/httpserver/protocol"
	"github.com/tokligence/tokligence-relay/internal/ledger"
	"github.com/tokligence/tokligence-relay/internal/metrics"
	"github.com/tokligence/tokligence-relay/internal/port"
	"github.com/tokligence/tokligence-relay/internal/ratelimit"
	"github.com/tokligence/tokligence-relay/internal/relay"
	"github.com/tokligence/tokligence-relay/internal/settings"
)

// DefaultEndpoints lists every endpoint group mounted when none are configured.
var DefaultEndpoints = []string{"relay", "settings", "ledger", "health", "metrics"}

// DefaultMaxBodyBytes caps request bodies accepted by relayd.
const DefaultMaxBodyBytes = 8 << 20

// Executor is the privileged side served by relayd.
type Executor interface {
	HandleOneShot(ctx context.Context, req relay.OutboundRequest) relay.Reply
	ServeStream(ctx context.Context, p port.Port) error
}

// Config wires the server's collaborators. Only Executor is required; an
// endpoint whose backing store is nil is not mounted.
type Config struct {
	Executor     Executor
	Settings     settings.Store
	Ledger       ledger.Store
	Health       *health.Checker
	Metrics      *metrics.Collector
	Logger       *zap.Logger
	Endpoints    []string
	MaxBodyBytes int64
	// InstanceID, when set, is returned in the X-Relay-Instance header.
	InstanceID string
	// RateLimit throttles the relay endpoint per client; nil admits all.
	RateLimit *ratelimit.Limiter
}

// Server hosts relayd's HTTP surface.
type Server struct {
	exec         Executor
	settings     settings.Store
	ledger       ledger.Store
	health       *health.Checker
	metrics      *metrics.Collector
	logger       *zap.Logger
	endpointKeys []string
	maxBodyBytes int64
	instanceID   string
	limiter      *ratelimit.Limiter
	baseCtx      context.Context
	cancel       context.CancelFunc
}

// New returns a server for cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		exec:         cfg.Executor,
		settings:     cfg.Settings,
		ledger:       cfg.Ledger,
		health:       cfg.Health,
		metrics:      cfg.Metrics,
		logger:       logger.Named("httpserver"),
		endpointKeys: normalizeEndpointKeys(cfg.Endpoints, DefaultEndpoints),
		maxBodyBytes: cfg.MaxBodyBytes,
		instanceID:   cfg.InstanceID,
		limiter:      cfg.RateLimit,
		baseCtx:      ctx,
		cancel:       cancel,
	}
}

// Shutdown ends every port still being served. http.Server.Shutdown does not
// track hijacked connections, so relayd calls this alongside it.
func (s *Server) Shutdown() {
	s.cancel()
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	s.registerEndpointKeys(r, s.endpointKeys...)
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.instanceID != "" {
		r.Use(middleware.SetHeader("X-Relay-Instance", s.instanceID))
	}
	return r
}

// requestLogger logs each request through zap and feeds the HTTP metrics,
// labelled by route pattern to keep cardinality bounded.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.RecordHTTP(route, status, elapsed)
		s.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed))
	})
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...protocol.Endpoint) {
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		s.logger.Debug("registering endpoint", zap.String("endpoint", ep.Name()))
		router := r
		if ep.Name() == "relay" && s.limiter != nil {
			router = r.With(ratelimit.Middleware(s.limiter, s.logger, s.recordRateLimited))
		}
		for _, route := range ep.Routes() {
			router.Method(route.Method, route.Path, route.Handler)
		}
	}
}

func (s *Server) recordRateLimited(r *http.Request) {
	route := "unmatched"
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		route = rc.RoutePattern()
	}
	s.metrics.RecordRateLimited(route)
}

func (s *Server) registerEndpointKeys(r chi.Router, keys ...string) int {
	var endpoints []protocol.Endpoint
	for _, key := range keys {
		if ep := s.endpointByKey(key); ep != nil {
			endpoints = append(endpoints, ep)
		} else {
			s.logger.Debug("endpoint unavailable, skipping registration", zap.String("endpoint", key))
		}
	}
	s.registerEndpoints(r, endpoints...)
	return len(endpoints)
}

func (s *Server) endpointByKey(key string) protocol.Endpoint {
	switch key {
	case "relay":
		if s.exec == nil {
			return nil
		}
		return newRelayEndpoint(s)
	case "settings":
		if s.settings == nil {
			return nil
		}
		return newSettingsEndpoint(s)
	case "ledger":
		if s.ledger == nil {
			return nil
		}
		return newLedgerEndpoint(s)
	case "health", "status":
		return newHealthEndpoint(s)
	case "metrics":
		if s.metrics == nil {
			return nil
		}
		return newMetricsEndpoint(s)
	default:
		return nil
	}
}

func normalizeEndpointKeys(list []string, defaults []string) []string {
	if len(list) == 0 {
		list = defaults
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, key := range list {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
