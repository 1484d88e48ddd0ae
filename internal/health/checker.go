package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component represents a system component that can be health-checked.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"` // database or http
	CheckResult
}

// Pinger is a store that can verify its connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Endpoint is an upstream probed with a plain GET.
type Endpoint struct {
	Name string
	URL  string
}

// HTTPClient is the subset of *http.Client used for probes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds health checker configuration.
type Config struct {
	// Databases are keyed by component name, e.g. "ledger_db".
	Databases map[string]Pinger
	// Endpoints are only probed when set; relayd fills them from the
	// provider catalog when health_probe_providers is on.
	Endpoints  []Endpoint
	HTTPClient HTTPClient

	DBTimeout          time.Duration
	HTTPTimeout        time.Duration
	MaxDatabaseLatency time.Duration
}

// Checker performs health checks on relayd's dependencies.
type Checker struct {
	databases  map[string]Pinger
	endpoints  []Endpoint
	httpClient HTTPClient

	dbTimeout          time.Duration
	httpTimeout        time.Duration
	maxDatabaseLatency time.Duration

	mu   sync.RWMutex
	last []Component
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.DBTimeout == 0 {
		cfg.DBTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxDatabaseLatency == 0 {
		cfg.MaxDatabaseLatency = 100 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Checker{
		databases:          cfg.Databases,
		endpoints:          cfg.Endpoints,
		httpClient:         cfg.HTTPClient,
		dbTimeout:          cfg.DBTimeout,
		httpTimeout:        cfg.HTTPTimeout,
		maxDatabaseLatency: cfg.MaxDatabaseLatency,
	}
}

// Check runs every probe concurrently and returns the overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	var wg sync.WaitGroup
	results := make(chan Component, len(c.databases)+len(c.endpoints))

	for name, db := range c.databases {
		if db == nil {
			continue
		}
		wg.Add(1)
		go func(name string, db Pinger) {
			defer wg.Done()
			results <- c.checkDatabase(ctx, name, db)
		}(name, db)
	}
	for _, ep := range c.endpoints {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			results <- c.checkHTTPEndpoint(ctx, ep)
		}(ep)
	}
	wg.Wait()
	close(results)

	components := make([]Component, 0, cap(results))
	for comp := range results {
		components = append(components, comp)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	c.mu.Lock()
	c.last = components
	c.mu.Unlock()

	return overall(components)
}

func (c *Checker) checkDatabase(ctx context.Context, name string, db Pinger) Component {
	comp := Component{Name: name, Type: "database", CheckResult: CheckResult{Timestamp: time.Now()}}

	dbCtx, cancel := context.WithTimeout(ctx, c.dbTimeout)
	defer cancel()

	start := time.Now()
	err := db.Ping(dbCtx)
	comp.Latency = time.Since(start)

	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Database unreachable"
	case comp.Latency > c.maxDatabaseLatency:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", comp.Latency)
	default:
		comp.Status = StatusHealthy
		comp.Message = "Connected"
	}
	return comp
}

func (c *Checker) checkHTTPEndpoint(ctx context.Context, ep Endpoint) Component {
	comp := Component{Name: ep.Name, Type: "http", CheckResult: CheckResult{Timestamp: time.Now()}}

	httpCtx, cancel := context.WithTimeout(ctx, c.httpTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(httpCtx, http.MethodGet, ep.URL, nil)
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Latency = time.Since(start)
		return comp
	}
	resp, err := c.httpClient.Do(req)
	comp.Latency = time.Since(start)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "Endpoint unreachable"
		return comp
	}
	defer resp.Body.Close()

	// any response, even 4xx/5xx, proves the upstream is up
	comp.Status = StatusHealthy
	comp.Message = fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	return comp
}

// overall is unhealthy when a database is down and degraded when anything
// else is not healthy.
func overall(components []Component) HealthStatus {
	status := StatusHealthy
	for _, comp := range components {
		if comp.Status == StatusHealthy {
			continue
		}
		if comp.Status == StatusUnhealthy && comp.Type == "database" {
			status = StatusUnhealthy
			break
		}
		status = StatusDegraded
	}
	return HealthStatus{Status: status, Timestamp: time.Now(), Components: components}
}

// HealthStatus represents the overall health of relayd.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// HTTPStatus maps the overall status to a response code.
func (h HealthStatus) HTTPStatus() int {
	if h.Status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// LastStatus returns the most recent result without probing.
func (c *Checker) LastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return overall(c.last)
}
