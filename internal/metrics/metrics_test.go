package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.RecordExchange("stream", true, 120, 30*time.Millisecond)
	c.RecordExchange("stream", false, 0, time.Millisecond)
	c.RecordExchange("unary", true, 64, time.Millisecond)
	c.RecordTokens(5)
	c.RecordFrameErrors(2)
	c.StreamStarted()
	c.StreamStarted()
	c.StreamEnded()

	body := scrape(t, c)
	assert.Contains(t, body, `tokligence_relay_requests_total{mode="stream",outcome="ok"} 1`)
	assert.Contains(t, body, `tokligence_relay_requests_total{mode="stream",outcome="failed"} 1`)
	assert.Contains(t, body, `tokligence_relay_requests_total{mode="unary",outcome="ok"} 1`)
	assert.Contains(t, body, "tokligence_relay_tokens_total 5")
	assert.Contains(t, body, "tokligence_relay_frame_parse_errors_total 2")
	assert.Contains(t, body, "tokligence_relay_active_streams 1")
	assert.Contains(t, body, `tokligence_relay_upstream_bytes_total{mode="stream"} 120`)
	assert.Contains(t, body, `tokligence_relay_upstream_duration_seconds_count{mode="stream"} 2`)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordExchange("unary", true, 1, time.Second)
	c.RecordTokens(1)
	c.RecordFrameErrors(1)
	c.StreamStarted()
	c.StreamEnded()
	c.RecordHTTP("/health", 200, time.Millisecond)
	c.RecordRateLimited("/v1/relay")
}

func TestHandlerExposesRuntimeAndHTTPSeries(t *testing.T) {
	c := NewCollector()
	c.RecordHTTP("/v1/relay", 200, time.Millisecond)
	c.RecordRateLimited("/v1/relay")

	body := scrape(t, c)
	assert.Contains(t, body, `tokligence_relay_http_requests_total{code="200",route="/v1/relay"} 1`)
	assert.Contains(t, body, `tokligence_relay_rate_limited_total{route="/v1/relay"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
