package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/ledger"
	"github.com/tokligence/tokligence-relay/internal/port"
	"github.com/tokligence/tokligence-relay/internal/port/wsport"
	"github.com/tokligence/tokligence-relay/internal/relay"
	"github.com/tokligence/tokligence-relay/internal/settings"
	"github.com/tokligence/tokligence-relay/internal/version"
)

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RelayClient talks to relayd. It implements requester.Transport: the one-shot
// channel is POST /v1/relay and ports are websockets under /v1/ports/.
type RelayClient struct {
	baseURL    *url.URL
	httpClient HTTPClient
	logger     *zap.Logger
}

// NewRelayClient constructs a client for the relayd at baseURL. The default
// HTTP client has no timeout because relay round trips last as long as the
// upstream call.
func NewRelayClient(baseURL string, httpClient HTTPClient, logger *zap.Logger) (*RelayClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayClient{baseURL: parsed, httpClient: httpClient, logger: logger}, nil
}

// LedgerReport is the body of GET /v1/ledger.
type LedgerReport = ledger.Report

// errorResponse matches the standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// RoundTrip sends req on the one-shot channel.
func (c *RelayClient) RoundTrip(ctx context.Context, req relay.OutboundRequest) (relay.Reply, error) {
	var reply relay.Reply
	if err := c.doJSON(ctx, http.MethodPost, "/v1/relay", req, &reply); err != nil {
		return relay.Reply{}, err
	}
	return reply, nil
}

// OpenPort dials a websocket port named name.
func (c *RelayClient) OpenPort(ctx context.Context, name string) (port.Port, error) {
	target := c.wsURL("/v1/ports/" + url.PathEscape(name))
	c.logger.Debug("dialing port", zap.String("url", target))
	header := http.Header{"User-Agent": []string{version.UserAgent()}}
	conn, err := wsport.Dial(ctx, target, name, header, c.logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Settings fetches the saved settings.
func (c *RelayClient) Settings(ctx context.Context) (settings.Settings, error) {
	var out settings.Settings
	err := c.doJSON(ctx, http.MethodGet, "/v1/settings", nil, &out)
	return out, err
}

// SaveSettings replaces the saved settings.
func (c *RelayClient) SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	var out settings.Settings
	err := c.doJSON(ctx, http.MethodPut, "/v1/settings", s, &out)
	return out, err
}

// Ledger returns the most recent exchanges and the running totals.
func (c *RelayClient) Ledger(ctx context.Context, limit int) (LedgerReport, error) {
	path := "/v1/ledger"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out LedgerReport
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *RelayClient) wsURL(path string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *RelayClient) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return err
	}
	base := *c.baseURL
	base.Path = strings.TrimRight(base.Path, "/") + "/"
	endpoint := base.ResolveReference(rel)

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var errPayload errorResponse
		if err := json.Unmarshal(data, &errPayload); err == nil && strings.TrimSpace(errPayload.Error) != "" {
			return fmt.Errorf("relayd error: %s", errPayload.Error)
		}
		return fmt.Errorf("relayd error: status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
