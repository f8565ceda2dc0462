// Package fetch retrieves alert groups from Alertmanager-compatible backends.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	promconfig "github.com/prometheus/common/config"

	"alertgroups/internal/config"
	"alertgroups/internal/domain"
)

const (
	groupsPath    = "api/v2/alerts/groups"
	tenantHeader  = "X-Scope-OrgID"
	errorBodySize = 512
)

// Fetcher returns the current alert groups of one backend.
type Fetcher interface {
	Fetch(ctx context.Context) ([]domain.RawGroup, error)
}

// Alertmanager polls `GET /api/v2/alerts/groups` of one source.
type Alertmanager struct {
	source   string
	endpoint string
	tenant   string
	timeout  time.Duration
	client   *http.Client
}

// NewAlertmanager builds an HTTP fetcher for one alertmanager source.
// Params: validated source config with url, auth, and query filters.
// Returns: ready fetcher or client construction error.
func NewAlertmanager(cfg config.SourceConfig) (*Alertmanager, error) {
	endpoint, err := groupsEndpoint(cfg)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}

	httpCfg := promconfig.DefaultHTTPClientConfig
	switch {
	case cfg.BearerToken != "":
		httpCfg.Authorization = &promconfig.Authorization{
			Type:        "Bearer",
			Credentials: promconfig.Secret(cfg.BearerToken),
		}
	case cfg.BasicAuthUsername != "":
		httpCfg.BasicAuth = &promconfig.BasicAuth{
			Username: cfg.BasicAuthUsername,
			Password: promconfig.Secret(cfg.BasicAuthPassword),
		}
	}
	if err := httpCfg.Validate(); err != nil {
		return nil, fmt.Errorf("source %s: http client config: %w", cfg.Name, err)
	}
	client, err := promconfig.NewClientFromConfig(httpCfg, "alertgroups_"+cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("source %s: build http client: %w", cfg.Name, err)
	}

	return &Alertmanager{
		source:   cfg.Name,
		endpoint: endpoint,
		tenant:   strings.TrimSpace(cfg.TenantID),
		timeout:  cfg.Timeout(),
		client:   client,
	}, nil
}

// Source returns the configured source name.
func (a *Alertmanager) Source() string {
	return a.source
}

// Endpoint returns the full groups URL including query filters.
func (a *Alertmanager) Endpoint() string {
	return a.endpoint
}

// Fetch performs one request and decodes the group list.
// Params: ctx bounds the request together with the source timeout.
// Returns: validated groups or *Error.
func (a *Alertmanager) Fetch(ctx context.Context) ([]domain.RawGroup, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return nil, &Error{Source: a.source, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if a.tenant != "" {
		req.Header.Set(tenantHeader, a.tenant)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &Error{Source: a.source, Kind: KindTransport, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySize))
		return nil, statusError(a.source, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	groups, err := domain.DecodeGroupsReader(json.NewDecoder(resp.Body))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &Error{Source: a.source, Kind: KindTransport, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, &Error{Source: a.source, Kind: KindDecode, StatusCode: resp.StatusCode, Err: err}
	}
	return groups, nil
}

// groupsEndpoint joins base url with the groups path and query filters.
// Params: source config.
// Returns: absolute request URL.
func groupsEndpoint(cfg config.SourceConfig) (string, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", cfg.URL)
	}
	endpoint := base.JoinPath(groupsPath)

	query := endpoint.Query()
	for _, filter := range cfg.Filter {
		if trimmed := strings.TrimSpace(filter); trimmed != "" {
			query.Add("filter", trimmed)
		}
	}
	if receiver := strings.TrimSpace(cfg.Receiver); receiver != "" {
		query.Set("receiver", receiver)
	}
	setBool(query, "active", cfg.Active)
	setBool(query, "silenced", cfg.Silenced)
	setBool(query, "inhibited", cfg.Inhibited)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

func setBool(query url.Values, key string, value *bool) {
	if value != nil {
		query.Set(key, strconv.FormatBool(*value))
	}
}
