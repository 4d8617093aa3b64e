// Package osiptel implements the extraction collaborator against the
// OSIPTEL phone-line lookup form. One Extract call is one lookup: load the
// form to establish a session cookie, post the document query, and read
// the results grid. The client never retries; the engine owns retries and
// rotates the proxy identity between attempts.
package osiptel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hvborda/lineas/pkg/extract"
	"github.com/hvborda/lineas/pkg/proxy"
)

// Document type code for RUC lookups on the form.
const docTypeRUC = "2"

// ClientOption allows for customization of the client.
type ClientOption func(*Client)

// Client performs lookups through rotating proxy sessions.
type Client struct {
	config   *Config
	proxyCfg *proxy.Config
	logger   *logrus.Logger
}

// NewClient creates a lookup client. proxyCfg renders each lease into the
// transport proxy URL.
func NewClient(config *Config, proxyCfg *proxy.Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if proxyCfg == nil {
		return nil, fmt.Errorf("proxy config is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}

	client := &Client{
		config:   config,
		proxyCfg: proxyCfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Extract implements extract.Extractor: one lookup for one RUC through the
// given session identity.
func (c *Client) Extract(ctx context.Context, session *proxy.Lease, ruc string) ([]extract.Record, error) {
	httpClient, err := c.httpClientFor(session)
	if err != nil {
		return nil, extract.NewError(extract.KindSessionError, "building proxied client", err)
	}

	if err := c.loadForm(ctx, httpClient); err != nil {
		return nil, err
	}

	body, err := c.postLookup(ctx, httpClient, ruc)
	if err != nil {
		return nil, err
	}

	records, err := parseGrid(body)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"ruc":     ruc,
		"session": session.Token,
		"lines":   len(records),
	}).Debug("Lookup completed")

	return records, nil
}

// httpClientFor builds an HTTP client routed through the lease's session
// identity, with a fresh cookie jar per lookup.
func (c *Client) httpClientFor(session *proxy.Lease) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: c.config.RequestTimeout,
		Jar:     jar,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(session.ProxyURL(c.proxyCfg)),
		},
	}, nil
}

// loadForm fetches the lookup page so the server issues its session
// cookie before the query is posted.
func (c *Client) loadForm(ctx context.Context, httpClient *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("building form request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("loading lookup form: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return c.checkStatus(resp)
}

// postLookup submits the document query and returns the response body.
func (c *Client) postLookup(ctx context.Context, httpClient *http.Client, ruc string) (io.ReadCloser, error) {
	form := url.Values{
		"IdTipoDoc":       {docTypeRUC},
		"NumeroDocumento": {ruc},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/Consulta/Buscar", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building lookup request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting lookup: %w", err)
	}
	if err := c.checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// checkStatus maps HTTP-level failures onto the error taxonomy.
func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return extract.NewError(extract.KindRateLimited,
			fmt.Sprintf("service throttled the request: status=%d", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return extract.NewError(extract.KindPageLoadError,
			fmt.Sprintf("service error: status=%d", resp.StatusCode), nil)
	default:
		return extract.NewError(extract.KindPageLoadError,
			fmt.Sprintf("unexpected status=%d", resp.StatusCode), nil)
	}
}
