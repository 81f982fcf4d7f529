package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

const (
	// GrantTypeJWTBearer is the RFC 7523 grant type for assertion redemption.
	GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// DefaultTokenInfoURL is Google's token introspection endpoint.
	DefaultTokenInfoURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"

	// DefaultTimeout bounds each HTTP call.
	DefaultTimeout = 30 * time.Second
)

// Client talks to the token endpoint and the tokeninfo endpoint. Each call is
// a single attempt; nothing is retried or cached.
type Client struct {
	httpClient   *http.Client
	timeout      time.Duration
	tokenInfoURL string
	logger       *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for both calls. It takes
// precedence over WithTimeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithTimeout bounds each HTTP call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithTokenInfoURL overrides the introspection endpoint.
func WithTokenInfoURL(tokenInfoURL string) Option {
	return func(c *Client) { c.tokenInfoURL = tokenInfoURL }
}

// WithLogger sets the logger that receives diagnostic output.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a Client. Without options it targets Google's tokeninfo
// endpoint with DefaultTimeout.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:      DefaultTimeout,
		tokenInfoURL: DefaultTokenInfoURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// TokenInfoURL returns the introspection endpoint in use.
func (c *Client) TokenInfoURL() string { return c.tokenInfoURL }

// do sends req and returns the full body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	c.logger.Debug("sending request", "method", req.Method, "url", redact(req.URL))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(req, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transportError(req, errors.Wrap(err, "read response body"))
	}

	c.logger.Debug("received response", "status", res.StatusCode, "bytes", len(body))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, newStatusError(req, res, body)
	}
	return body, nil
}

func decodeObject(req *http.Request, body []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "%s %s: response is not a JSON object", req.Method, redact(req.URL)),
			ErrResponseMalformed,
		)
	}
	if obj == nil {
		return nil, errors.Mark(
			errors.Newf("%s %s: response is null", req.Method, redact(req.URL)),
			ErrResponseMalformed,
		)
	}
	return obj, nil
}

// redact drops the query string, which may carry a token.
func redact(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return clean.String()
}
