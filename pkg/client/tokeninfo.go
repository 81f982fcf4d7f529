package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
)

// TokenInfo is the introspection endpoint's JSON reply. It is diagnostic and
// never checked against expected claims.
type TokenInfo map[string]any

// Inspect asks the tokeninfo endpoint to describe idToken with a single GET.
func (c *Client) Inspect(
	ctx context.Context,
	idToken string,
) (TokenInfo, error) {
	u, err := url.Parse(c.tokenInfoURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse tokeninfo URL %q", c.tokenInfoURL)
	}
	query := u.Query()
	query.Set("id_token", idToken)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build tokeninfo request")
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	obj, err := decodeObject(req, body)
	if err != nil {
		return nil, err
	}
	return TokenInfo(obj), nil
}
