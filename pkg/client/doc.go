// Package client redeems a signed service-account assertion for a
// Google-issued identity token and, optionally, asks the tokeninfo endpoint
// to describe that token.
//
// # Quick Start
//
//	c := client.New(
//	    client.WithLogger(logger),
//	    client.WithTimeout(10*time.Second),
//	)
//
//	res, err := c.Exchange(ctx, key.TokenURI, assertion)
//	if err != nil {
//	    return err
//	}
//
//	if idToken, ok := res.IDToken(); ok {
//	    info, err := c.Inspect(ctx, idToken)
//	    ...
//	}
//
// Exchange sends exactly one request:
//
//	POST <token_uri>
//	Content-Type: application/x-www-form-urlencoded
//
//	grant_type=urn:ietf:params:oauth:grant-type:jwt-bearer&assertion=<jwt>
//
// and Inspect exactly one:
//
//	GET https://www.googleapis.com/oauth2/v3/tokeninfo?id_token=<token>
//
// # Error Handling
//
// Neither call retries. Failures fall into three groups:
//
//	var statusErr *client.StatusError
//	switch {
//	case errors.As(err, &statusErr):
//	    // non-2xx; statusErr.StatusCode and statusErr.Body hold the reply
//	case errors.Is(err, client.ErrTransport):
//	    // DNS, connection, timeout, or the body could not be read
//	case errors.Is(err, client.ErrResponseMalformed):
//	    // 2xx, but the body was not a JSON object
//	}
//
// A *StatusError also unwraps to an *oauth2.RetrieveError for callers that
// already handle golang.org/x/oauth2 failures.
package client
