// Package tokens builds the signed JWT-bearer assertion that a service
// account presents to an OAuth token endpoint in exchange for an identity
// token, and decodes the identity token that comes back.
//
// Assertions are RS256 (RSA PKCS#1 v1.5 with SHA-256) signed and live for
// exactly AssertionLifetime:
//
//	key, err := keyfile.Load("sa.json")
//	if err != nil {
//	    return err
//	}
//
//	builder := tokens.NewBuilder(logger)
//	assertion, err := builder.Build(key, "https://my-service.example.com")
//	if err != nil {
//	    return err
//	}
//
// The claim set looks like:
//
//	{
//	  "iss": "<client_email>",
//	  "aud": "<token_uri>",
//	  "iat": 1700000000,
//	  "exp": 1700000060,
//	  "target_audience": "https://my-service.example.com"
//	}
//
// Build is Claims followed by Sign; callers that want to show the payload
// before it is signed can call the two halves themselves.
//
// # Error Handling
//
//	switch {
//	case errors.Is(err, tokens.ErrCrypto()):
//	    // the private key could not be parsed, or signing failed
//	case errors.Is(err, tokens.ErrAudienceRequired()):
//	    // no target audience was given
//	}
package tokens
