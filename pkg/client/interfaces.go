package client

import "context"

// Exchanger redeems signed assertions at a token endpoint.
type Exchanger interface {
	Exchange(ctx context.Context, tokenURI string, assertion string) (TokenResponse, error)
}

// Inspector describes identity tokens.
type Inspector interface {
	Inspect(ctx context.Context, idToken string) (TokenInfo, error)
}

// Compile-time check that *Client implements both.
var _ Exchanger = (*Client)(nil)
var _ Inspector = (*Client)(nil)
