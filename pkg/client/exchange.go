package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
)

// TokenResponse is the token endpoint's JSON reply. Only id_token is ever
// looked at; the rest is passed through as returned.
type TokenResponse map[string]any

// IDToken returns the identity token, reporting false when the field is
// absent, not a string, or empty.
func (r TokenResponse) IDToken() (string, bool) {
	idToken, ok := r["id_token"].(string)
	return idToken, ok && idToken != ""
}

// Token returns the response as an oauth2.Token. The raw response is attached
// as the token's extra data, so Token().Extra("id_token") works too.
func (r TokenResponse) Token() *oauth2.Token {
	token := &oauth2.Token{}
	token.AccessToken, _ = r["access_token"].(string)
	token.TokenType, _ = r["token_type"].(string)
	token.RefreshToken, _ = r["refresh_token"].(string)
	if seconds, ok := r["expires_in"].(float64); ok && seconds > 0 {
		token.ExpiresIn = int64(seconds)
		token.Expiry = time.Now().Add(time.Duration(seconds) * time.Second)
	}
	return token.WithExtra(map[string]any(r))
}

// Exchange redeems a signed assertion at tokenURI with a single form-encoded
// POST.
func (c *Client) Exchange(
	ctx context.Context,
	tokenURI string,
	assertion string,
) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", GrantTypeJWTBearer)
	form.Set("assertion", assertion)

	c.logger.Debug("redeeming assertion", "assertion", assertion)
	c.logger.Debugf("POST %s -d grant_type=%s -d assertion=%s", tokenURI, GrantTypeJWTBearer, assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	obj, err := decodeObject(req, body)
	if err != nil {
		return nil, err
	}
	return TokenResponse(obj), nil
}
