package kis

import (
	"context"
	"encoding/json"
	"time"

	xhttp "AutoTrade/pkg/http"
	applogger "AutoTrade/pkg/logger"
)

// Token is the bearer credential returned by the client-credentials grant.
type Token struct {
	Value     string
	Type      string
	ExpiresAt time.Time
}

// fresh reports whether the token stays valid past the refresh skew.
func (t *Token) fresh(now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt.Add(-tokenRefreshSkew))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int64 `json:"expires_in"`
}

// Authenticate returns the cached token unless it is within the refresh skew
// of expiry or force is set. Concurrent callers block on the same grant.
func (c *Client) Authenticate(ctx context.Context, force bool) (Token, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if !force && c.token.fresh(c.now()) {
		return *c.token, nil
	}

	raw, err := c.send(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		Path:   "/oauth2/tokenP",
		Headers: map[string]string{
			"content-type": "application/json; charset=utf-8",
			"appkey":       c.cfg.AppKey,
			"appsecret":    c.cfg.AppSecret,
		},
		Body: map[string]string{
			"grant_type": "client_credentials",
			"appkey":     c.cfg.AppKey,
			"appsecret":  c.cfg.AppSecret,
		},
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordError("kis_auth")
		}
		return Token{}, &AuthenticationError{Reason: "token grant failed", Err: err}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw.Body, &tr); err != nil {
		return Token{}, &AuthenticationError{Reason: "malformed token response", Err: err}
	}
	if tr.AccessToken == "" || tr.TokenType == "" {
		return Token{}, &AuthenticationError{Reason: "token response missing access_token or token_type"}
	}

	expiresIn := int64(86400)
	if tr.ExpiresIn != nil {
		expiresIn = *tr.ExpiresIn
	}
	c.token = &Token{
		Value:     tr.AccessToken,
		Type:      tr.TokenType,
		ExpiresAt: c.now().Add(time.Duration(expiresIn) * time.Second),
	}
	c.log.Info("kis token issued",
		applogger.String("type", tr.TokenType),
		applogger.Int64("expires_in", expiresIn),
	)
	return *c.token, nil
}
