package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const TokenPath = "/api/token"

var ErrNoAccessToken = errors.New("token exchange returned no access token")

type tokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error,omitempty"`
}

// HTTPTokenExchanger posts codes to the activity backend.
type HTTPTokenExchanger struct {
	baseURL string
	client  *http.Client

	// RedirectURI is sent along with the code when the authorization request
	// used a redirect other than the backend's own.
	RedirectURI string
}

// NewHTTPTokenExchanger returns an exchanger for the backend at baseURL. A nil
// client gets a traced default.
func NewHTTPTokenExchanger(baseURL string, client *http.Client) *HTTPTokenExchanger {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPTokenExchanger{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (e *HTTPTokenExchanger) Exchange(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(tokenRequest{Code: code, RedirectURI: e.RedirectURI})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+TokenPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call token endpoint: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	tok := tokenResponse{}
	decodeErr := json.Unmarshal(raw, &tok)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		if decodeErr == nil && tok.Error != "" {
			return "", fmt.Errorf("token exchange failed with status %d: %s", res.StatusCode, tok.Error)
		}
		return "", fmt.Errorf("token exchange failed with status %d", res.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode token response: %w", decodeErr)
	}
	if tok.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	return tok.AccessToken, nil
}

// StaticTokenExchanger hands out the same token for every code. It pairs with
// sdk.MockClient when no backend is involved.
type StaticTokenExchanger string

func (s StaticTokenExchanger) Exchange(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(s), nil
}
