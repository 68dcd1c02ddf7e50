// Package oauth verifies third-party identity tokens.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// ErrInvalidIDToken is returned for any token Google rejects or that was
// issued to another client.
var ErrInvalidIDToken = errors.New("invalid google id token")

// GoogleIdentity is the verified subset of an ID token's claims.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
}

// GoogleVerifier checks ID tokens against Google's tokeninfo endpoint.
type GoogleVerifier struct {
	clientID   string
	endpoint   string
	httpClient *http.Client
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID:   clientID,
		endpoint:   googleTokenInfoURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidIDToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		v.endpoint+"?"+url.Values{"id_token": {idToken}}.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokeninfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrInvalidIDToken
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tokeninfo failed with status %d: %s", resp.StatusCode, string(body))
	}

	// tokeninfo encodes booleans and numbers as strings
	var info struct {
		Aud           string `json:"aud"`
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if info.Aud != v.clientID || info.Sub == "" {
		return nil, ErrInvalidIDToken
	}
	if info.Email == "" || info.EmailVerified != "true" {
		return nil, ErrInvalidIDToken
	}
	return &GoogleIdentity{
		Subject: info.Sub,
		Email:   strings.ToLower(strings.TrimSpace(info.Email)),
		Name:    info.Name,
	}, nil
}
