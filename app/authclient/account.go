package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/odin-workspace/ms-go-billing/config"
)

// ErrUnauthorized means the account service did not recognize the credential.
var ErrUnauthorized = errors.New("session credential rejected")

// AccountClient resolves bearer credentials to opaque user ids via the
// account service. The billing service trusts the returned identity.
type AccountClient struct {
	baseURL string
	client  *http.Client
}

func NewAccountClient(cfg config.InternalEndpointsConfig) *AccountClient {
	timeout := cfg.AccountTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &AccountClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.AccountBaseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *AccountClient) ResolveUser(ctx context.Context, bearerToken string) (string, error) {
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return "", ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/sessions/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("account service returned status=%d", resp.StatusCode)
	}

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return "", ErrUnauthorized
	}

	return strings.TrimSpace(payload.UserID), nil
}
