/**
 * @description
 * This package provides a client for the external identity provider's admin
 * API. The provider has no change feed for account metadata, so the
 * entitlement sync job periodically pulls the full account list through this
 * client and mirrors email, name and disabled state into local entitlement
 * rows.
 */
package identityclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is a client for the identity provider's admin endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new identity provider client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Account is one identity-provider account record.
type Account struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Disabled bool   `json:"disabled"`
}

type listAccountsResponse struct {
	Accounts      []Account `json:"accounts"`
	NextPageToken string    `json:"next_page_token"`
}

// ListAccounts fetches every account from the identity provider, following
// pagination until the provider reports no further page.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("identity provider base url is empty")
	}

	var all []Account
	pageToken := ""
	for {
		url := fmt.Sprintf("%s/admin/accounts?page_size=%s", c.baseURL, strconv.Itoa(1000))
		if pageToken != "" {
			url += "&page_token=" + pageToken
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if strings.TrimSpace(c.apiKey) != "" {
			req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request to identity provider: %w", err)
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("identity provider returned error status %d", resp.StatusCode)
		}

		var page listAccountsResponse
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		resp.Body.Close()

		all = append(all, page.Accounts...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}
