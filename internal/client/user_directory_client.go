package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// UserDirectoryClient resolves actor ids to role sets against the platform
// user directory, and role names to user ids for notification fan-out.
type UserDirectoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUserDirectoryClient creates a new user directory client.
func NewUserDirectoryClient(baseURL string) *UserDirectoryClient {
	return &UserDirectoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

type usersResponse struct {
	UserIDs []string `json:"user_ids"`
}

// GetUserRoles returns the role names a user holds.
func (c *UserDirectoryClient) GetUserRoles(ctx context.Context, userID string) ([]string, error) {
	var resp rolesResponse
	path := fmt.Sprintf("/api/v1/users/%s/roles", url.PathEscape(userID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("get roles for user %s: %w", userID, err)
	}
	return resp.Roles, nil
}

// GetUsersWithRole returns user ids that hold the given role.
func (c *UserDirectoryClient) GetUsersWithRole(ctx context.Context, role string) ([]string, error) {
	var resp usersResponse
	path := fmt.Sprintf("/api/v1/roles/%s/users", url.PathEscape(role))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("get users with role %s: %w", role, err)
	}
	return resp.UserIDs, nil
}

func (c *UserDirectoryClient) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
