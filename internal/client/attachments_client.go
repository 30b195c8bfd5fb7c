package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// AttachmentsClient talks to the attachment store service. This service only
// ever holds opaque references; bytes live with the store. Deleting a
// document cascades reference removal here, coordinated (best-effort) by the
// orchestrator.
type AttachmentsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAttachmentsClient creates a new attachment store client.
func NewAttachmentsClient(baseURL string) *AttachmentsClient {
	return &AttachmentsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// DeleteAttachment removes a stored attachment by its locator.
func (c *AttachmentsClient) DeleteAttachment(ctx context.Context, locator string) error {
	endpoint := fmt.Sprintf("%s/api/v1/attachments/%s", c.baseURL, url.PathEscape(locator))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build attachment delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete attachment %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete attachment %s: unexpected status %d", locator, resp.StatusCode)
	}
	return nil
}
