package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/lineage"
)

// SiteVisitsClient checks the site visits service for records that block
// deleting a source document.
type SiteVisitsClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSiteVisitsClient creates a new site visits client.
func NewSiteVisitsClient(baseURL string) *SiteVisitsClient {
	return &SiteVisitsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type siteVisitsResponse struct {
	Visits []struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
	} `json:"visits"`
}

// Dependents returns site visits recorded against a document.
func (c *SiteVisitsClient) Dependents(ctx context.Context, kind domain.Kind, id string) ([]lineage.Dependent, error) {
	// Site visits are only recorded against proposal content documents.
	if !kind.CarriesContent() {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/site-visits?document_id=%s", c.baseURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list site visits for %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list site visits for %s: unexpected status %d", id, resp.StatusCode)
	}

	var body siteVisitsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	deps := make([]lineage.Dependent, 0, len(body.Visits))
	for _, v := range body.Visits {
		label := fmt.Sprintf("site visit %s", v.Reference)
		if v.Reference == "" {
			label = fmt.Sprintf("site visit %s", v.ID)
		}
		deps = append(deps, lineage.Dependent{
			Ref:   domain.Ref{ID: v.ID},
			Label: label,
		})
	}
	return deps, nil
}
