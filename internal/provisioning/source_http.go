package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"deployassist/pkg/platform/sentinel"
)

// HTTPSource fetches provisioning records from an export endpoint that speaks
// paginated JSON: GET <base>?pageSize=N&pageToken=T&modifiedSince=RFC3339
// returning {"records": [...], "nextPageToken": "..."}. Authentication against
// the upstream happens outside this process (gateway or sidecar).
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for the given export endpoint.
func NewHTTPSource(baseURL string, client *http.Client) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("source base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse source base URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{baseURL: baseURL, client: client}, nil
}

type sourcePage struct {
	Records       []map[string]any `json:"records"`
	NextPageToken string           `json:"nextPageToken"`
}

func (s *HTTPSource) FetchRecords(ctx context.Context, filter Filter) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build source request: %w", err)
	}

	q := req.URL.Query()
	if filter.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(filter.PageSize))
	}
	if filter.PageToken != "" {
		q.Set("pageToken", filter.PageToken)
	}
	if !filter.ModifiedSince.IsZero() {
		q.Set("modifiedSince", filter.ModifiedSince.Format(time.RFC3339))
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch records: %w: %w", sentinel.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("source returned status %d: %w", resp.StatusCode, sentinel.ErrSourceUnavailable)
	}

	var page sourcePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode source page: %w: %w", sentinel.ErrSourceUnavailable, err)
	}

	out := Page{NextPageToken: page.NextPageToken}
	out.Records = make([]RawRecord, 0, len(page.Records))
	for _, payload := range page.Records {
		out.Records = append(out.Records, RawRecord{Payload: payload})
	}
	return out, nil
}
