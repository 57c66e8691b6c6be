// Package catalog reads dataset metadata from the content-addressed message
// store that owns the dataset catalog. This service only ever takes a
// per-request snapshot; datasets are never cached across requests because
// price and owner can change between draft and settlement.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound indicates no dataset exists under the given id.
var ErrNotFound = errors.New("dataset not found")

// Dataset is the catalog's dataset record. A dataset with an empty Price is
// free and must short-circuit the entire payment path.
type Dataset struct {
	Name              string   `json:"name"`
	Owner             string   `json:"owner"`
	OwnsAllTimeseries bool     `json:"ownsAllTimeseries"`
	Available         *bool    `json:"available,omitempty"`
	TimeseriesIDs     []string `json:"timeseriesIDs"`
	Desc              string   `json:"desc,omitempty"`
	ViewIDs           []string `json:"viewIDs,omitempty"`
	Price             string   `json:"price,omitempty"` // human units, decimal string
}

// Reader fetches dataset snapshots by id.
type Reader interface {
	GetDataset(ctx context.Context, datasetID string) (*Dataset, error)
}

// Client reads datasets over the message store's HTTP post-query API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a catalog client against the message store API server.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// postsResponse is the envelope of the message store's post-query endpoint.
type postsResponse struct {
	Posts []struct {
		Content Dataset `json:"content"`
	} `json:"posts"`
}

// GetDataset fetches the dataset posted under the given content hash.
func (c *Client) GetDataset(ctx context.Context, datasetID string) (*Dataset, error) {
	q := url.Values{}
	q.Set("types", "Dataset")
	q.Set("hashes", datasetID)
	q.Set("pagination", "1")
	q.Set("page", "1")

	u := fmt.Sprintf("%s/api/v0/posts.json?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("dataset query returned status %d: %s", resp.StatusCode, string(body))
	}

	var out postsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode dataset response: %w", err)
	}

	if len(out.Posts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, datasetID)
	}

	ds := out.Posts[0].Content
	c.logger.Debug("fetched dataset",
		"dataset_id", datasetID,
		"name", ds.Name,
		"price", ds.Price,
		"timeseries_count", len(ds.TimeseriesIDs),
	)
	return &ds, nil
}
