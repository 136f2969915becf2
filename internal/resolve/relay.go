package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RelayClient lists repos hosting a collection, used by backfill
// discovery.
type RelayClient struct {
	client   *http.Client
	relayURL string
	logger   *slog.Logger
}

// NewRelayClient builds a relay client; empty relayURL means the public
// relay.
func NewRelayClient(relayURL string, logger *slog.Logger) *RelayClient {
	if relayURL == "" {
		relayURL = DefaultRelayURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayClient{
		client:   &http.Client{Timeout: 30 * time.Second},
		relayURL: relayURL,
		logger:   logger,
	}
}

// WithClient substitutes the HTTP client, mainly for tests.
func (c *RelayClient) WithClient(hc *http.Client) *RelayClient {
	c.client = hc
	return c
}

// RepoPage is one page of repos hosting a collection.
type RepoPage struct {
	DIDs   []string
	Cursor string
}

// ListReposByCollection returns one page of repo DIDs that carry records
// in the given collection.
func (c *RelayClient) ListReposByCollection(ctx context.Context, collection, cursor string, limit int) (*RepoPage, error) {
	vals := url.Values{"collection": {collection}}
	if cursor != "" {
		vals.Set("cursor", cursor)
	}
	if limit > 0 {
		vals.Set("limit", strconv.Itoa(limit))
	}
	u := c.relayURL + "/xrpc/com.atproto.sync.listReposByCollection?" + vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list repos: status %d", resp.StatusCode)
	}

	var out struct {
		Repos []struct {
			DID string `json:"did"`
		} `json:"repos"`
		Cursor string `json:"cursor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode list repos: %w", err)
	}

	page := &RepoPage{Cursor: out.Cursor}
	for _, repo := range out.Repos {
		if repo.DID != "" {
			page.DIDs = append(page.DIDs, repo.DID)
		}
	}
	return page, nil
}

// DiscoverRepos walks every page of listReposByCollection and returns
// all DIDs. Bounded by maxRepos to keep discovery from walking the whole
// network; zero means no bound.
func (c *RelayClient) DiscoverRepos(ctx context.Context, collection string, maxRepos int) ([]string, error) {
	var dids []string
	cursor := ""
	for {
		page, err := c.ListReposByCollection(ctx, collection, cursor, 500)
		if err != nil {
			return dids, err
		}
		dids = append(dids, page.DIDs...)
		if maxRepos > 0 && len(dids) >= maxRepos {
			return dids[:maxRepos], nil
		}
		if page.Cursor == "" {
			return dids, nil
		}
		cursor = page.Cursor
	}
}
