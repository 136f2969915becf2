package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults for the public AT Protocol infrastructure.
const (
	DefaultPLCURL     = "https://plc.directory"
	DefaultAppviewURL = "https://public.api.bsky.app"
	DefaultRelayURL   = "https://relay1.us-west.bsky.network"
)

// schemaCollection is the collection lexicon documents are published
// under in their authority's repo.
const schemaCollection = "com.atproto.lexicon.schema"

// Resolver fetches lexicon documents from the network by walking
// NSID -> authority domain -> DID -> PDS -> record. Resolution is
// best-effort: every step returns a wrapped error the caller is expected
// to downgrade to "unresolved", never a hard failure.
type Resolver struct {
	client     *http.Client
	plcURL     string
	appviewURL string
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithPLCURL points the resolver at a different PLC directory.
func WithPLCURL(u string) Option {
	return func(r *Resolver) { r.plcURL = u }
}

// WithAppviewURL points the handle-resolution fallback at a different
// appview.
func WithAppviewURL(u string) Option {
	return func(r *Resolver) { r.appviewURL = u }
}

// New builds a resolver with sane timeouts and the public directories.
func New(logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		client:     &http.Client{Timeout: 10 * time.Second},
		plcURL:     DefaultPLCURL,
		appviewURL: DefaultAppviewURL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolution is the result of a successful lexicon fetch.
type Resolution struct {
	NSID         string
	AuthorityDID string
	PDS          string
	URI          string
	CID          string
	// Doc is the fetched lexicon document.
	Doc map[string]any
}

// AuthorityDomain derives the authority domain for an NSID: every
// segment but the last, reversed. com.example.foo is governed by
// example.com.
func AuthorityDomain(nsid string) (string, error) {
	parts := strings.Split(nsid, ".")
	if len(parts) < 3 {
		return "", fmt.Errorf("nsid %q has no authority", nsid)
	}
	authority := parts[:len(parts)-1]
	for i, j := 0, len(authority)-1; i < j; i, j = i+1, j-1 {
		authority[i], authority[j] = authority[j], authority[i]
	}
	return strings.Join(authority, "."), nil
}

// Resolve fetches the lexicon document published for an NSID.
func (r *Resolver) Resolve(ctx context.Context, nsid string) (*Resolution, error) {
	domain, err := AuthorityDomain(nsid)
	if err != nil {
		return nil, err
	}

	did, err := r.resolveDID(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("resolve authority for %s: %w", nsid, err)
	}

	pds, err := r.resolvePDS(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("resolve pds for %s: %w", did, err)
	}

	res, err := r.fetchRecord(ctx, pds, did, nsid)
	if err != nil {
		return nil, fmt.Errorf("fetch lexicon %s: %w", nsid, err)
	}

	r.logger.Info("lexicon resolved",
		"nsid", nsid, "authority", did, "pds", pds)
	return res, nil
}

// resolveDID turns an authority domain into a DID, trying the
// well-known endpoint first and handle resolution second.
func (r *Resolver) resolveDID(ctx context.Context, domain string) (string, error) {
	did, wellKnownErr := r.wellKnownDID(ctx, domain)
	if wellKnownErr == nil {
		return did, nil
	}

	did, handleErr := r.resolveHandle(ctx, domain)
	if handleErr == nil {
		return did, nil
	}
	return "", fmt.Errorf("well-known: %v; resolveHandle: %w", wellKnownErr, handleErr)
}

func (r *Resolver) wellKnownDID(ctx context.Context, domain string) (string, error) {
	body, err := r.get(ctx, "https://"+domain+"/.well-known/atproto-did")
	if err != nil {
		return "", err
	}
	did := strings.TrimSpace(string(body))
	if !strings.HasPrefix(did, "did:") {
		return "", fmt.Errorf("%q is not a did", did)
	}
	return did, nil
}

func (r *Resolver) resolveHandle(ctx context.Context, domain string) (string, error) {
	u := r.appviewURL + "/xrpc/com.atproto.identity.resolveHandle?handle=" + url.QueryEscape(domain)
	body, err := r.get(ctx, u)
	if err != nil {
		return "", err
	}
	var out struct {
		DID string `json:"did"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode resolveHandle: %w", err)
	}
	if out.DID == "" {
		return "", fmt.Errorf("resolveHandle returned no did")
	}
	return out.DID, nil
}

// resolvePDS finds the DID's personal data server endpoint from its DID
// document: the PLC directory for did:plc, the well-known document for
// did:web.
func (r *Resolver) resolvePDS(ctx context.Context, did string) (string, error) {
	var docURL string
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		docURL = r.plcURL + "/" + did
	case strings.HasPrefix(did, "did:web:"):
		host := strings.TrimPrefix(did, "did:web:")
		docURL = "https://" + host + "/.well-known/did.json"
	default:
		return "", fmt.Errorf("unsupported did method in %q", did)
	}

	body, err := r.get(ctx, docURL)
	if err != nil {
		return "", err
	}
	var doc struct {
		Service []struct {
			ID              string `json:"id"`
			Type            string `json:"type"`
			ServiceEndpoint string `json:"serviceEndpoint"`
		} `json:"service"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode did document: %w", err)
	}
	for _, svc := range doc.Service {
		if strings.HasSuffix(svc.ID, "#atproto_pds") || svc.Type == "AtprotoPersonalDataServer" {
			return strings.TrimSuffix(svc.ServiceEndpoint, "/"), nil
		}
	}
	return "", fmt.Errorf("did document for %s has no pds service", did)
}

func (r *Resolver) fetchRecord(ctx context.Context, pds, did, nsid string) (*Resolution, error) {
	u := pds + "/xrpc/com.atproto.repo.getRecord?" + url.Values{
		"repo":       {did},
		"collection": {schemaCollection},
		"rkey":       {nsid},
	}.Encode()
	body, err := r.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var out struct {
		URI   string         `json:"uri"`
		CID   string         `json:"cid"`
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode getRecord: %w", err)
	}
	if out.Value == nil {
		return nil, fmt.Errorf("getRecord returned no value")
	}
	return &Resolution{
		NSID:         nsid,
		AuthorityDID: did,
		PDS:          pds,
		URI:          out.URI,
		CID:          out.CID,
		Doc:          out.Value,
	}, nil
}

// get performs one GET with the resolver's client and returns the body
// for 2xx responses.
func (r *Resolver) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
