package identify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/snaplist/snaplist/internal/models"
)

// Defaults for the eBay Browse comparables client.
const (
	defaultEbayBaseURL  = "https://api.ebay.com"
	defaultEbayScope    = "https://api.ebay.com/oauth/api_scope"
	defaultCompareLimit = 10
	// tokenSlack is subtracted from the token lifetime so a token is never
	// used right at its expiry edge.
	tokenSlack = 60 * time.Second
)

// EbayOpts holds configuration options for the eBay comparables client.
type EbayOpts struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Limit        int
	Client       *http.Client
}

// EbayOption defines a configuration option for the eBay comparables client.
type EbayOption func(*EbayOpts)

// WithEbayCredentials sets the OAuth client credentials.
func WithEbayCredentials(id, secret string) EbayOption {
	return func(o *EbayOpts) {
		o.ClientID = id
		o.ClientSecret = secret
	}
}

// WithEbayBaseURL overrides the API base URL (token and browse endpoints).
func WithEbayBaseURL(url string) EbayOption {
	return func(o *EbayOpts) { o.BaseURL = url }
}

// WithEbayLimit sets how many comparable listings one search requests.
func WithEbayLimit(n int) EbayOption {
	return func(o *EbayOpts) { o.Limit = n }
}

// WithEbayHTTPClient sets the HTTP client used for API calls.
func WithEbayHTTPClient(c *http.Client) EbayOption {
	return func(o *EbayOpts) { o.Client = c }
}

// EbayClient searches eBay Browse item summaries for comparable listings.
// It mints application OAuth tokens with the client-credentials grant and
// caches them until shortly before expiry.
type EbayClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	limit        int
	client       *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewEbayClient creates a comparables client. Credentials are taken from
// options or the EBAY_CLIENT_ID / EBAY_CLIENT_SECRET environment variables.
func NewEbayClient(opts ...EbayOption) (*EbayClient, error) {
	cfg := EbayOpts{
		BaseURL: defaultEbayBaseURL,
		Limit:   defaultCompareLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("EBAY_CLIENT_ID")
		cfg.ClientSecret = os.Getenv("EBAY_CLIENT_SECRET")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("ebay client credentials are required (set EBAY_CLIENT_ID and EBAY_CLIENT_SECRET)")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &EbayClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		limit:        cfg.Limit,
		client:       cfg.Client,
	}, nil
}

// SearchComparables finds active listings matching the query.
func (c *EbayClient) SearchComparables(ctx context.Context, query string) ([]models.Comparable, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain ebay token: %w", err)
	}

	u := fmt.Sprintf("%s/buy/browse/v1/item_summary/search?q=%s&limit=%d",
		c.baseURL, url.QueryEscape(query), c.limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build browse request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ebay browse search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ebay browse returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		ItemSummaries []struct {
			Title     string `json:"title"`
			Condition string `json:"condition"`
			Price     struct {
				Value string `json:"value"`
			} `json:"price"`
		} `json:"itemSummaries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode browse response: %w", err)
	}

	out := make([]models.Comparable, 0, len(body.ItemSummaries))
	for _, item := range body.ItemSummaries {
		out = append(out, models.Comparable{
			Title:     item.Title,
			Condition: item.Condition,
			Price:     item.Price.Value,
		})
	}
	return out, nil
}

// accessToken returns a cached application token, minting a new one via the
// client-credentials grant when the cache is empty or near expiry.
func (c *EbayClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", defaultEbayScope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	c.token = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenSlack)
	return c.token, nil
}
