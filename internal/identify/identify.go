// Package identify wraps the product identification and comparable-listing
// providers behind the interfaces the dialogue engine consumes.
package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/snaplist/snaplist/internal/models"
)

// Defaults for the catalog search client.
const (
	defaultBaseURL     = "https://api.trychannel3.com"
	defaultSearchLimit = 5
	defaultHTTPTimeout = 15 * time.Second
)

// Opts holds configuration options for the catalog client.
type Opts struct {
	APIKey  string
	BaseURL string
	Limit   int
	Client  *http.Client
}

// Option defines a configuration option for the catalog client.
type Option func(*Opts)

// WithAPIKey sets the catalog API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the catalog API base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithLimit sets how many candidates one search requests.
func WithLimit(n int) Option {
	return func(o *Opts) { o.Limit = n }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// Client identifies items by photo against the product catalog.
type Client struct {
	apiKey  string
	baseURL string
	limit   int
	client  *http.Client
}

// NewClient creates a catalog search client. The API key is taken from
// options or the IDENTIFY_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		BaseURL: defaultBaseURL,
		Limit:   defaultSearchLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("IDENTIFY_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("identify API key is required (set IDENTIFY_API_KEY)")
	}
	if url := os.Getenv("IDENTIFY_BASE_URL"); url != "" && cfg.BaseURL == defaultBaseURL {
		cfg.BaseURL = url
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limit:   cfg.Limit,
		client:  cfg.Client,
	}, nil
}

type searchRequest struct {
	ImageURL string `json:"image_url"`
	Limit    int    `json:"limit"`
}

type searchProduct struct {
	Title     string   `json:"title"`
	Score     float64  `json:"score"`
	ImageURLs []string `json:"image_urls"`
	Gender    string   `json:"gender,omitempty"`
	Sizes     []string `json:"sizes,omitempty"`
}

// Identify searches the catalog by image and normalizes the ranked matches
// into an identification result.
func (c *Client) Identify(ctx context.Context, imageURL string) (*models.IdentificationResult, error) {
	body, err := json.Marshal(searchRequest{ImageURL: imageURL, Limit: c.limit})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v0/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalog search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var products []searchProduct
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if len(products) == 0 {
		slog.Debug("Client.Identify no catalog matches", "imageURL", imageURL)
		return &models.IdentificationResult{}, nil
	}
	return normalize(products), nil
}

// normalize converts raw catalog products into the engine's identification
// shape: titles deduplicated case-insensitively with provider order kept,
// confidence as the primary score relative to the best score in the set.
func normalize(products []searchProduct) *models.IdentificationResult {
	seen := make(map[string]bool)
	var deduped []searchProduct
	var maxScore float64
	for _, p := range products {
		if p.Score > maxScore {
			maxScore = p.Score
		}
		key := strings.ToLower(strings.TrimSpace(p.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, p)
	}
	if len(deduped) == 0 {
		return &models.IdentificationResult{}
	}

	primary := deduped[0]
	confidence := 0.0
	if maxScore > 0 {
		confidence = primary.Score / maxScore
	}

	candidates := make([]models.Candidate, 0, len(deduped))
	for _, p := range deduped {
		candidates = append(candidates, models.Candidate{Title: p.Title, Images: p.ImageURLs})
	}

	return &models.IdentificationResult{
		Title:      primary.Title,
		Confidence: confidence,
		Images:     primary.ImageURLs,
		Candidates: candidates,
		VariantOptions: models.VariantOptions{
			Sizes:       primary.Sizes,
			Colors:      colorWords(deduped),
			Departments: departments(deduped),
		},
	}
}

// knownColors is the heuristic color vocabulary scanned in candidate titles.
var knownColors = []string{
	"black", "white", "red", "blue", "green", "grey", "gray", "brown",
	"pink", "purple", "yellow", "orange", "beige", "tan", "navy", "cream",
}

// colorWords extracts distinct color words from candidate titles, first
// occurrence order preserved.
func colorWords(products []searchProduct) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range products {
		title := strings.ToLower(p.Title)
		for _, c := range knownColors {
			if seen[c] {
				continue
			}
			if containsWord(title, c) {
				seen[c] = true
				out = append(out, strings.ToUpper(c[:1])+c[1:])
			}
		}
	}
	return out
}

func containsWord(s, word string) bool {
	idx := strings.Index(s, word)
	for idx >= 0 {
		before := idx == 0 || !isLetter(s[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(s) || !isLetter(s[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(s[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// departments maps product genders to listing departments.
func departments(products []searchProduct) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, p := range products {
		switch strings.ToLower(p.Gender) {
		case "male", "men", "mens":
			add("Men")
		case "female", "women", "womens":
			add("Women")
		case "unisex":
			add("Men")
			add("Women")
		}
	}
	return out
}
