// Package itunes provides integration with the iTunes Lookup API for
// retrieving App Store catalog metadata by bundle identifier.
package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const (
	// DefaultBaseURL is the default iTunes Lookup API base URL
	DefaultBaseURL = "https://itunes.apple.com"

	// DefaultCountry is the storefront used when none is configured
	DefaultCountry = "us"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 15 * time.Second

	// DefaultUserAgent is the default User-Agent header
	DefaultUserAgent = "ipagrab/1.0"
)

// ErrAPIError represents a Lookup API error
type ErrAPIError struct {
	StatusCode int
	Message    string
	BundleID   string
}

func (e ErrAPIError) Error() string {
	if e.BundleID != "" {
		return fmt.Sprintf("lookup error for %s: %d %s", e.BundleID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("lookup error: %d %s", e.StatusCode, e.Message)
}

// App is one catalog entry from the Lookup API. FileSizeBytes is a string
// on the wire; use SizeBytes for the parsed value.
type App struct {
	TrackID        int64   `json:"trackId"`
	BundleID       string  `json:"bundleId"`
	TrackName      string  `json:"trackName"`
	Version        string  `json:"version"`
	FileSizeBytes  string  `json:"fileSizeBytes"`
	Price          float64 `json:"price"`
	FormattedPrice string  `json:"formattedPrice"`
	Currency       string  `json:"currency"`
	SellerName     string  `json:"sellerName"`
	ArtworkURL     string  `json:"artworkUrl512"`
	TrackViewURL   string  `json:"trackViewUrl"`
	ReleaseNotes   string  `json:"releaseNotes"`
	MinimumOSVer   string  `json:"minimumOsVersion"`
}

// SizeBytes parses the string-encoded archive size. Zero when absent or
// malformed.
func (a *App) SizeBytes() int64 {
	if a == nil || a.FileSizeBytes == "" {
		return 0
	}
	n, err := strconv.ParseInt(a.FileSizeBytes, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// PriceString renders the price the way the download pipeline consumes it.
func (a *App) PriceString() string {
	if a == nil {
		return ""
	}
	return strconv.FormatFloat(a.Price, 'f', -1, 64)
}

// NewerThan reports whether the catalog version is newer than installed.
// Both sides are compared as semver when they parse; otherwise plain string
// inequality decides, since the App Store accepts versions semver rejects.
func (a *App) NewerThan(installed string) bool {
	if a == nil || a.Version == "" || installed == "" {
		return false
	}
	catalog, cerr := semver.NewVersion(a.Version)
	current, ierr := semver.NewVersion(installed)
	if cerr != nil || ierr != nil {
		return a.Version != installed
	}
	return catalog.GreaterThan(current)
}

type lookupResponse struct {
	ResultCount int   `json:"resultCount"`
	Results     []App `json:"results"`
}

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the lookup client
type Config struct {
	BaseURL    string
	Country    string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient HTTPClient
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Country:   DefaultCountry,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Client queries the iTunes Lookup API.
type Client struct {
	config Config
}

// NewClient creates a new lookup client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Country == "" {
		config.Country = DefaultCountry
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: config.Timeout,
		}
	}
	return &Client{config: config}
}

// Lookup fetches catalog metadata for a bundle identifier. A bundle id the
// storefront does not carry returns (nil, nil); that is an answer, not a
// failure.
func (c *Client) Lookup(ctx context.Context, bundleID string) (*App, error) {
	if strings.TrimSpace(bundleID) == "" {
		return nil, ErrAPIError{
			StatusCode: 400,
			Message:    "bundle id cannot be empty",
		}
	}

	apiURL, err := url.JoinPath(c.config.BaseURL, "lookup")
	if err != nil {
		return nil, fmt.Errorf("failed to construct API URL: %w", err)
	}
	q := url.Values{}
	q.Set("bundleId", bundleID)
	q.Set("country", c.config.Country)
	q.Set("limit", "1")
	apiURL += "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, ErrAPIError{
			StatusCode: 0,
			Message:    err.Error(),
			BundleID:   bundleID,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrAPIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			BundleID:   bundleID,
		}
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, ErrAPIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to decode response: %v", err),
			BundleID:   bundleID,
		}
	}

	if body.ResultCount == 0 || len(body.Results) == 0 {
		return nil, nil
	}
	app := body.Results[0]
	return &app, nil
}
