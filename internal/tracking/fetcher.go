package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// FetcherConfig describes how to reach the provider's tracking form
type FetcherConfig struct {
	LandingURL      string
	QueryURL        string
	FormField       string
	ExtraFields     map[string]string
	Origin          string
	UserAgent       string
	Timeout         time.Duration
	NotFoundMarkers []string
	// DumpDir, when set, receives a copy of every query response
	DumpDir string
}

// DefaultFetcherConfig returns the ACPL Cargo endpoints
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		LandingURL: "https://acplcargo.com/GCTRACKING.php",
		QueryURL:   "https://acplcargo.com/poc.php",
		FormField:  "gcnumber",
		ExtraFields: map[string]string{
			"etransGCNumber": "",
			"mode":           "",
		},
		Origin:          "https://acplcargo.com",
		UserAgent:       defaultUserAgent,
		Timeout:         30 * time.Second,
		NotFoundMarkers: DefaultNotFoundMarkers,
	}
}

// Fetcher retrieves the raw tracking page for a query. It makes exactly one
// attempt per call and never retries.
type Fetcher struct {
	config     FetcherConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// FetcherOption customizes a Fetcher
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the base client; each fetch uses a copy of it with its
// own cookie jar
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithFetcherLogger sets the fetcher's logger
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a fetcher, filling unset config fields from the defaults
func NewFetcher(config FetcherConfig, opts ...FetcherOption) *Fetcher {
	defaults := DefaultFetcherConfig()
	if config.LandingURL == "" {
		config.LandingURL = defaults.LandingURL
	}
	if config.QueryURL == "" {
		config.QueryURL = defaults.QueryURL
	}
	if config.FormField == "" {
		config.FormField = defaults.FormField
	}
	if config.ExtraFields == nil {
		config.ExtraFields = defaults.ExtraFields
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.NotFoundMarkers == nil {
		config.NotFoundMarkers = defaults.NotFoundMarkers
	}

	f := &Fetcher{
		config:     config,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// newSession returns a resty client with a fresh cookie jar
func (f *Fetcher) newSession() (*resty.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	hc := *f.httpClient
	hc.Jar = jar

	return resty.NewWithClient(&hc).
		SetTimeout(f.config.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", f.config.UserAgent), nil
}

// Fetch primes a session on the landing page and submits the tracking form
func (f *Fetcher) Fetch(ctx context.Context, query string) (*RawPage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	session, err := f.newSession()
	if err != nil {
		return nil, &TransportError{Stage: "session", Cause: err}
	}

	f.logger.Debug("Priming tracking session", "url", f.config.LandingURL)
	resp, err := session.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.5",
		}).
		Get(f.config.LandingURL)
	if err != nil {
		return nil, &TransportError{Stage: "landing", Cause: err}
	}
	if !resp.IsSuccess() {
		return nil, &TransportError{Stage: "landing", StatusCode: resp.StatusCode()}
	}

	form := make(map[string]string, len(f.config.ExtraFields)+1)
	for k, v := range f.config.ExtraFields {
		form[k] = v
	}
	form[f.config.FormField] = query

	headers := map[string]string{
		"Accept":           "*/*",
		"Referer":          f.config.LandingURL,
		"X-Requested-With": "XMLHttpRequest",
	}
	if f.config.Origin != "" {
		headers["Origin"] = f.config.Origin
	}

	f.logger.Debug("Submitting tracking query", "url", f.config.QueryURL, "query", query)
	resp, err = session.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetFormData(form).
		Post(f.config.QueryURL)
	if err != nil {
		return nil, &TransportError{Stage: "query", Cause: err}
	}
	if !resp.IsSuccess() {
		return nil, &TransportError{Stage: "query", StatusCode: resp.StatusCode()}
	}

	body := resp.String()
	if f.config.DumpDir != "" {
		f.dump(query, body)
	}

	page := NewRawPageWithMarkers(body, f.config.NotFoundMarkers)
	if page.NotFound {
		f.logger.Info("Provider reported no record", "query", query, "marker", page.Marker)
	}
	return page, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func (f *Fetcher) dump(query, body string) {
	name := fmt.Sprintf("tracking_%s_%s.html",
		unsafeFileChars.ReplaceAllString(query, "_"),
		time.Now().Format("20060102_150405"))
	path := filepath.Join(f.config.DumpDir, name)

	if err := os.MkdirAll(f.config.DumpDir, 0o755); err != nil {
		f.logger.Warn("Failed to create dump directory", "dir", f.config.DumpDir, "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		f.logger.Warn("Failed to dump tracking response", "path", path, "error", err)
		return
	}
	f.logger.Debug("Dumped tracking response", "path", path)
}
