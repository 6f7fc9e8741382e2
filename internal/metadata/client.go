// Package metadata talks to the external movie metadata provider (OMDb contract).
package metadata

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movieweb/internal/domain"
	"github.com/Clark-Hu/movieweb/internal/metrics"
)

const serviceName = "metadata"

// ErrNotFound is returned when upstream cannot find the requested movie.
var ErrNotFound = fmt.Errorf("metadata: %w", domain.ErrNotFound)

// Client defines the contract for querying the metadata provider.
type Client interface {
	Lookup(ctx context.Context, title string, year *int) (*domain.MetadataBundle, error)
	LookupByID(ctx context.Context, externalID string) (*domain.MetadataBundle, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPClient constructs a new HTTP-backed metadata client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse metadata url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse metadata url: %q is not absolute", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.With().Str("component", serviceName).Logger(),
	}, nil
}

// Lookup searches by title and optional release year.
func (c *HTTPClient) Lookup(ctx context.Context, title string, year *int) (*domain.MetadataBundle, error) {
	q := url.Values{}
	q.Set("t", title)
	if year != nil {
		q.Set("y", strconv.Itoa(*year))
	}
	return c.fetch(ctx, q)
}

// LookupByID fetches the record for an external id such as "tt0133093".
func (c *HTTPClient) LookupByID(ctx context.Context, externalID string) (*domain.MetadataBundle, error) {
	q := url.Values{}
	q.Set("i", externalID)
	return c.fetch(ctx, q)
}

func (c *HTTPClient) fetch(ctx context.Context, q url.Values) (*domain.MetadataBundle, error) {
	start := time.Now()
	q.Set("apikey", c.apiKey)
	endpoint := *c.baseURL
	if endpoint.Path == "" {
		endpoint.Path = "/"
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveProvider(serviceName, "error", start)
		return nil, domain.External(serviceName, transportReason(err), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusNotFound:
		var payload apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			metrics.ObserveProvider(serviceName, "error", start)
			return nil, domain.External(serviceName, "malformed response", err)
		}
		if !strings.EqualFold(payload.Response, "true") {
			if isNotFound(payload.Error) {
				metrics.ObserveProvider(serviceName, "not_found", start)
				return nil, ErrNotFound
			}
			metrics.ObserveProvider(serviceName, "error", start)
			reason := payload.Error
			if reason == "" {
				reason = fmt.Sprintf("request rejected with status %d", resp.StatusCode)
			}
			c.logger.Warn().Int("status", resp.StatusCode).Str("reason", reason).Msg("metadata request rejected")
			return nil, domain.External(serviceName, reason, nil)
		}
		metrics.ObserveProvider(serviceName, "success", start)
		return toBundle(payload), nil
	default:
		metrics.ObserveProvider(serviceName, "error", start)
		c.logger.Warn().Int("status", resp.StatusCode).Msg("metadata: unexpected status")
		return nil, domain.External(serviceName, fmt.Sprintf("upstream returned %d", resp.StatusCode), nil)
	}
}

// isNotFound recognises OMDb's miss messages ("Movie not found!",
// "Incorrect IMDb ID.").
func isNotFound(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not found") || strings.Contains(m, "incorrect imdb id")
}

func transportReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "connection failed"
}

type apiResponse struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Rated      string `json:"Rated"`
	Runtime    string `json:"Runtime"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Writer     string `json:"Writer"`
	Actors     string `json:"Actors"`
	Plot       string `json:"Plot"`
	Language   string `json:"Language"`
	Country    string `json:"Country"`
	Awards     string `json:"Awards"`
	Poster     string `json:"Poster"`
	Metascore  string `json:"Metascore"`
	IMDbRating string `json:"imdbRating"`
	IMDbVotes  string `json:"imdbVotes"`
	IMDbID     string `json:"imdbID"`
	Response   string `json:"Response"`
	Error      string `json:"Error"`
}

func toBundle(p apiResponse) *domain.MetadataBundle {
	return &domain.MetadataBundle{
		ExternalID: strings.TrimSpace(p.IMDbID),
		Title:      strings.TrimSpace(p.Title),
		Year:       p.Year,
		Rating:     p.IMDbRating,
		Votes:      p.IMDbVotes,
		Director:   p.Director,
		Writer:     p.Writer,
		Actors:     p.Actors,
		Runtime:    p.Runtime,
		Genre:      p.Genre,
		Plot:       p.Plot,
		Language:   p.Language,
		Country:    p.Country,
		Awards:     p.Awards,
		Poster:     p.Poster,
		Rated:      p.Rated,
		Metascore:  p.Metascore,
	}
}
