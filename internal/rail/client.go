// Package rail queries the live departure board source.
//
// The source is a JSON REST bridge over the national rail data feed. A board
// with zero services is a perfectly valid answer ("no trains right now");
// only transport-level problems produce errors. Service ordering is
// whatever the source returned — this system never re-sorts a board.
package rail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trntxt/trntxt/internal/resilience"
	"github.com/trntxt/trntxt/internal/stations"
)

// Service is one upcoming train on a departure board.
type Service struct {
	// Scheduled is the timetabled departure time (e.g., "14:05").
	Scheduled string

	// Estimated is "On time" or a revised time.
	Estimated string

	// Platform is empty when the platform is not yet known.
	Platform string

	// Origin is the station the service started from; it differs from the
	// board's station when the train began further back up the line.
	Origin stations.Station
}

// Board is the live departure board for a resolved origin, optionally
// filtered to a destination.
type Board struct {
	FromStation stations.Station
	ToStation   *stations.Station
	Services    []Service
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTimeout bounds a single departure request. Default: 15s.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client used for board requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// Client fetches departure boards. Safe for concurrent use.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	breaker     *resilience.Breaker
}

// New creates a Client for the departure API at baseURL.
func New(baseURL, accessToken string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("rail: baseURL must not be empty")
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		breaker:     resilience.NewBreaker(resilience.BreakerConfig{Name: "rail"}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// boardResponse mirrors the departure API's JSON shape.
type boardResponse struct {
	TrainServices []struct {
		Std      string `json:"std"`
		Etd      string `json:"etd"`
		Platform string `json:"platform"`
		Origin   struct {
			CRS          string `json:"crs"`
			LocationName string `json:"locationName"`
		} `json:"origin"`
	} `json:"trainServices"`
}

// Departures fetches the live board for from, filtered to dest when dest is
// non-nil. A board with no services is returned as Services of length zero,
// not as an error.
func (c *Client) Departures(ctx context.Context, from stations.Station, dest *stations.Station) (*Board, error) {
	endpoint := c.baseURL + "/departures/" + url.PathEscape(from.Code)
	if dest != nil {
		endpoint += "/to/" + url.PathEscape(dest.Code)
	}
	if c.accessToken != "" {
		endpoint += "?accessToken=" + url.QueryEscape(c.accessToken)
	}

	var parsed boardResponse
	err := c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("rail: build request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("rail: request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rail: source returned HTTP %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("rail: read response: %w", err)
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("rail: parse response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	board := &Board{
		FromStation: from,
		ToStation:   dest,
		Services:    make([]Service, 0, len(parsed.TrainServices)),
	}
	for _, s := range parsed.TrainServices {
		board.Services = append(board.Services, Service{
			Scheduled: s.Std,
			Estimated: s.Etd,
			Platform:  s.Platform,
			Origin: stations.Station{
				Code: s.Origin.CRS,
				Name: s.Origin.LocationName,
			},
		})
	}
	return board, nil
}
