package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Pinger is satisfied by database pools that support a liveness ping,
// notably *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPChecker probes baseURL with a GET and passes on any response below
// 500. A refused connection or a 5xx marks the dependency down; 4xx means
// the service is up but the probe path is not a real endpoint, which is
// fine for a reachability check.
func HTTPChecker(name, baseURL string, client *http.Client) Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			u, err := url.Parse(baseURL)
			if err != nil {
				return fmt.Errorf("invalid base url: %w", err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		},
	}
}

// DBChecker pings the call-log database.
func DBChecker(name string, db Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			return db.Ping(ctx)
		},
	}
}
