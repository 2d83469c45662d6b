package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPCheckerConfig configures an HTTP health checker.
type HTTPCheckerConfig struct {
	// Name identifies the checker. Default: "http"
	Name string

	// URL is the health endpoint to probe. Required.
	URL string

	// Timeout bounds the whole probe, including connect and response.
	// Default: 5 seconds
	Timeout time.Duration

	// Client overrides the HTTP client used for probes.
	// Default: a dedicated client with no redirect following.
	Client *http.Client
}

// HTTPChecker probes an HTTP health endpoint.
// The probe succeeds iff the endpoint answers 200 within the timeout; no
// response body semantics are interpreted.
type HTTPChecker struct {
	config HTTPCheckerConfig
}

// NewHTTPChecker creates a new HTTP health checker.
func NewHTTPChecker(config HTTPCheckerConfig) *HTTPChecker {
	if config.Name == "" {
		config.Name = "http"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Client == nil {
		config.Client = &http.Client{
			// A redirected health endpoint is not a 200.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return &HTTPChecker{config: config}
}

// Name returns the name of this checker.
func (c *HTTPChecker) Name() string {
	return c.config.Name
}

// Check performs one GET probe against the configured URL.
func (c *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return Unhealthy(fmt.Sprintf("invalid health url: %v", err), ErrCheckFailed).
			WithDuration(time.Since(start))
	}

	resp, err := c.config.Client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		if isTimeout(err) {
			return Unhealthy(fmt.Sprintf("check timed out after %v", c.config.Timeout), ErrCheckTimeout).
				WithDuration(elapsed)
		}
		return Unhealthy(err.Error(), ErrCheckFailed).WithDuration(elapsed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unhealthy(fmt.Sprintf("unexpected status %d", resp.StatusCode), ErrCheckFailed).
			WithDuration(elapsed)
	}

	return Healthy("ok").WithDuration(elapsed)
}

// isTimeout reports whether a probe error is timeout-flavored.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
