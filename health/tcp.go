package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCPCheckerConfig configures a TCP health checker.
type TCPCheckerConfig struct {
	// Name identifies the checker. Default: "tcp"
	Name string

	// Host is the host to connect to. Required.
	Host string

	// Port is the port to connect to. Required.
	Port int

	// Timeout bounds the connect attempt.
	// Default: 5 seconds
	Timeout time.Duration
}

// TCPChecker probes a host:port pair with a connect-and-close.
// The probe succeeds iff the connection is established within the timeout.
type TCPChecker struct {
	config TCPCheckerConfig
	addr   string
}

// NewTCPChecker creates a new TCP health checker.
func NewTCPChecker(config TCPCheckerConfig) *TCPChecker {
	if config.Name == "" {
		config.Name = "tcp"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	return &TCPChecker{
		config: config,
		addr:   net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
	}
}

// Name returns the name of this checker.
func (c *TCPChecker) Name() string {
	return c.config.Name
}

// Addr returns the host:port this checker probes.
func (c *TCPChecker) Addr() string {
	return c.addr
}

// Check performs one connect-and-close probe.
func (c *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	elapsed := time.Since(start)

	if err != nil {
		if isTimeout(err) {
			return Unhealthy(fmt.Sprintf("connect to %s timed out after %v", c.addr, c.config.Timeout), ErrCheckTimeout).
				WithDuration(elapsed)
		}
		return Unhealthy(err.Error(), ErrCheckFailed).WithDuration(elapsed)
	}
	_ = conn.Close()

	return Healthy("ok").WithDuration(elapsed)
}
