package health

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"
)

// listenTCP starts a listener on an ephemeral port and returns its host/port.
func listenTCP(t *testing.T) (net.Listener, string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}
	return ln, host, port
}

func TestTCPChecker_Healthy(t *testing.T) {
	ln, host, port := listenTCP(t)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewTCPChecker(TCPCheckerConfig{Host: host, Port: port})
	result := checker.Check(context.Background())

	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want StatusHealthy: %s", result.Status, result.Diagnostic())
	}
	if result.Duration <= 0 {
		t.Error("Duration should be recorded on success")
	}
}

func TestTCPChecker_ConnectionRefused(t *testing.T) {
	ln, host, port := listenTCP(t)
	ln.Close() // nothing listening anymore

	checker := NewTCPChecker(TCPCheckerConfig{Host: host, Port: port, Timeout: time.Second})
	result := checker.Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy", result.Status)
	}
	if result.Diagnostic() == "" {
		t.Error("Diagnostic() should describe the refusal")
	}
	if result.Duration <= 0 {
		t.Error("Duration should be recorded on failure")
	}
}

func TestTCPChecker_Defaults(t *testing.T) {
	checker := NewTCPChecker(TCPCheckerConfig{Host: "localhost", Port: 6379})

	if checker.Name() != "tcp" {
		t.Errorf("Name() = %v, want 'tcp'", checker.Name())
	}
	if checker.Addr() != "localhost:6379" {
		t.Errorf("Addr() = %v, want 'localhost:6379'", checker.Addr())
	}
	if checker.config.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", checker.config.Timeout)
	}
}

func TestTCPChecker_ContextCancelled(t *testing.T) {
	ln, host, port := listenTCP(t)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := NewTCPChecker(TCPCheckerConfig{Host: host, Port: port})
	result := checker.Check(ctx)

	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy for cancelled context", result.Status)
	}
}
