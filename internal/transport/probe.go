package transport

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Connectivity answers "is there an active route to the API right now".
type Connectivity interface {
	Available(ctx context.Context) bool
}

// Static is a Connectivity with a fixed answer.
type Static bool

// Available returns the fixed answer.
func (s Static) Available(context.Context) bool { return bool(s) }

// Probe checks connectivity by opening a TCP connection to the API host.
type Probe struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewProbe creates a probe for the host of baseURL.
func NewProbe(baseURL string, timeout time.Duration) (*Probe, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Probe{addr: net.JoinHostPort(u.Hostname(), port), timeout: timeout}, nil
}

// Available dials the API host and reports whether it answered.
func (p *Probe) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
