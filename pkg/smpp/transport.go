package smpp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"
)

// Transport is the byte stream a session runs over.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens a transport to addr.
type Dialer func(ctx context.Context, addr string) (Transport, error)

// deadliner is implemented by transports that support write deadlines, net.Conn included.
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// NetDialer returns a Dialer for plain TCP or, when TLSEnabled is set, TLS.
func NetDialer(cfg *ClientConfig) Dialer {
	var timeout time.Duration
	var useTLS, skipVerify bool
	if cfg != nil {
		timeout = cfg.ConnectTimeout
		useTLS = cfg.TLSEnabled
		skipVerify = cfg.TLSSkipVerify
	}

	return func(ctx context.Context, addr string) (Transport, error) {
		netDialer := &net.Dialer{
			Timeout: timeout,
		}

		if useTLS {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address %s: %w", addr, err)
			}
			dialer := &tls.Dialer{
				NetDialer: netDialer,
				Config: &tls.Config{
					InsecureSkipVerify: skipVerify,
					ServerName:         host,
				},
			}
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to %s with TLS: %w", addr, err)
			}
			return conn, nil
		}

		conn, err := netDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		return conn, nil
	}
}
