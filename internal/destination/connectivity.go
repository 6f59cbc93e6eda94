package destination

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNoConnectivity is returned when the storage host cannot be reached.
var ErrNoConnectivity = errors.New("no network connectivity")

const defaultConnectivityTimeout = 5 * time.Second

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// checkConnectivity opens and closes a TCP connection to host.
func checkConnectivity(ctx context.Context, dial dialFunc, host string, timeout time.Duration) error {
	if host == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultConnectivityTimeout
	}
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoConnectivity, host, err)
	}
	return conn.Close()
}

// hostPort appends port to host when it has none.
func hostPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}
