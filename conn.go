package ftpc

import (
	"cmp"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"slices"
	"time"
)

// deadlineConn wraps a net.Conn and sets a read/write deadline before every operation.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (n int, err error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (n int, err error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// withDeadline wraps conn so that every read and write carries the
// configured timeout.
func (c *Client) withDeadline(conn net.Conn) net.Conn {
	if c.timeout <= 0 {
		return conn
	}
	return &deadlineConn{Conn: conn, timeout: c.timeout}
}

// rawConn strips the deadline wrapper from conn.
func rawConn(conn net.Conn) net.Conn {
	if dc, ok := conn.(*deadlineConn); ok {
		return dc.Conn
	}
	return conn
}

// opContext returns a context bounded by the configured timeout.
func (c *Client) opContext() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

// resolve turns the configured host into an address the first time it is
// needed and keeps the result for later logins. IPv4 results are preferred.
func (c *Client) resolve() error {
	if c.addr != "" {
		return nil
	}
	if ip := net.ParseIP(c.host); ip != nil {
		c.addr = net.JoinHostPort(ip.String(), c.port)
		return nil
	}

	ctx, cancel := c.opContext()
	defer cancel()

	c.logger.Debug("resolving ftp host", "host", c.host)
	addrs, err := c.resolver.LookupIPAddr(ctx, c.host)
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no addresses found")
	}
	if err != nil {
		return &ConnectionError{Op: "resolve", Addr: c.host, Err: fmt.Errorf("can not resolve host '%s': %w", c.host, err)}
	}

	slices.SortStableFunc(addrs, func(a, b net.IPAddr) int {
		return cmp.Compare(family(a.IP), family(b.IP))
	})
	c.addr = net.JoinHostPort(addrs[0].IP.String(), c.port)
	c.logger.Debug("resolved ftp host", "host", c.host, "addr", c.addr)
	return nil
}

func family(ip net.IP) int {
	if ip.To4() != nil {
		return 4
	}
	return 6
}

// dial opens a TCP connection to addr with the session's dialer.
func (c *Client) dial(addr string) (net.Conn, error) {
	ctx, cancel := c.opContext()
	defer cancel()
	return c.dialer.DialContext(ctx, "tcp", addr)
}

// clientTLSConfig returns the TLS configuration used for the control and
// data connections. ServerName defaults to the configured host; the session
// cache is shared so data connections can resume the control session.
func (c *Client) clientTLSConfig() *tls.Config {
	cfg := c.tlsConfig.Clone()
	if cfg.ServerName == "" && !cfg.InsecureSkipVerify {
		cfg.ServerName = c.host
	}
	return cfg
}

// handshake performs a TLS client handshake on conn.
func (c *Client) handshake(conn net.Conn, mode string) (net.Conn, error) {
	c.logger.Debug("starting TLS handshake", "mode", mode)

	ctx, cancel := c.opContext()
	defer cancel()

	tlsConn := tls.Client(conn, c.clientTLSConfig())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, &ConnectionError{Op: "tls", Addr: conn.RemoteAddr().String(), Err: err}
	}

	c.logger.Debug("TLS handshake complete", "mode", mode, "resumed", tlsConn.ConnectionState().DidResume)
	return tlsConn, nil
}
