package ftpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/text/encoding"

	"github.com/gonzalop/ftpc/internal/ratelimit"
)

// Option is a functional option for configuring an FTP client.
type Option func(*Client) error

// Dialer establishes the control and data connections.
// *net.Dialer satisfies this interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// tlsMode represents the TLS mode for the connection.
type tlsMode int

const (
	tlsModeNone tlsMode = iota
	tlsModeExplicit
	tlsModeImplicit
)

func (m tlsMode) String() string {
	switch m {
	case tlsModeExplicit:
		return "explicit"
	case tlsModeImplicit:
		return "implicit"
	default:
		return "none"
	}
}

// WithTimeout sets the timeout for connection and operations.
// This applies to dialing, TLS handshakes and every read or write on the
// control and data connections. The default is 15 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		c.timeout = timeout
		return nil
	}
}

// WithCredentials sets the user name and password sent during login.
// Without it the client logs in as "anonymous" with password "anonymous@".
func WithCredentials(user, password string) Option {
	return func(c *Client) error {
		if user == "" {
			return fmt.Errorf("user must not be empty")
		}
		c.user = user
		c.password = password
		return nil
	}
}

// WithExplicitTLS enables explicit TLS mode (AUTH TLS).
// The client connects on the standard FTP port (21) and upgrades the
// control connection with AUTH TLS when the server advertises it in FEAT.
// Servers that do not advertise TLS are used in plain text and a warning is
// logged.
//
// When ServerName is empty it defaults to the host being dialed.
// A ClientSessionCache will be automatically added if not present to enable
// TLS session reuse.
func WithExplicitTLS(config *tls.Config) Option {
	return func(c *Client) error {
		if c.tlsMode == tlsModeImplicit && !c.tlsImplied {
			return fmt.Errorf("explicit TLS cannot be combined with implicit TLS")
		}
		c.setTLS(tlsModeExplicit, config)
		return nil
	}
}

// WithImplicitTLS enables implicit TLS mode.
// The client connects directly with TLS, typically on port 990, and also
// wraps every passive data connection in TLS.
//
// When ServerName is empty it defaults to the host being dialed.
// A ClientSessionCache will be automatically added if not present to enable
// TLS session reuse for data connections.
func WithImplicitTLS(config *tls.Config) Option {
	return func(c *Client) error {
		if c.tlsMode == tlsModeExplicit && !c.tlsImplied {
			return fmt.Errorf("implicit TLS cannot be combined with explicit TLS")
		}
		c.setTLS(tlsModeImplicit, config)
		return nil
	}
}

// impliedTLS sets the TLS mode a URL scheme asks for. A later WithExplicitTLS
// or WithImplicitTLS replaces it instead of conflicting with it.
func impliedTLS(mode tlsMode, config *tls.Config) Option {
	return func(c *Client) error {
		c.setTLS(mode, config)
		c.tlsImplied = true
		return nil
	}
}

func (c *Client) setTLS(mode tlsMode, config *tls.Config) {
	c.tlsConfig = withSessionCache(config)
	c.tlsMode = mode
	c.tlsImplied = false
}

func withSessionCache(config *tls.Config) *tls.Config {
	if config == nil {
		config = &tls.Config{}
	}
	if config.ClientSessionCache == nil {
		config.ClientSessionCache = tls.NewLRUClientSessionCache(0)
	}
	return config
}

// WithLogger enables debug logging using the provided logger.
// All FTP commands and responses will be logged at debug level, with
// password arguments masked.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	client, _ := ftpc.Dial("ftp.example.com:21", ftpc.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithDialer sets a custom dialer for establishing the control and data
// connections. This can be used to configure source addresses, keep-alive
// settings, or to tunnel through a proxy.
func WithDialer(dialer Dialer) Option {
	return func(c *Client) error {
		if dialer == nil {
			return fmt.Errorf("dialer must not be nil")
		}
		c.dialer = dialer
		return nil
	}
}

// WithSOCKS5Proxy dials the control and data connections through the SOCKS5
// proxy at addr. auth may be nil. The proxy is reached with the session
// timeout whatever the option order, and it replaces a dialer set with
// WithDialer.
func WithSOCKS5Proxy(addr string, auth *proxy.Auth) Option {
	return func(c *Client) error {
		if addr == "" {
			return fmt.Errorf("socks5 proxy address must not be empty")
		}
		c.socks = &socksProxy{addr: addr, auth: auth}
		return nil
	}
}

type socksProxy struct {
	addr string
	auth *proxy.Auth

	// forward dials the proxy itself
	forward *net.Dialer
}

// socksDialer builds the proxy dialer. It runs after every option has been
// applied so that the forward dialer carries the final timeout.
func (c *Client) socksDialer() (Dialer, error) {
	c.socks.forward = &net.Dialer{Timeout: c.timeout}
	d, err := proxy.SOCKS5("tcp", c.socks.addr, c.socks.auth, c.socks.forward)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy: dialer does not support contexts")
	}
	return cd, nil
}

// WithoutPRET disables the PRET command, which is otherwise sent before
// transfers and listings to servers that advertise it.
func WithoutPRET() Option {
	return func(c *Client) error {
		c.usePRET = false
		return nil
	}
}

// WithPassiveIP makes data connections go to ip instead of the address the
// server advertises in its PASV reply.
func WithPassiveIP(ip string) Option {
	return func(c *Client) error {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return fmt.Errorf("invalid passive IP address: %q", ip)
		}
		c.passiveIP = parsed
		return nil
	}
}

// WithPassivePeerAddress makes data connections go to the remote address of
// the control connection, ignoring the address in PASV replies. This helps
// with servers behind NAT that advertise unreachable internal addresses.
// It takes precedence over WithPassiveIP.
func WithPassivePeerAddress() Option {
	return func(c *Client) error {
		c.passivePeer = true
		return nil
	}
}

// WithInitialDir sets the directory the session starts in. Unless
// WithoutBaseLock is given, the directory also becomes the base every path
// is resolved against: "/" then refers to dir.
func WithInitialDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return fmt.Errorf("initial directory must not be empty")
		}
		c.initialDir = dir
		return nil
	}
}

// WithoutBaseLock keeps the initial directory as a plain working directory
// instead of locking it as the base directory.
func WithoutBaseLock() Option {
	return func(c *Client) error {
		c.lockBase = false
		return nil
	}
}

// WithListingEncoding decodes directory listings with enc instead of UTF-8,
// for servers that send names in a legacy code page.
//
// Example:
//
//	client, _ := ftpc.New("ftp.example.com:21",
//	    ftpc.WithListingEncoding(charmap.Windows1252),
//	)
func WithListingEncoding(enc encoding.Encoding) Option {
	return func(c *Client) error {
		c.encoding = enc
		return nil
	}
}

// WithBandwidthLimit limits data transfers to bytesPerSecond. Zero or a
// negative value means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(c *Client) error {
		c.limiter.Stop()
		c.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithMetrics reports commands, transfers and logins to m.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithCustomListParser replaces the built-in MLSD and legacy listing
// parsers. The listing command is still chosen from the server's features.
func WithCustomListParser(parser ListingParser) Option {
	return func(c *Client) error {
		c.listParser = parser
		return nil
	}
}
