package ftpc

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"

	"github.com/gonzalop/ftpc/internal/ratelimit"
)

// DefaultTimeout is the I/O timeout used when WithTimeout is not given.
const DefaultTimeout = 15 * time.Second

// livenessWindow bounds the read that checks an idle control connection
// before a command is sent on it.
const livenessWindow = time.Millisecond

// sessionState tracks where the control connection is in the login sequence.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnected
	stateAuthenticated
)

func (s sessionState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Client represents an FTP client session.
//
// A Client owns one control connection and is used by one goroutine at a
// time. The connection is opened lazily: the first operation logs in, and
// an operation issued after the connection was found dead logs in again
// before it runs.
type Client struct {
	// host and port as given by the caller
	host string
	port string

	// addr is the resolved host:port, cached after the first resolution
	addr string

	user     string
	password string

	// tlsConfig is the TLS configuration (if TLS is enabled)
	tlsConfig *tls.Config

	// tlsMode indicates whether TLS is disabled, explicit, or implicit
	tlsMode tlsMode

	// tlsImplied is set while tlsMode comes from a URL scheme
	tlsImplied bool

	// timeout applies to dialing, handshakes and every read or write
	timeout time.Duration

	usePRET     bool
	passiveIP   net.IP
	passivePeer bool

	initialDir string
	lockBase   bool

	logger     *slog.Logger
	dialer     Dialer
	socks      *socksProxy
	resolver   *net.Resolver
	encoding   encoding.Encoding
	limiter    *ratelimit.Limiter
	metrics    MetricsCollector
	listParser ListingParser
	progress   ProgressFunc

	// mu serializes operations on the control connection
	mu sync.Mutex

	state    sessionState
	conn     net.Conn
	reader   *lineReader
	features Features
	paths    pathResolver

	// active is the data stream returned by OpenRead/OpenWrite, if still open
	active *DataStream
}

// New creates a client for the server at addr ("host:port") without
// connecting. The connection is established by Login or by the first
// operation that needs it.
func New(addr string, options ...Option) (*Client, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	if host == "" {
		return nil, fmt.Errorf("invalid address %q: missing host", addr)
	}

	c := &Client{
		host:       host,
		port:       port,
		user:       "anonymous",
		password:   "anonymous@",
		tlsMode:    tlsModeNone,
		timeout:    DefaultTimeout,
		usePRET:    true,
		initialDir: "/",
		lockBase:   true,
		resolver:   net.DefaultResolver,
		logger:     slog.New(slog.NewTextHandler(nil, &slog.HandlerOptions{Level: slog.LevelError + 1})), // No-op logger by default
		paths:      newPathResolver(),
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if c.socks != nil {
		if c.dialer, err = c.socksDialer(); err != nil {
			return nil, err
		}
	}
	if c.dialer == nil {
		c.dialer = &net.Dialer{Timeout: c.timeout}
	}
	c.initWorkingDir(c.initialDir, c.lockBase)

	return c, nil
}

// Dial creates a client for the server at addr and logs in.
//
// Example:
//
//	client, err := ftpc.Dial("ftp.example.com:21",
//	    ftpc.WithCredentials("user", "secret"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// Example with Explicit TLS:
//
//	client, err := ftpc.Dial("ftp.example.com:21",
//	    ftpc.WithExplicitTLS(&tls.Config{ServerName: "ftp.example.com"}),
//	)
//
// Example with Implicit TLS and self-signed certificate (InsecureSkipVerify):
//
//	client, err := ftpc.Dial("ftp.example.com:990",
//	    ftpc.WithImplicitTLS(&tls.Config{InsecureSkipVerify: true}),
//	)
func Dial(addr string, options ...Option) (*Client, error) {
	c, err := New(addr, options...)
	if err != nil {
		return nil, err
	}
	if err := c.Login(); err != nil {
		return nil, err
	}
	return c, nil
}

// Login opens a new control connection and runs the login sequence, closing
// any connection the client already had.
//
// The sequence is: connect (TLS first in implicit mode), read the greeting,
// FEAT, AUTH TLS in explicit mode when advertised, USER, PASS when the server
// asks for it, OPTS UTF8 ON when advertised, and finally CWD to the working
// directory. A reply of 400 or above at any step fails the login with a
// *ProtocolError.
func (c *Client) Login() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login()
}

func (c *Client) login() error {
	c.closeConn()

	err := c.connect()
	if c.metrics != nil {
		c.metrics.RecordLogin(err == nil)
	}
	if err != nil {
		c.closeConn()
		return err
	}

	c.state = stateAuthenticated
	c.logger.Debug("ftp session ready", "addr", c.addr, "tls_mode", c.tlsMode, "features", c.features.Len())
	return nil
}

// connect establishes the control connection and handles the handshake up
// to the restored working directory.
func (c *Client) connect() error {
	if err := c.resolve(); err != nil {
		return err
	}

	c.logger.Debug("connecting to ftp server", "addr", c.addr, "tls_mode", c.tlsMode)
	conn, err := c.dial(c.addr)
	if err != nil {
		return &ConnectionError{Op: "dial", Addr: c.addr, Err: err}
	}

	// For implicit TLS, wrap the connection immediately
	if c.tlsMode == tlsModeImplicit {
		tlsConn, err := c.handshake(conn, "implicit")
		if err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}
	c.attach(conn)

	greeting := Command{Verb: "CONNECT"}
	resp, err := c.readReply(greeting)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return newProtocolError(greeting, resp)
	}
	c.logger.Debug("ftp greeting", "code", resp.Code, "message", resp.Message)

	resp, err = c.exchange(NewCommand("FEAT"))
	if err != nil {
		return err
	}
	if resp.Failed() {
		c.features = Features{}
	} else {
		c.features = parseFeatures(resp.Lines)
	}

	if c.tlsMode == tlsModeExplicit {
		if err := c.upgradeToTLS(); err != nil {
			return err
		}
	}

	if err := c.authenticate(); err != nil {
		return err
	}

	if c.features.Has("UTF8") {
		if _, err := c.exchange(NewCommand("OPTS", "UTF8", "ON")); err != nil {
			return err
		}
	}

	cwd := NewCommand("CWD", c.paths.abs(c.paths.wd))
	resp, err = c.exchange(cwd)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return newProtocolError(cwd, resp)
	}
	return nil
}

// upgradeToTLS upgrades the connection to TLS using AUTH TLS, if the server
// advertises it.
func (c *Client) upgradeToTLS() error {
	if !strings.Contains(c.features.Get("AUTH", ""), "TLS") {
		c.logger.Warn("explicit TLS requested but server does not advertise AUTH TLS; continuing without TLS",
			"addr", c.addr)
		return nil
	}

	auth := NewCommand("AUTH", "TLS")
	resp, err := c.exchange(auth)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return newProtocolError(auth, resp)
	}

	tlsConn, err := c.handshake(rawConn(c.conn), "explicit")
	if err != nil {
		return err
	}
	c.attach(tlsConn)
	return nil
}

// authenticate sends USER and, when the server asks for one, PASS.
func (c *Client) authenticate() error {
	user := NewCommand("USER", c.user)
	resp, err := c.exchange(user)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return newProtocolError(user, resp)
	}

	// 230 means logged in without a password
	if resp.Code < 300 {
		return nil
	}

	pass := NewCommand("PASS", c.password)
	resp, err = c.exchange(pass)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return newProtocolError(pass, resp)
	}
	return nil
}

// attach makes conn the control connection.
func (c *Client) attach(conn net.Conn) {
	c.conn = c.withDeadline(conn)
	c.reader = newLineReader(c.conn)
	c.state = stateConnected
}

// ensureReady logs in unless the session is authenticated and its control
// connection is still alive.
func (c *Client) ensureReady() error {
	if c.state == stateAuthenticated && c.conn != nil {
		if c.alive() {
			return nil
		}
		c.logger.Debug("control connection dropped by server", "addr", c.addr)
		c.markDead()
	}
	if c.addr != "" {
		c.logger.Debug("logging in again", "addr", c.addr, "state", c.state)
	}
	return c.login()
}

// alive reports whether the idle control connection can carry a command.
// A server that dropped the session has either closed the socket or left an
// unsolicited reply (usually 421) behind; both show up as a read that does
// not time out.
func (c *Client) alive() bool {
	if c.reader.r.Buffered() > 0 {
		return false
	}
	conn := rawConn(c.conn)
	if err := conn.SetReadDeadline(time.Now().Add(livenessWindow)); err != nil {
		return false
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var b [1]byte
	n, err := conn.Read(b[:])
	var ne net.Error
	return n == 0 && errors.As(err, &ne) && ne.Timeout()
}

// markDead records that the control connection can no longer be used.
// The next command triggers a new login.
func (c *Client) markDead() {
	c.closeConn()
}

// closeConn closes the control connection, if any.
func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
	c.state = stateDisconnected
}

// Quit closes the connection gracefully by sending the QUIT command.
// Calling Quit on a session that is not connected does nothing. If a data
// stream is open it is aborted by closing its connection. A later operation
// on the client logs in again.
func (c *Client) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.abort()
	}
	if c.conn == nil {
		return nil
	}

	// Send QUIT command (ignore errors, we're closing anyway)
	_, _ = c.exchange(NewCommand("QUIT"))
	c.closeConn()
	return nil
}

// Close quits the session if it is connected and releases its resources.
// The client must not be used afterwards.
func (c *Client) Close() error {
	_ = c.Quit()
	c.limiter.Stop()
	return nil
}

// Features returns the capabilities the server advertised during the last
// login. It is empty before the first login and when FEAT was rejected.
func (c *Client) Features() Features {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features
}

// WorkingDir returns the working directory, relative to the base directory.
func (c *Client) WorkingDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths.wd
}

// BaseDir returns the locked base directory, or "/" when none is locked.
func (c *Client) BaseDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths.base
}

// InitWorkingDir resets the directory state: dir becomes the working
// directory and, when lock is true and dir is not "/", the base directory
// every path is resolved against. It is meant to be called before the
// first operation; on a live session the new directory is entered at once.
func (c *Client) InitWorkingDir(dir string, lock bool) error {
	if dir == "" {
		return fmt.Errorf("directory must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.initWorkingDir(dir, lock)
	if c.state != stateAuthenticated {
		return nil
	}
	_, err := c.expect(NewCommand("CWD", c.paths.abs(c.paths.wd)))
	return err
}

func (c *Client) initWorkingDir(dir string, lock bool) {
	c.paths = newPathResolver()
	if lock && dir != "/" {
		c.paths.lock(dir)
		return
	}
	c.paths.wd = dir
}
