package ftpc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockServer provides a simple way to script server responses. It accepts
// any number of control connections, one after the other or at once, so
// tests can observe the client logging in again.
type mockServer struct {
	t        *testing.T
	listener net.Listener
	addr     string

	// handlers script the replies; Key: verb (e.g., "USER"). Unknown verbs
	// get the defaults of serve.
	handlers map[string]func(conn *textproto.Conn, args string)

	// features are the FEAT body lines; nil makes FEAT fail with 502
	features []string

	// dataListener is used for passive mode
	dataListener net.Listener

	mu       sync.Mutex
	received []string
	accepts  int
	uploaded []byte
	conns    []net.Conn

	wg sync.WaitGroup
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return &mockServer{
		t:        t,
		listener: l,
		addr:     l.Addr().String(),
		handlers: make(map[string]func(*textproto.Conn, string)),
	}
}

// enablePassive opens the listener PASV points to.
func (s *mockServer) enablePassive() {
	s.t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatal(err)
	}
	s.dataListener = l
}

// pasvReply returns the 227 reply for the data listener, advertising host
// (a dotted IPv4 address) instead of 127.0.0.1 when given.
func (s *mockServer) pasvReply(host string) string {
	port := s.dataListener.Addr().(*net.TCPAddr).Port
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("227 Entering Passive Mode (%s,%d,%d).",
		strings.ReplaceAll(host, ".", ","), port/256, port%256)
}

func (s *mockServer) start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.accepts++
			s.conns = append(s.conns, conn)
			s.mu.Unlock()

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serve(conn)
			}()
		}
	}()
}

func (s *mockServer) serve(conn net.Conn) {
	defer conn.Close()

	// Send welcome message
	fmt.Fprintf(conn, "220 Service ready\r\n")

	textConn := textproto.NewConn(conn)
	defer textConn.Close()

	for {
		line, err := textConn.ReadLine()
		if err != nil {
			return
		}

		verb, args, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		s.mu.Lock()
		s.received = append(s.received, line)
		handler, ok := s.handlers[verb]
		s.mu.Unlock()

		if ok {
			handler(textConn, args)
			continue
		}

		// Default behavior for common commands if no handler
		switch verb {
		case "USER":
			_ = textConn.PrintfLine("331 User name okay, need password.")
		case "PASS":
			_ = textConn.PrintfLine("230 User logged in, proceed.")
		case "FEAT":
			if s.features == nil {
				_ = textConn.PrintfLine("502 Command not implemented.")
				continue
			}
			_ = textConn.PrintfLine("211-Features:")
			for _, f := range s.features {
				_ = textConn.PrintfLine(" %s", f)
			}
			_ = textConn.PrintfLine("211 End")
		case "CWD":
			_ = textConn.PrintfLine("250 Directory changed.")
		case "TYPE", "OPTS", "PRET", "NOOP":
			_ = textConn.PrintfLine("200 Command okay.")
		case "PASV":
			if s.dataListener == nil {
				_ = textConn.PrintfLine("502 Command not implemented.")
				continue
			}
			_ = textConn.PrintfLine("%s", s.pasvReply(""))
		case "QUIT":
			_ = textConn.PrintfLine("221 Service closing control connection.")
			return
		default:
			_ = textConn.PrintfLine("502 Command not implemented.")
		}
	}
}

// sendData answers a download or listing: 150, the payload over the data
// connection, then 226.
func (s *mockServer) sendData(c *textproto.Conn, payload []byte) {
	_ = c.PrintfLine("150 File status okay; about to open data connection.")
	dconn, err := s.acceptData()
	if err != nil {
		s.t.Errorf("Mock server failed to accept data conn: %v", err)
		return
	}
	_, _ = dconn.Write(payload)
	dconn.Close()
	_ = c.PrintfLine("226 Closing data connection.")
}

// receiveData answers an upload and keeps what was sent.
func (s *mockServer) receiveData(c *textproto.Conn) {
	_ = c.PrintfLine("150 Ok to send data.")
	dconn, err := s.acceptData()
	if err != nil {
		s.t.Errorf("Mock server failed to accept data conn: %v", err)
		return
	}
	data, _ := io.ReadAll(dconn)
	dconn.Close()

	s.mu.Lock()
	s.uploaded = data
	s.mu.Unlock()
	_ = c.PrintfLine("226 Transfer complete.")
}

func (s *mockServer) acceptData() (net.Conn, error) {
	if tl, ok := s.dataListener.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(2 * time.Second))
	}
	return s.dataListener.Accept()
}

// commands returns the command lines received so far.
func (s *mockServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// verbs returns the verbs received so far.
func (s *mockServer) verbs() []string {
	var out []string
	for _, line := range s.commands() {
		verb, _, _ := strings.Cut(line, " ")
		out = append(out, verb)
	}
	return out
}

func (s *mockServer) count(verb string) int {
	n := 0
	for _, v := range s.verbs() {
		if v == verb {
			n++
		}
	}
	return n
}

func (s *mockServer) acceptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

func (s *mockServer) upload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploaded
}

func (s *mockServer) stop() {
	s.listener.Close()
	if s.dataListener != nil {
		s.dataListener.Close()
	}
	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// dialMock starts ms and returns a logged in client with a short timeout.
func dialMock(t *testing.T, ms *mockServer, opts ...Option) *Client {
	t.Helper()
	ms.start()
	t.Cleanup(ms.stop)

	c, err := Dial(ms.addr, append([]Option{WithTimeout(2 * time.Second)}, opts...)...)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// socksServer is a minimal SOCKS5 proxy: no authentication, CONNECT only.
// It records every target it is asked to reach.
type socksServer struct {
	listener net.Listener
	addr     string

	mu      sync.Mutex
	targets []string
}

// newSocksServer starts a proxy on host, skipping the test when the address
// cannot be bound.
func newSocksServer(t *testing.T, host string) *socksServer {
	t.Helper()
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		t.Skipf("cannot listen on %s: %v", host, err)
	}
	s := &socksServer{listener: l, addr: l.Addr().String()}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.serve(conn)
			}()
		}
	}()
	t.Cleanup(func() {
		l.Close()
		wg.Wait()
	})
	return s
}

func (s *socksServer) serve(client net.Conn) {
	defer client.Close()

	target, err := s.handshake(client)
	if err != nil {
		return
	}
	upstream, err := net.DialTimeout("tcp", target, 2*time.Second)
	if err != nil {
		// 0x05: connection refused
		_, _ = client.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer upstream.Close()
	if _, err := client.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(upstream, client)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(client, upstream)
		done <- struct{}{}
	}()
	<-done
}

// handshake reads the method negotiation and the CONNECT request and
// returns the requested host:port.
func (s *socksServer) handshake(conn net.Conn) (string, error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(conn, head); err != nil {
		return "", err
	}
	if head[0] != 5 {
		return "", fmt.Errorf("unsupported version %d", head[0])
	}
	if _, err := io.ReadFull(conn, make([]byte, head[1])); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte{5, 0}); err != nil {
		return "", err
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return "", err
	}
	if req[1] != 1 {
		return "", fmt.Errorf("unsupported command %d", req[1])
	}

	var host string
	switch req[3] {
	case 1, 4:
		ip := make(net.IP, 4)
		if req[3] == 4 {
			ip = make(net.IP, 16)
		}
		if _, err := io.ReadFull(conn, ip); err != nil {
			return "", err
		}
		host = ip.String()
	case 3:
		n := make([]byte, 1)
		if _, err := io.ReadFull(conn, n); err != nil {
			return "", err
		}
		name := make([]byte, n[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return "", err
		}
		host = string(name)
	default:
		return "", errors.New("unsupported address type")
	}

	port := make([]byte, 2)
	if _, err := io.ReadFull(conn, port); err != nil {
		return "", err
	}
	target := net.JoinHostPort(host, strconv.Itoa(int(port[0])<<8|int(port[1])))

	s.mu.Lock()
	s.targets = append(s.targets, target)
	s.mu.Unlock()
	return target, nil
}

// connects returns the CONNECT targets seen so far.
func (s *socksServer) connects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}
