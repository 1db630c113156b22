package ftpc

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// pasvRegex matches the PASV response format: 227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)
var pasvRegex = regexp.MustCompile(`\((\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3}),(\d{1,3})\)`)

// parsePASV parses the text of a PASV reply and returns the advertised
// address and port.
// Example: "Entering Passive Mode (192,168,1,5,117,43)."
// Returns: 192.168.1.5, 30000 (117<<8 | 43)
func parsePASV(text string) (net.IP, int, error) {
	matches := pasvRegex.FindStringSubmatch(text)
	if matches == nil {
		return nil, 0, fmt.Errorf("invalid pasv endpoint: %q", text)
	}

	var b [6]byte
	for i := range b {
		v, err := strconv.Atoi(matches[i+1])
		if err != nil || v > 255 {
			return nil, 0, fmt.Errorf("invalid pasv endpoint: %q", text)
		}
		b[i] = byte(v)
	}

	ip := net.IPv4(b[0], b[1], b[2], b[3])
	port := int(b[4])<<8 | int(b[5])
	return ip, port, nil
}

// passiveAddr applies the address override policy to a parsed PASV reply:
// the server's resolved address when configured, otherwise the fixed
// override address, otherwise the advertised address. The resolved address
// is used rather than the socket peer, which is the proxy when one is
// configured.
func (c *Client) passiveAddr(advertised net.IP, port int) string {
	host := advertised.String()
	switch {
	case c.passivePeer:
		if peer, _, err := net.SplitHostPort(c.addr); err == nil {
			host = peer
		}
	case c.passiveIP != nil:
		host = c.passiveIP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// openPassive requests a passive data connection and dials it. In implicit
// TLS mode the data connection is wrapped in TLS as well. The caller must
// hold c.mu.
func (c *Client) openPassive() (net.Conn, error) {
	pasv := NewCommand("PASV")
	resp, err := c.expect(pasv)
	if err != nil {
		return nil, err
	}

	ip, port, err := parsePASV(resp.Message)
	if err != nil {
		return nil, &ProtocolError{Command: pasv.String(), Response: err.Error(), Code: 0}
	}
	addr := c.passiveAddr(ip, port)

	c.logger.Debug("opening data connection", "addr", addr)
	conn, err := c.dial(addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial data", Addr: addr, Err: err}
	}

	if c.tlsMode == tlsModeImplicit {
		tlsConn, err := c.handshake(conn, "data")
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	return c.withDeadline(conn), nil
}

// openDataCommand runs the passive handshake for cmd: PRET when enabled and
// advertised, PASV, dialing the data connection, then cmd itself. If cmd is
// rejected the data connection is closed before the error is returned.
// The caller must hold c.mu.
func (c *Client) openDataCommand(cmd Command) (net.Conn, *Response, error) {
	if err := c.ensureReady(); err != nil {
		return nil, nil, err
	}

	if c.usePRET && c.features.Has("PRET") {
		if _, err := c.expect(cmd.Pret()); err != nil {
			return nil, nil, err
		}
	}

	conn, err := c.openPassive()
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.expect(cmd)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, resp, nil
}

// finishData reads the final reply of a data command once its connection
// has been closed. A preliminary reply is followed by a completion reply;
// when the server already answered with a completion there is nothing left
// to read. The caller must hold c.mu.
func (c *Client) finishData(cmd Command, first *Response) (*Response, error) {
	if !first.Is1xx() {
		return first, nil
	}
	if c.conn == nil {
		return nil, &TransportError{Op: "read " + cmd.Verb, Err: net.ErrClosed}
	}
	resp, err := c.readReply(cmd)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("ftp data transfer complete", "code", resp.Code, "message", resp.Message)
	if resp.Failed() {
		return resp, newProtocolError(cmd, resp)
	}
	return resp, nil
}
