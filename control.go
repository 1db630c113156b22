package ftpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// maxLineLength bounds a single control channel line.
const maxLineLength = 8 * 1024

// Response represents an FTP server response.
type Response struct {
	// Code is the three-digit response code (e.g., 220, 550)
	Code int

	// Message is the status text of the terminal line
	Message string

	// Lines contains the body lines of a multi-line response, in order,
	// with leading whitespace removed
	Lines []string
}

// Is1xx returns true if the response code is in the 1xx range (preliminary).
func (r *Response) Is1xx() bool {
	return r.Code >= 100 && r.Code < 200
}

// Is2xx returns true if the response code is in the 2xx range (success).
func (r *Response) Is2xx() bool {
	return r.Code >= 200 && r.Code < 300
}

// Is3xx returns true if the response code is in the 3xx range (intermediate).
func (r *Response) Is3xx() bool {
	return r.Code >= 300 && r.Code < 400
}

// Is4xx returns true if the response code is in the 4xx range (temporary failure).
func (r *Response) Is4xx() bool {
	return r.Code >= 400 && r.Code < 500
}

// Is5xx returns true if the response code is in the 5xx range (permanent failure).
func (r *Response) Is5xx() bool {
	return r.Code >= 500 && r.Code < 600
}

// Failed reports whether the server rejected the command (code 400 or above).
func (r *Response) Failed() bool {
	return r.Code >= 400
}

// String returns the body lines followed by the status line.
func (r *Response) String() string {
	status := fmt.Sprintf("%03d %s", r.Code, r.Message)
	if len(r.Lines) == 0 {
		return status
	}
	return strings.Join(r.Lines, "\n") + "\n" + status
}

// lineReader reads CRLF or LF terminated lines from the control connection
// and refuses lines longer than max.
type lineReader struct {
	r   *bufio.Reader
	max int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r), max: maxLineLength}
}

// ReadLine returns the next line without its terminator.
func (lr *lineReader) ReadLine() (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := lr.r.ReadLine()
		if err != nil {
			return "", err
		}
		if len(buf)+len(chunk) > lr.max {
			return "", ErrLineTooLong
		}
		buf = append(buf, chunk...)
		if !isPrefix {
			return string(buf), nil
		}
	}
}

// splitStatus reports whether line starts with a three digit code followed
// by a space or a hyphen, returning the code and the separator.
func splitStatus(line string) (int, byte, bool) {
	if len(line) < 4 || (line[3] != ' ' && line[3] != '-') {
		return 0, 0, false
	}
	for i := range 3 {
		if line[i] < '0' || line[i] > '9' {
			return 0, 0, false
		}
	}
	code, _ := strconv.Atoi(line[:3])
	return code, line[3], true
}

// readResponse reads a complete FTP response.
//
// Single-line format: "220 Welcome\r\n"
// Multi-line format:
//
//	"211-Features:\r\n"
//	" MLSD\r\n"
//	" UTF8\r\n"
//	"211 End\r\n"
//
// "DDD-" lines are continuation markers and are not part of the body. The
// response ends at the first "DDD " line; once a multi-line reply has been
// opened, only a status line carrying the same code ends it. Every other
// line is a body line with its leading whitespace trimmed.
func readResponse(lr *lineReader) (*Response, error) {
	resp := &Response{}
	open := -1
	for {
		line, err := lr.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errEndOfStream
			}
			return nil, err
		}

		if code, sep, ok := splitStatus(line); ok && (open < 0 || code == open) {
			if sep == ' ' {
				resp.Code = code
				resp.Message = line[4:]
				return resp, nil
			}
			open = code
			continue
		}

		resp.Lines = append(resp.Lines, strings.TrimLeft(line, " \t"))
	}
}

// exchange writes cmd on the control connection and reads the reply. It
// does not log in and does not interpret the reply code. The caller must
// hold c.mu.
func (c *Client) exchange(cmd Command) (*Response, error) {
	if !cmd.valid() {
		return nil, fmt.Errorf("ftp: invalid command %q", cmd.redacted())
	}
	if c.conn == nil {
		return nil, &TransportError{Op: "write " + cmd.Verb, Err: net.ErrClosed}
	}

	c.logger.Debug("ftp command", "cmd", cmd.redacted())
	start := time.Now()

	if _, err := c.conn.Write(cmd.wire()); err != nil {
		c.markDead()
		return nil, &TransportError{Op: "write " + cmd.Verb, Err: err}
	}

	resp, err := c.readReply(cmd)
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordCommand(cmd.Verb, resp.Code, time.Since(start))
	}
	return resp, nil
}

// readReply reads one reply for cmd from the control connection. A 421
// reply means the server is closing the connection; the reply is returned
// and the session is marked dead so the next command logs in again.
func (c *Client) readReply(cmd Command) (*Response, error) {
	resp, err := readResponse(c.reader)
	if err != nil {
		c.markDead()
		if errors.Is(err, errEndOfStream) {
			return nil, &ProtocolError{Command: cmd.redacted(), Response: err.Error(), Code: 0}
		}
		return nil, &TransportError{Op: "read " + cmd.Verb, Err: err}
	}

	c.logger.Debug("ftp response", "code", resp.Code, "message", resp.Message)

	if resp.Code == 421 {
		c.markDead()
	}
	return resp, nil
}

// do logs in if needed and sends cmd, returning the reply whatever its code.
func (c *Client) do(cmd Command) (*Response, error) {
	if c.active != nil {
		return nil, ErrTransferInProgress
	}
	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	return c.exchange(cmd)
}

// expect is do, turning a reply of 400 or above into a *ProtocolError.
func (c *Client) expect(cmd Command) (*Response, error) {
	resp, err := c.do(cmd)
	if err != nil {
		return nil, err
	}
	if resp.Failed() {
		return resp, newProtocolError(cmd, resp)
	}
	return resp, nil
}

// Do sends a command and returns the server's reply without interpreting
// its code. Only connection and transport failures are returned as errors.
// If the session is not logged in, or the previous command found the
// connection dead, Do logs in first.
//
// Example:
//
//	resp, err := client.Do(ftpc.NewCommand("DELE", "/tmp/old.log"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if resp.Failed() {
//	    fmt.Println("not deleted:", resp.Message)
//	}
func (c *Client) Do(cmd Command) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(cmd)
}

// Expect sends a command like Do and returns a *ProtocolError when the
// reply code is 400 or above.
func (c *Client) Expect(cmd Command) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expect(cmd)
}

// Quote sends a raw command to the server and returns the response.
// This allows sending commands that are not explicitly supported by the client.
// Arguments are sent as given; no path resolution is applied.
//
// Example:
//
//	resp, err := client.Quote("SITE", "CHMOD", "755", "script.sh")
func (c *Client) Quote(verb string, args ...string) (*Response, error) {
	return c.Do(NewCommand(verb, args...))
}
