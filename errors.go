package ftpc

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrUnsupported is returned by Probe when the server advertises none of
	// MLST, SIZE or MDTM.
	ErrUnsupported = errors.New("ftp: server supports none of MLST, SIZE, MDTM")

	// ErrLineTooLong is reported when a control channel line exceeds the
	// maximum accepted length. The session is considered dead afterwards.
	ErrLineTooLong = errors.New("ftp: control line too long")

	// ErrTransferInProgress is returned when a command is issued while a
	// DataStream returned by OpenRead or OpenWrite is still open.
	ErrTransferInProgress = errors.New("ftp: data transfer in progress")

	// ErrInvalidURL wraps every error returned by ParseURL.
	ErrInvalidURL = errors.New("ftp: invalid url")

	errEndOfStream = errors.New("end of stream")
)

// ProtocolError represents an FTP protocol error with full context of the
// command/response conversation. It is returned whenever the server answers
// a command with a code of 400 or above and the caller asked for errors to be
// raised, when a PASV reply cannot be parsed, and when the control stream
// ends in the middle of a reply (Code 0).
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "STOR /file.txt").
	// Password arguments are masked.
	Command string

	// Response is the status text of the server's reply (e.g., "Permission denied")
	Response string

	// Code is the numeric FTP response code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// Is4xx returns true if the error code is in the 4xx range (temporary failure).
func (e *ProtocolError) Is4xx() bool {
	return e.Code >= 400 && e.Code < 500
}

// Is5xx returns true if the error code is in the 5xx range (permanent failure).
func (e *ProtocolError) Is5xx() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTemporary returns true if the error is a temporary failure (4xx).
// This can be used to implement retry logic.
func (e *ProtocolError) IsTemporary() bool {
	return e.Is4xx()
}

// IsPermanent returns true if the error is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Is5xx()
}

// ConnectionError reports a failure to establish the control connection:
// host resolution ("resolve"), TCP connect ("dial") or TLS handshake ("tls").
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ftp: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransportError reports a read or write failure on the control or data
// connection, including timeouts. A transport error on the control
// connection marks the session as disconnected; the next command logs in
// again, the failed one is not retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ftp: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by an expired deadline.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func newProtocolError(cmd Command, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  cmd.redacted(),
		Response: resp.Message,
		Code:     resp.Code,
	}
}
