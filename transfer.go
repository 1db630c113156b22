package ftpc

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/gonzalop/ftpc/internal/localfile"
	"github.com/gonzalop/ftpc/internal/ratelimit"
)

// DataStream is the data connection of a RETR or STOR started with OpenRead
// or OpenWrite. It must be closed; Close reads the server's final reply and
// reports a failed transfer as a *ProtocolError. No other command can be
// sent on the client while the stream is open.
type DataStream struct {
	c     *Client
	cmd   Command
	conn  net.Conn
	r     io.Reader
	w     io.Writer
	first *Response
	n     int64
	start time.Time
	done  bool
}

func newDataStream(c *Client, cmd Command, conn net.Conn, first *Response) *DataStream {
	return &DataStream{
		c:     c,
		cmd:   cmd,
		conn:  conn,
		r:     ratelimit.NewReader(conn, c.limiter),
		w:     ratelimit.NewWriter(conn, c.limiter),
		first: first,
		start: time.Now(),
	}
}

// Read reads file data of a download.
func (s *DataStream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.count(n)
	if err != nil && err != io.EOF {
		err = &TransportError{Op: "read data", Err: err}
	}
	return n, err
}

// Write writes file data of an upload.
func (s *DataStream) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.count(n)
	if err != nil {
		err = &TransportError{Op: "write data", Err: err}
	}
	return n, err
}

// Close closes the data connection and waits for the server to confirm the
// transfer. Calling Close more than once returns nil.
func (s *DataStream) Close() error {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.done {
		return nil
	}
	s.done = true
	c.active = nil

	if err := s.conn.Close(); err != nil {
		c.logger.Debug("closing data connection", "error", err)
	}
	if _, err := c.finishData(s.cmd, s.first); err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordTransfer(s.cmd.Verb, s.n, time.Since(s.start))
	}
	return nil
}

// abort drops the data connection without waiting for a reply.
// The caller must hold c.mu.
func (s *DataStream) abort() {
	s.done = true
	s.c.active = nil
	_ = s.conn.Close()
}

// open starts verb on path in binary mode and returns its data stream.
func (c *Client) open(verb, path string) (*DataStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.expect(NewCommand("TYPE", "I")); err != nil {
		return nil, fmt.Errorf("failed to set binary mode: %w", err)
	}

	cmd := NewCommand(verb, c.paths.abs(path))
	conn, first, err := c.openDataCommand(cmd)
	if err != nil {
		return nil, err
	}

	s := newDataStream(c, cmd, conn, first)
	c.active = s
	return s, nil
}

// OpenRead starts downloading path and returns the data stream to read it
// from. The stream must be closed.
//
// Example:
//
//	r, err := client.OpenRead("/pub/README")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_, err = io.Copy(os.Stdout, r)
//	if cerr := r.Close(); err == nil {
//	    err = cerr
//	}
func (c *Client) OpenRead(path string) (*DataStream, error) {
	return c.open("RETR", path)
}

// OpenWrite starts uploading to path and returns the data stream to write
// the content to. Closing the stream ends the upload.
func (c *Client) OpenWrite(path string) (*DataStream, error) {
	return c.open("STOR", path)
}

// Retrieve downloads data from the remote path to an io.Writer.
// The transfer is performed in binary mode (TYPE I).
//
// Example:
//
//	file, err := os.Create("local.txt")
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//
//	err = client.Retrieve("remote.txt", file)
func (c *Client) Retrieve(path string, w io.Writer) error {
	s, err := c.OpenRead(path)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(w, s)

	// Always finish the data connection (close and read response)
	closeErr := s.Close()

	if copyErr != nil {
		return fmt.Errorf("download failed: %w", copyErr)
	}
	return closeErr
}

// Store uploads data from an io.Reader to the remote path.
// The transfer is performed in binary mode (TYPE I).
func (c *Client) Store(path string, r io.Reader) error {
	s, err := c.OpenWrite(path)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(s, r)
	closeErr := s.Close()

	if copyErr != nil {
		return fmt.Errorf("upload failed: %w", copyErr)
	}
	return closeErr
}

// RetrieveBytes downloads the remote path into memory.
func (c *Client) RetrieveBytes(path string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Retrieve(path, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StoreBytes uploads data to the remote path.
func (c *Client) StoreBytes(path string, data []byte) error {
	return c.Store(path, bytes.NewReader(data))
}

// RetrieveTo downloads a remote file to a local path. The local file is
// written next to its destination and renamed into place once the transfer
// is confirmed, so a failed download leaves no partial file behind. Two
// downloads to the same local path exclude each other.
func (c *Client) RetrieveTo(path, localPath string) error {
	ctx, cancel := c.opContext()
	defer cancel()

	f, err := localfile.Create(ctx, localPath)
	if err != nil {
		return err
	}

	if err := c.Retrieve(path, f); err != nil {
		_ = f.Abort()
		return err
	}
	return f.Commit()
}

// StoreFrom uploads a local file to the remote path.
// This is a convenience wrapper around Store.
func (c *Client) StoreFrom(path, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	return c.Store(path, file)
}

// RestartAt sends REST with offset and requires the 350 reply. The marker
// applies to the next RETR or STOR on servers that keep it across the TYPE
// and PASV commands sent before every transfer; resumed transfers are not
// otherwise supported.
func (c *Client) RestartAt(offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rest := NewCommand("REST", strconv.FormatInt(offset, 10))
	resp, err := c.expect(rest)
	if err != nil {
		return err
	}
	if resp.Code != 350 {
		return newProtocolError(rest, resp)
	}
	return nil
}
