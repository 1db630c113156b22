package ftpc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChangeDir changes the working directory. A relative dir is appended to
// the current working directory; with a locked base directory an absolute
// dir is taken relative to the base.
func (c *Client) ChangeDir(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.expect(NewCommand("CWD", c.paths.abs(dir))); err != nil {
		return err
	}
	c.paths.chdir(dir)
	return nil
}

// CurrentDir returns the server's current directory as reported by PWD.
// The path is not relative to a locked base directory; see WorkingDir.
func (c *Client) CurrentDir() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.expect(NewCommand("PWD"))
	if err != nil {
		return "", err
	}

	// Example: 257 "/home/user" is the current directory
	msg := resp.Message
	start := strings.Index(msg, "\"")
	if start == -1 {
		return msg, nil
	}
	end := strings.LastIndex(msg, "\"")
	if end <= start {
		return msg, nil
	}
	return strings.ReplaceAll(msg[start+1:end], `""`, `"`), nil
}

// MakeDir creates a new directory.
func (c *Client) MakeDir(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.expect(NewCommand("MKD", c.paths.abs(path)))
	return err
}

// MakeDirAll creates path and any missing parents, one MKD per path
// element. Rejections are ignored, since most of them mean the directory
// already exists; only connection failures are returned.
//
// Example:
//
//	if err := client.MakeDirAll("backups/2024/01"); err != nil {
//	    log.Fatal(err)
//	}
func (c *Client) MakeDirAll(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := ""
	if strings.HasPrefix(path, "/") {
		prefix = "/"
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if prefix == "" || prefix == "/" {
			prefix += part
		} else {
			prefix += "/" + part
		}
		if _, err := c.do(NewCommand("MKD", c.paths.abs(prefix))); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDir removes an empty directory.
func (c *Client) RemoveDir(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.expect(NewCommand("RMD", c.paths.abs(path)))
	return err
}

// Delete deletes a file.
func (c *Client) Delete(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.expect(NewCommand("DELE", c.paths.abs(path)))
	return err
}

// TryDelete deletes a file and reports whether the server accepted it.
// A rejection is not an error.
func (c *Client) TryDelete(path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.do(NewCommand("DELE", c.paths.abs(path)))
	if err != nil {
		return false, err
	}
	return !resp.Failed(), nil
}

// Rename renames a file or directory.
func (c *Client) Rename(from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rnfr := NewCommand("RNFR", c.paths.abs(from))
	resp, err := c.expect(rnfr)
	if err != nil {
		return err
	}
	if resp.Code != 350 {
		return newProtocolError(rnfr, resp)
	}

	_, err = c.expect(NewCommand("RNTO", c.paths.abs(to)))
	return err
}

// Size returns the size of a file in bytes.
func (c *Client) Size(path string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.expect(NewCommand("SIZE", c.paths.abs(path)))
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SIZE response: %s", resp.Message)
	}
	return size, nil
}

// ModTime returns the modification time of a file using the MDTM command.
// This implements RFC 3659 - Extensions to FTP.
//
// Example:
//
//	modTime, err := client.ModTime("file.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Last modified: %s\n", modTime)
func (c *Client) ModTime(path string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.expect(NewCommand("MDTM", c.paths.abs(path)))
	if err != nil {
		return time.Time{}, err
	}

	// RFC 3659 Section 2.3: "Time values are always represented in UTC"
	t := parseTimeVal(resp.Message)
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("invalid MDTM response format: %s", resp.Message)
	}
	return t, nil
}

// SetModTime sets the modification time of a file using the MFMT command.
// The time is converted to UTC before being sent out.
// This implements draft-somers-ftp-mfxx.
//
// Example:
//
//	err := client.SetModTime("file.txt", time.Now())
func (c *Client) SetModTime(path string, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	timestamp := t.UTC().Format("20060102150405")
	_, err := c.expect(NewCommand("MFMT", timestamp, c.paths.abs(path)))
	return err
}
