package ftpc

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// EntryType distinguishes files from directories.
type EntryType int

const (
	EntryDir EntryType = iota
	EntryFile
)

func (t EntryType) String() string {
	if t == EntryFile {
		return "file"
	}
	return "dir"
}

// Entry represents a file or directory entry from a listing.
type Entry struct {
	Name string
	Type EntryType
	// Size is the file size in bytes, 0 for directories
	Size int64
	// ModTime is the last modification time, zero when unknown
	ModTime time.Time
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Type == EntryDir
}

// ListingParser is an interface for parsing directory listing entries.
// Parse returns false for lines that do not describe an entry.
type ListingParser interface {
	Parse(line string) (*Entry, bool)
}

// legacyRegex matches the columnar listing of IIS and other Windows servers:
//
//	01-15-24  05:30PM       <DIR>          photos
//	01-15-24  05:30PM                 4096 report.pdf
var legacyRegex = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2})\s+(\d{2}:\d{2}(?:AM|PM))\s+(<DIR>|\d+)\s+(.+)$`)

// LegacyParser parses DOS/Windows-style directory entries.
type LegacyParser struct{}

// Parse implements ListingParser.
func (LegacyParser) Parse(line string) (*Entry, bool) {
	m := legacyRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	entry := &Entry{Name: m[4], Type: EntryFile}
	if m[3] == "<DIR>" {
		entry.Type = EntryDir
	} else {
		size, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return nil, false
		}
		entry.Size = size
	}

	if t, err := time.Parse("01-02-06 03:04PM", m[1]+" "+m[2]); err == nil {
		entry.ModTime = t
	}

	if isDotEntry(entry.Name) {
		return nil, false
	}
	return entry, true
}

// MLSDParser parses machine-readable entries (RFC 3659):
//
//	size=4096;type=file;modify=20240115173000; report.pdf
type MLSDParser struct{}

// Parse implements ListingParser. Fact names are case-insensitive; size,
// type and modify are used and other facts are ignored. The type value is
// compared case-insensitively: "file" is a file and any other value, or a
// missing type, is a directory. Entries of type cdir and pdir describe the
// listed directory and its parent and are skipped.
func (MLSDParser) Parse(line string) (*Entry, bool) {
	return parseFacts(line, false)
}

// parseFacts parses a "facts; name" line. With self set, as for the reply
// to MLST, cdir and pdir entries describe the requested path and are kept.
func parseFacts(line string, self bool) (*Entry, bool) {
	// Fact values may contain spaces, so the name starts after the first
	// "; " rather than the first space.
	facts, name, ok := strings.Cut(line, "; ")
	if !ok {
		i := strings.LastIndex(line, ";")
		if i < 0 {
			return nil, false
		}
		facts, name = line[:i], strings.TrimSpace(line[i+1:])
	}
	if name == "" || (!self && isDotEntry(name)) {
		return nil, false
	}

	entry := &Entry{Name: name, Type: EntryDir}
	for _, fact := range strings.Split(facts, ";") {
		key, value, ok := strings.Cut(fact, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "type":
			switch strings.ToLower(value) {
			case "file":
				entry.Type = EntryFile
			case "cdir", "pdir":
				if !self {
					return nil, false
				}
				entry.Type = EntryDir
			default:
				entry.Type = EntryDir
			}
		case "size":
			if size, err := strconv.ParseInt(value, 10, 64); err == nil {
				entry.Size = size
			}
		case "modify":
			entry.ModTime = parseTimeVal(value)
		}
	}

	if entry.Type == EntryDir {
		entry.Size = 0
	}
	return entry, true
}

// parseTimeVal parses an RFC 3659 time-val (YYYYMMDDHHMMSS with optional
// fraction), always UTC. It returns the zero time for malformed input.
func parseTimeVal(s string) time.Time {
	s, _, _ = strings.Cut(strings.TrimSpace(s), ".")
	if len(s) != 14 {
		return time.Time{}
	}
	t, err := time.Parse("20060102150405", s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func isDotEntry(name string) bool {
	return name == "." || name == ".."
}

// parseListing splits listing data into lines and parses each non-empty one,
// dropping lines the parser rejects.
func parseListing(text string, parser ListingParser) []*Entry {
	var entries []*Entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if entry, ok := parser.Parse(line); ok && !isDotEntry(entry.Name) {
			entries = append(entries, entry)
		}
	}
	return entries
}

// List returns the entries of the directory at path, or of the working
// directory when path is empty. Servers advertising MLSD are listed with
// MLSD, others with "LIST -al" in the Windows columnar format.
//
// Listing a path changes the server side directory for the duration of the
// call only; WorkingDir is unaffected.
//
// Example:
//
//	entries, err := client.List("/pub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, entry := range entries {
//	    fmt.Printf("%s: %d bytes (%s)\n", entry.Name, entry.Size, entry.Type)
//	}
func (c *Client) List(path string) ([]*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrTransferInProgress
	}
	if err := c.ensureReady(); err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := c.expect(NewCommand("CWD", c.paths.abs(path))); err != nil {
			return nil, err
		}
	}

	entries, err := c.list()
	if path == "" {
		return entries, err
	}

	// Go back to the working directory. A failure of the listing itself
	// takes precedence.
	if _, cwdErr := c.expect(NewCommand("CWD", c.paths.abs(c.paths.wd))); err == nil && cwdErr != nil {
		return nil, cwdErr
	}
	return entries, err
}

// list lists the server's current directory. The caller must hold c.mu.
func (c *Client) list() ([]*Entry, error) {
	cmd := NewCommand("LIST", "-al")
	var parser ListingParser = LegacyParser{}
	if c.features.Has("MLSD") {
		cmd = NewCommand("MLSD")
		parser = MLSDParser{}
	}
	if c.listParser != nil {
		parser = c.listParser
	}

	start := time.Now()
	conn, first, err := c.openDataCommand(cmd)
	if err != nil {
		return nil, err
	}

	data, readErr := io.ReadAll(conn)
	conn.Close()

	if _, err := c.finishData(cmd, first); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, &TransportError{Op: "read listing", Err: readErr}
	}

	if c.metrics != nil {
		c.metrics.RecordTransfer(cmd.Verb, int64(len(data)), time.Since(start))
	}

	text, err := c.decodeListing(data)
	if err != nil {
		return nil, err
	}
	return parseListing(text, parser), nil
}

// decodeListing converts raw listing bytes to text using the configured
// encoding, UTF-8 by default.
func (c *Client) decodeListing(data []byte) (string, error) {
	if c.encoding == nil {
		return string(data), nil
	}
	decoded, err := c.encoding.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode listing: %w", err)
	}
	return string(decoded), nil
}
