package ftpc

import (
	"fmt"
)

// probeCommand picks the cheapest command the server supports to ask about
// a single path, preferring MLST, then SIZE, then MDTM.
func (c *Client) probeCommand(path string) (Command, error) {
	abs := c.paths.abs(path)
	for _, verb := range []string{"MLST", "SIZE", "MDTM"} {
		if c.features.Has(verb) {
			return NewCommand(verb, abs), nil
		}
	}
	return Command{}, ErrUnsupported
}

// Probe asks the server about path with MLST, SIZE or MDTM, whichever is
// advertised first in that order, and returns the reply. A rejection is
// returned as a *ProtocolError; a server supporting none of the three
// yields ErrUnsupported.
func (c *Client) Probe(path string) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	cmd, err := c.probeCommand(path)
	if err != nil {
		return nil, err
	}
	return c.expect(cmd)
}

// Exists reports whether path exists, using the same command as Probe.
// A rejection means false, not an error.
//
// Note that SIZE is refused for directories by many servers, so on servers
// without MLST Exists may report false for an existing directory.
func (c *Client) Exists(path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureReady(); err != nil {
		return false, err
	}
	cmd, err := c.probeCommand(path)
	if err != nil {
		return false, err
	}
	resp, err := c.do(cmd)
	if err != nil {
		return false, err
	}
	return !resp.Failed(), nil
}

// Stat returns information about a single file or directory using the MLST
// command. This implements RFC 3659 - Extensions to FTP.
//
// Example:
//
//	entry, err := client.Stat("file.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Size: %d, Modified: %s\n", entry.Size, entry.ModTime)
func (c *Client) Stat(path string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureReady(); err != nil {
		return nil, err
	}
	if !c.features.Has("MLST") {
		return nil, ErrUnsupported
	}

	resp, err := c.expect(NewCommand("MLST", c.paths.abs(path)))
	if err != nil {
		return nil, err
	}

	// MLST returns the entry as the only body line:
	// "250-Listing path\r\n size=12;type=file; /path\r\n250 End"
	for _, line := range resp.Lines {
		if entry, ok := parseFacts(line, true); ok {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("no entry found in MLST response")
}
