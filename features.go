package ftpc

import (
	"maps"
	"slices"
	"strings"
)

// Features holds the capabilities a server advertised in its FEAT reply
// (RFC 2389). Keys are kept exactly as the server sent them and lookups are
// case-sensitive. A zero Features answers false to every Has.
type Features struct {
	m map[string]string
}

// parseFeatures builds the registry from the body lines of a FEAT reply.
// The first whitespace-delimited token of a line is the key and the trimmed
// remainder its parameter string. When a key is repeated the last line wins.
func parseFeatures(lines []string) Features {
	m := make(map[string]string, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, params := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			key, params = line[:i], strings.TrimSpace(line[i+1:])
		}
		m[key] = params
	}
	return Features{m: m}
}

// Has reports whether the server advertised key.
func (f Features) Has(key string) bool {
	_, ok := f.m[key]
	return ok
}

// Get returns the parameter string advertised with key, or def if the key
// is absent.
//
// Example:
//
//	if strings.Contains(client.Features().Get("AUTH", ""), "TLS") {
//	    fmt.Println("Server supports AUTH TLS")
//	}
func (f Features) Get(key, def string) string {
	if v, ok := f.m[key]; ok {
		return v
	}
	return def
}

// Keys returns the advertised feature keys in sorted order.
func (f Features) Keys() []string {
	return slices.Sorted(maps.Keys(f.m))
}

// Len returns the number of advertised features.
func (f Features) Len() int {
	return len(f.m)
}
