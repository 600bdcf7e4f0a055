package transport

import (
	"fmt"
	"strings"
)

// An addressEntry is one parsed entry of a DBus server address:
// a transport name and its key=value parameters.
type addressEntry struct {
	transport string
	params    map[string]string
}

// parseAddress parses a DBus server address into its entries.
//
// An address is one or more semicolon-separated entries, each a
// transport name followed by a colon and comma-separated key=value
// parameters, with bytes outside the optionally-escaped set encoded
// as %XX.
func parseAddress(address string) ([]addressEntry, error) {
	if address == "" {
		return nil, fmt.Errorf("empty bus address")
	}
	var ret []addressEntry
	for _, entry := range strings.Split(address, ";") {
		if entry == "" {
			continue
		}
		transport, rest, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("malformed bus address entry %q: missing transport separator", entry)
		}
		e := addressEntry{
			transport: transport,
			params:    map[string]string{},
		}
		if rest != "" {
			for _, kv := range strings.Split(rest, ",") {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return nil, fmt.Errorf("malformed bus address parameter %q in entry %q", kv, entry)
				}
				uv, err := unescape(v)
				if err != nil {
					return nil, fmt.Errorf("malformed bus address parameter %q in entry %q: %w", kv, entry, err)
				}
				e.params[k] = uv
			}
		}
		ret = append(ret, e)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("bus address %q contains no entries", address)
	}
	return ret, nil
}

// unescape decodes the %XX escapes of a bus address parameter value.
func unescape(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var ret strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			ret.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated %%-escape in %q", s)
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid %%-escape in %q", s)
		}
		ret.WriteByte(hi<<4 | lo)
		i += 2
	}
	return ret.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
