package scgi

import (
	"bufio"
	"sort"
	"strconv"
	"strings"
)

// Env is the parsed SCGI header block: a null-delimited sequence of
// name/value pairs, conventionally led by CONTENT_LENGTH and SCGI.
type Env map[string]string

// readEnv reads and parses the header netstring off r.
func readEnv(r *bufio.Reader) (Env, error) {
	raw, err := readNetstring(r)
	if err != nil {
		return nil, err
	}

	items := strings.Split(string(raw), "\x00")
	// the header block always ends in a trailing NUL, producing one
	// empty trailing element after the split
	if len(items) > 0 && items[len(items)-1] == "" {
		items = items[:len(items)-1]
	}
	if len(items)%2 != 0 {
		return nil, ErrorHeaderOddFields.Error()
	}

	env := make(Env, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		env[items[i]] = items[i+1]
	}

	return env, nil
}

// ContentLength returns the value of the mandatory CONTENT_LENGTH header.
func (e Env) ContentLength() (int64, error) {
	v, ok := e["CONTENT_LENGTH"]
	if !ok {
		return 0, ErrorContentLengthMissing.Error()
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, ErrorContentLengthInvalid.Error()
	}

	return n, nil
}

// Keys returns the header names in sorted order, for handlers that want a
// deterministic rendering of the environment.
func (e Env) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
