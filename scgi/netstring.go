// Package scgi implements the wire protocol of the Simple Common Gateway
// Interface: netstring framing around a null-delimited header block,
// followed by a request body of CONTENT_LENGTH bytes. It also ships the
// default request handler, a plain-text echo of the parsed environment,
// used when no application handler is configured.
package scgi

import (
	"bufio"
	"io"
	"strconv"

	"github.com/nabbar/scgid/errors"
)

const netstringTerminator = ','

// readSize reads the ASCII-decimal length prefix of a netstring, up to and
// consuming the ':' that follows it.
func readSize(r *bufio.Reader) (int64, error) {
	var digits []byte

	for {
		c, err := r.ReadByte()
		if err != nil {
			return 0, errors.AddOrNew(ErrorNetstringSize.Error(), err)
		}
		if c == ':' {
			break
		}
		if c < '0' || c > '9' {
			return 0, ErrorNetstringSize.Error()
		}
		digits = append(digits, c)
		if len(digits) > 18 {
			// guards against a pathological prefix before strconv would
			// overflow int64 on the final parse
			return 0, ErrorNetstringSize.Error()
		}
	}

	if len(digits) == 0 {
		return 0, ErrorNetstringSize.Error()
	}

	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, errors.AddOrNew(ErrorNetstringSize.Error(), err)
	}

	return n, nil
}

// readNetstring reads one complete netstring: size, ':', size bytes of
// payload, and the trailing ',' terminator.
func readNetstring(r *bufio.Reader) ([]byte, error) {
	size, err := readSize(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err = io.ReadFull(r, payload); err != nil {
			return nil, errors.AddOrNew(ErrorNetstringRead.Error(), err)
		}
	}

	term, err := r.ReadByte()
	if err != nil {
		return nil, errors.AddOrNew(ErrorNetstringRead.Error(), err)
	}
	if term != netstringTerminator {
		return nil, ErrorNetstringDelim.Error()
	}

	return payload, nil
}
