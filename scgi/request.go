package scgi

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/nabbar/scgid/errors"
)

// Request is one parsed SCGI request: its environment and a reader
// positioned at the start of the request body.
type Request struct {
	Env  Env
	Body io.Reader
}

// Handler processes one parsed SCGI request and writes a response,
// including the status line and any headers, to w.
type Handler func(w io.Writer, req *Request) error

// ReadRequest parses one SCGI request off the given buffered reader: the
// netstring-framed header block, followed by exactly ContentLength bytes
// of body.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	env, err := readEnv(r)
	if err != nil {
		return nil, err
	}

	n, err := env.ContentLength()
	if err != nil {
		return nil, err
	}

	return &Request{Env: env, Body: io.LimitReader(r, n)}, nil
}

// Serve reads one request from conn and dispatches it to handler, writing
// the handler's response back to conn. It handles exactly one request per
// connection, matching the SCGI protocol's one-shot model.
func Serve(conn net.Conn, handler Handler) error {
	r := bufio.NewReader(conn)

	req, err := ReadRequest(r)
	if err != nil {
		return err
	}

	if handler == nil {
		handler = DefaultHandler
	}

	if err = handler(conn, req); err != nil {
		return errors.AddOrNew(ErrorResponseWrite.Error(), err)
	}

	return nil
}

// DefaultHandler is the fallback request handler: it drains the body (SCGI
// requires the handler to consume it even when unused) and echoes the
// parsed environment back as plain text, one "KEY: 'value'" line per
// header, sorted by key for deterministic output.
func DefaultHandler(w io.Writer, req *Request) error {
	if _, err := io.Copy(io.Discard, req.Body); err != nil {
		return errors.AddOrNew(ErrorBodyRead.Error(), err)
	}

	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString("Status: 200 OK\r\n"); err != nil {
		return err
	}
	if _, err := bw.WriteString("Content-Type: text/plain\r\n\r\n"); err != nil {
		return err
	}

	for _, k := range req.Env.Keys() {
		if _, err := fmt.Fprintf(bw, "%s: '%s'\n", k, req.Env[k]); err != nil {
			return err
		}
	}

	return bw.Flush()
}
