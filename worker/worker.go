// Package worker implements the child-process side of the dispatch
// protocol: signal readiness, block for a handed-off connection, serve it,
// repeat. One worker handles exactly one request at a time, to completion,
// before announcing readiness again.
package worker

import (
	"net"
	"os"

	"github.com/nabbar/scgid/applog"
	"github.com/nabbar/scgid/errors"
	"github.com/nabbar/scgid/fdpass"
	"github.com/nabbar/scgid/scgi"
)

const readyByte = '1'

// Worker serves requests handed to it by the parent over control, a
// connected Unix-domain control socket inherited at spawn time.
type Worker struct {
	control *net.UnixConn
	handler scgi.Handler
	log     *applog.Logger
}

// New builds a worker bound to the given control socket. handler processes
// each accepted connection; a nil handler falls back to scgi.DefaultHandler.
func New(control *net.UnixConn, handler scgi.Handler, log *applog.Logger) *Worker {
	if log == nil {
		log = applog.Default()
	}
	return &Worker{control: control, handler: handler, log: log}
}

// Serve runs the worker's infinite readiness/request loop. It returns nil
// only when the parent has gone away — that is the sole, expected exit
// condition — and a non-nil error for anything that looks like a protocol
// violation rather than parent disappearance.
func (w *Worker) Serve() error {
	if w.control == nil {
		return ErrorControlSocketMissing.Error()
	}

	pid := os.Getpid()
	w.log.With(map[string]interface{}{"pid": pid}).Info("worker ready to serve")

	for {
		if _, err := w.control.Write([]byte{readyByte}); err != nil {
			w.log.With(map[string]interface{}{"pid": pid}).Infof("control socket closed while announcing readiness, exiting: %v", err)
			return nil
		}

		fd, err := fdpass.RecvFD(w.control)
		if err != nil {
			if fdpass.IsClosedChannel(err) {
				w.log.With(map[string]interface{}{"pid": pid}).Info("parent gone, exiting")
				return nil
			}
			return err
		}

		conn, err := reconstructConn(fd)
		if err != nil {
			return errors.AddOrNew(ErrorAcceptedSocketInvalid.Error(), err)
		}

		w.serveOne(conn, pid)
	}
}

func (w *Worker) serveOne(conn net.Conn, pid int) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			w.log.With(map[string]interface{}{"pid": pid}).Errorf("request handler panicked: %v", r)
		}
	}()

	if err := scgi.Serve(conn, w.handler); err != nil {
		w.log.With(map[string]interface{}{"pid": pid}).Infof("request failed: %v", err)
	}
}
