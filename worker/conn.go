package worker

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/nabbar/scgid/errors"
)

// reconstructConn wraps a raw descriptor received over the control socket
// into a net.Conn, forcing it into blocking mode first. Some platforms hand
// back a non-blocking descriptor across SCM_RIGHTS; net.FileConn otherwise
// silently misbehaves on those, so blocking mode is set explicitly before
// the wrap rather than trusted from the sender.
func reconstructConn(fd int) (net.Conn, error) {
	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return nil, errors.AddOrNew(ErrorAcceptedSocketInvalid.Error(), err)
	}

	f := os.NewFile(uintptr(fd), "accepted-connection")
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		return nil, errors.AddOrNew(ErrorAcceptedSocketInvalid.Error(), err)
	}

	return conn, nil
}
