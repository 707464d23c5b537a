package supervisor

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/nabbar/scgid/errors"
)

// listenBacklog matches the original server's s.listen(40): a fixed
// pending-connection backlog rather than the OS default. net.Listen has
// no parameter for this, so the listening socket is built from the raw
// syscalls instead, the same way socketpair builds a worker's control
// channel.
const listenBacklog = 40

// listenTCP binds an IPv4 stream socket on addr (host:port, host empty
// meaning all interfaces) with SO_REUSEADDR set and an explicit backlog of
// listenBacklog, then wraps the resulting descriptor as a net.Listener.
func listenTCP(addr string) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, errors.AddOrNew(ErrorListen.Error(), err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, errors.AddOrNew(ErrorListen.Error(), err)
	}

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, errors.AddOrNew(ErrorListen.Error(), err)
	}

	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}

	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, errors.AddOrNew(ErrorListen.Error(), err)
	}

	if err = unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return nil, errors.AddOrNew(ErrorListen.Error(), err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("scgid-listen-%d", fd))
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, errors.AddOrNew(ErrorListen.Error(), err)
	}

	return ln, nil
}
