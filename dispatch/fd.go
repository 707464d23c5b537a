package dispatch

import (
	"net"
	"syscall"
)

// fileDescriptorOf extracts the raw file descriptor behind an arbitrary
// net.Conn without duplicating it, for handing to fdpass.SendFD.
func fileDescriptorOf(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, ErrorHandoffSend.Error()
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}

	var fd int
	ctrlErr := raw.Control(func(p uintptr) { fd = int(p) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}

	return fd, nil
}

// fileDescriptorOfUnix is fileDescriptorOf specialised for the control
// sockets the pool polls directly.
func fileDescriptorOfUnix(conn *net.UnixConn) (int, error) {
	return fileDescriptorOf(conn)
}
