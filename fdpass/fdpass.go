// Package fdpass implements the two descriptor-passing primitives the
// dispatch fabric is built on: sending an open file descriptor to a peer
// process over a connected Unix-domain stream socket, and receiving one
// back. Rights are carried in ancillary (out-of-band) control data, the
// SCM_RIGHTS mechanism.
package fdpass

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/scgid/errors"
)

// oobSpace sizes the ancillary-data buffer for exactly one descriptor.
// unix.UnixRights assumes a 4-byte (int32) fd, so CmsgSpace(4) is enough
// for the single descriptor this protocol ever carries per message.
var oobSpace = unix.CmsgSpace(4)

// readyToken is the single payload byte accompanying every descriptor
// transfer. Ancillary data with a fully empty payload is dropped by some
// kernels, so the control message always carries this one byte.
const readyToken = ' '

// SendFD transmits the rights to fd across channel. The sender keeps its
// own copy of fd open; it is the caller's responsibility to close it if it
// is no longer needed locally.
//
// Returns a fatal error on any transport failure, except a closed-channel
// condition (peer gone: broken pipe, end-of-stream, or already-closed socket),
// which is returned raw and unwrapped so IsClosedChannel can still see the
// original stdlib error chain through it, matching the dispatcher's
// fall-through-on-broken-pipe branch. Wrapping it in the custom Error type
// would bury the original error behind a string comparison that a
// composite *net.OpError never satisfies.
func SendFD(channel *net.UnixConn, fd int) error {
	if channel == nil || fd < 0 {
		return ErrorParamsEmpty.Error()
	}

	oob := unix.UnixRights(fd)
	data := []byte{readyToken}

	for len(data) > 0 || len(oob) > 0 {
		n, oobn, err := channel.WriteMsgUnix(data, oob, nil)
		if err != nil {
			if IsClosedChannel(err) {
				return err
			}
			return liberr.AddOrNew(ErrorSend.Error(), err)
		}
		data = data[n:]
		oob = oob[oobn:]
	}

	return nil
}

// RecvFD blocks until it has read one payload byte and one descriptor from
// the ancillary data on channel. The returned descriptor is a fresh handle
// in the caller's process, referring to the same open-file-description as
// the sender's original.
//
// Returns io.EOF when the peer has closed its end of channel.
func RecvFD(channel *net.UnixConn) (int, error) {
	if channel == nil {
		return -1, ErrorParamsEmpty.Error()
	}

	data := make([]byte, 1)
	oob := make([]byte, oobSpace)

	n, oobn, _, _, err := channel.ReadMsgUnix(data, oob)
	if err != nil {
		if IsClosedChannel(err) {
			return -1, err
		}
		return -1, liberr.AddOrNew(ErrorReceive.Error(), err)
	}
	if n == 0 {
		return -1, io.EOF
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, liberr.AddOrNew(ErrorReceive.Error(), err)
	}
	if len(scms) == 0 {
		return -1, ErrorNoControlMessage.Error()
	}

	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return -1, liberr.AddOrNew(ErrorReceive.Error(), err)
	}
	if len(fds) == 0 {
		return -1, ErrorNoRightsInMessage.Error()
	}

	return fds[0], nil
}

// IsClosedChannel reports whether err indicates the peer end of a
// descriptor-passing channel has gone away (broken pipe or end-of-stream),
// as opposed to some other, unexpected transport failure.
func IsClosedChannel(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, unix.EPIPE) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	return false
}
