package supervisor

import (
	"net"
	"os"
	"strconv"

	"github.com/nabbar/scgid/errors"
)

// InheritControl reports whether this process was re-exec'd as a worker
// and, if so, reconstructs the net.UnixConn for the control socket it
// inherited at fd 3. cmd/scgid's hidden worker subcommand calls this
// before handing the connection to the worker package.
func InheritControl() (control *net.UnixConn, isWorker bool, err error) {
	v := os.Getenv(envControlFD)
	if v == "" {
		return nil, false, nil
	}

	fdNum, convErr := strconv.Atoi(v)
	if convErr != nil {
		return nil, true, errors.AddOrNew(ErrorSocketpair.Error(), convErr)
	}

	f := os.NewFile(uintptr(fdNum), "control-child")
	conn, connErr := net.FileConn(f)
	_ = f.Close()
	if connErr != nil {
		return nil, true, errors.AddOrNew(ErrorSocketpair.Error(), connErr)
	}

	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, true, ErrorSocketpair.Error()
	}

	return uc, true, nil
}
