package supervisor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"github.com/nabbar/scgid/errors"
)

// envControlFD names the environment variable carrying the inherited
// control-socket file descriptor number, read by cmd/scgid's hidden worker
// entrypoint to know it should run as a worker rather than as the
// supervisor.
const envControlFD = "SCGID_CONTROL_FD"

// reexecArgs is set once by cmd/scgid to the argv used to re-invoke the
// running binary as a worker (its own resolved path plus the hidden
// worker subcommand name).
var reexecArgs []string

// SetReexecArgs configures the argv used to start worker processes. Called
// once from cmd/scgid during startup.
func SetReexecArgs(args []string) {
	reexecArgs = args
}

// spawnWorker starts a new worker process via self re-exec: the binary is
// invoked again with the hidden worker subcommand, inheriting the child
// end of a fresh control socket pair as fd 3. Go cannot fork without also
// replacing the child's image, so re-exec stands in for the traditional
// fork used by the pre-forking model this server is based on; unlike a
// real fork, the child's file descriptor table is NOT duplicated, so it
// never risks inheriting an in-flight accepted connection by accident.
func spawnWorker() (pid int, control *net.UnixConn, err error) {
	parentFD, childFD, err := socketpair()
	if err != nil {
		return 0, nil, errors.AddOrNew(ErrorSocketpair.Error(), err)
	}

	childFile := os.NewFile(uintptr(childFD), "control")
	defer childFile.Close()

	argv0, err := exec.LookPath(reexecArgs[0])
	if err != nil {
		_ = parentFD.Close()
		return 0, nil, errors.AddOrNew(ErrorReexecSelf.Error(), err)
	}

	proc, err := os.StartProcess(argv0, reexecArgs, &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr, childFile},
		Env:   append(os.Environ(), fmt.Sprintf("%s=3", envControlFD)),
	})
	if err != nil {
		_ = parentFD.Close()
		return 0, nil, errors.AddOrNew(ErrorReexecSelf.Error(), err)
	}

	return proc.Pid, parentFD, nil
}

// socketpair creates a connected pair of Unix-domain stream sockets for a
// new worker's control channel: parentFD stays with the supervisor as a
// *net.UnixConn, childFD is handed to the new process as an inherited fd.
func socketpair() (parentFD *net.UnixConn, childFD int, err error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, 0, err
	}

	f := os.NewFile(uintptr(fds[0]), "control-parent")
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		_ = syscall.Close(fds[1])
		return nil, 0, err
	}

	uc, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		_ = syscall.Close(fds[1])
		return nil, 0, ErrorSocketpair.Error()
	}

	return uc, fds[1], nil
}
