package supervisor

import "github.com/nabbar/scgid/errors"

const (
	ErrorListen errors.CodeError = iota + errors.MinPkgSupervisor
	ErrorAccept
	ErrorSpawnWorker
	ErrorReexecSelf
	ErrorSocketpair
	ErrorFileDescriptorLimit
	ErrorRestartInProgress
	ErrorWaitChild
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorListen)
	errors.RegisterIdFctMessage(ErrorListen, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorListen:
		return "cannot bind the listening socket"
	case ErrorAccept:
		return "cannot accept an incoming connection"
	case ErrorSpawnWorker:
		return "cannot start a new worker process"
	case ErrorReexecSelf:
		return "cannot re-execute the running binary to start a worker"
	case ErrorSocketpair:
		return "cannot create a unix socket pair for a worker control channel"
	case ErrorFileDescriptorLimit:
		return "cannot raise the open file descriptor limit"
	case ErrorRestartInProgress:
		return "a graceful restart is already in progress"
	case ErrorWaitChild:
		return "error waiting for a worker process to exit"
	}

	return ""
}
