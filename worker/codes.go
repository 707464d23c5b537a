package worker

import "github.com/nabbar/scgid/errors"

const (
	ErrorControlSocketMissing errors.CodeError = iota + errors.MinPkgWorker
	ErrorReadyTokenWrite
	ErrorAcceptedSocketInvalid
	ErrorHandlerPanic
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorControlSocketMissing)
	errors.RegisterIdFctMessage(ErrorControlSocketMissing, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorControlSocketMissing:
		return "worker was started without an inherited control socket"
	case ErrorReadyTokenWrite:
		return "cannot write readiness token on control socket"
	case ErrorAcceptedSocketInvalid:
		return "descriptor received from parent is not a usable connection"
	case ErrorHandlerPanic:
		return "request handler panicked while serving a connection"
	}

	return ""
}
