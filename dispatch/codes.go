package dispatch

import "github.com/nabbar/scgid/errors"

const (
	ErrorNoWorkerAvailable errors.CodeError = iota + errors.MinPkgDispatch
	ErrorHandoffTimeout
	ErrorHandoffSend
	ErrorReadinessPoll
	ErrorProtocolViolation
	ErrorPoolExhausted
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorNoWorkerAvailable)
	errors.RegisterIdFctMessage(ErrorNoWorkerAvailable, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorNoWorkerAvailable:
		return "no ready worker found in the pool"
	case ErrorHandoffTimeout:
		return "timed out waiting for a worker to become ready"
	case ErrorHandoffSend:
		return "failed to hand off accepted connection to worker"
	case ErrorReadinessPoll:
		return "failed polling worker control socket for readiness"
	case ErrorProtocolViolation:
		return "worker violated the readiness handshake protocol"
	case ErrorPoolExhausted:
		return "worker pool is at max-children and has no idle worker"
	}

	return ""
}
