package admin

import "github.com/nabbar/scgid/errors"

const (
	ErrorListen errors.CodeError = iota + errors.MinPkgAdmin
	ErrorWorkerNotFound
	ErrorProcessStat
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
		return "cannot bind the administrative http listener"
	case ErrorWorkerNotFound:
		return "no worker with the given pid is known to the pool"
	case ErrorProcessStat:
		return "cannot read process statistics for a worker"
	}

	return ""
}
