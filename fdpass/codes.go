package fdpass

import "github.com/nabbar/scgid/errors"

const (
	ErrorParamsEmpty errors.CodeError = iota + errors.MinPkgFDPass
	ErrorNoControlMessage
	ErrorNoRightsInMessage
	ErrorSend
	ErrorReceive
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorParamsEmpty)
	errors.RegisterIdFctMessage(ErrorParamsEmpty, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorParamsEmpty:
		return "given channel or descriptor is empty"
	case ErrorNoControlMessage:
		return "no ancillary control message received on channel"
	case ErrorNoRightsInMessage:
		return "ancillary control message carries no file descriptor rights"
	case ErrorSend:
		return "cannot send descriptor rights over channel"
	case ErrorReceive:
		return "cannot receive descriptor rights from channel"
	}

	return ""
}
