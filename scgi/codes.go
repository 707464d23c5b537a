package scgi

import "github.com/nabbar/scgid/errors"

const (
	ErrorNetstringSize errors.CodeError = iota + errors.MinPkgSCGI
	ErrorNetstringRead
	ErrorNetstringDelim
	ErrorHeaderMalformed
	ErrorHeaderOddFields
	ErrorContentLengthMissing
	ErrorContentLengthInvalid
	ErrorBodyRead
	ErrorResponseWrite
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(ErrorNetstringSize)
	errors.RegisterIdFctMessage(ErrorNetstringSize, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case errors.UnknownError:
		return ""
	case ErrorNetstringSize:
		return "netstring length prefix is missing or not numeric"
	case ErrorNetstringRead:
		return "cannot read netstring payload from connection"
	case ErrorNetstringDelim:
		return "netstring payload is not terminated by a comma"
	case ErrorHeaderMalformed:
		return "request header block is not null-terminated"
	case ErrorHeaderOddFields:
		return "request header contains an odd number of null-delimited fields"
	case ErrorContentLengthMissing:
		return "request header is missing the CONTENT_LENGTH field"
	case ErrorContentLengthInvalid:
		return "request header CONTENT_LENGTH field is not a valid length"
	case ErrorBodyRead:
		return "cannot read request body from connection"
	case ErrorResponseWrite:
		return "cannot write response to connection"
	}

	return ""
}
