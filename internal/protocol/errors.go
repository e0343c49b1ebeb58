package protocol

import (
	"github.com/conneroisu/scriptserv/internal/errors"
)

// errors for parsing
var (
	errIncomplete   = errors.NewProtocolError(errors.ErrCodeMalformedRequest, "stream ended before header terminator")
	errHeaderTooBig = errors.NewProtocolError(errors.ErrCodeMalformedRequest, "header block too large")
	errEmpty        = errors.NewProtocolError(errors.ErrCodeMalformedRequest, "empty request")
	errTimeout      = errors.NewProtocolError(errors.ErrCodeRequestTimeout, "timed out reading request header")
)

func malformed(message string) error {
	return errors.NewProtocolError(errors.ErrCodeMalformedRequest, message)
}

func unsupported(message string) error {
	return errors.NewProtocolError(errors.ErrCodeUnsupported, message)
}
