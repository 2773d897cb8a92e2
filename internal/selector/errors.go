package selector

import (
	"errors"
	"fmt"
)

// ErrNoSelector is returned by a zero Any that holds no selector.
var ErrNoSelector = errors.New("selector: no selector held")

// DecodeErrorCode categorizes checkpoint decode failures.
type DecodeErrorCode string

const (
	// ErrCodeMalformed indicates the bytes are not a well-formed checkpoint.
	ErrCodeMalformed DecodeErrorCode = "MALFORMED_CHECKPOINT"

	// ErrCodeUnsupportedVersion indicates a schema version this build cannot read.
	ErrCodeUnsupportedVersion DecodeErrorCode = "UNSUPPORTED_VERSION"

	// ErrCodeKindMismatch indicates a checkpoint written by another selector kind.
	ErrCodeKindMismatch DecodeErrorCode = "KIND_MISMATCH"

	// ErrCodeDigestMismatch indicates the state does not match its digest.
	ErrCodeDigestMismatch DecodeErrorCode = "DIGEST_MISMATCH"
)

// DecodeError is returned by Deserialize when a checkpoint cannot be restored.
type DecodeError struct {
	Code    DecodeErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a checkpoint decode failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsVersionError reports whether err is an unsupported checkpoint version.
func IsVersionError(err error) bool {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Code == ErrCodeUnsupportedVersion
	}
	return false
}

func malformed(msg string, err error) *DecodeError {
	return &DecodeError{Code: ErrCodeMalformed, Message: msg, Err: err}
}
