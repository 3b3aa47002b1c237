package merchant

import (
	"errors"
	"fmt"
)

// Protocol error codes. The processor matches on these numerically, so
// they are part of the wire contract.
const (
	CodeParseError          = -32700
	CodeMethodNotFound      = -32601
	CodeUnauthorized        = -32504
	CodeInternal            = -32400
	CodeInvalidAmount       = -31001
	CodeTransactionNotFound = -31003
	CodeOperationNotAllowed = -31008
	CodeOrderNotFound       = -31050
)

// Error is a protocol-visible failure with a fixed numeric code. The
// message is static per code; internal detail never travels in it.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

var (
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "Authorization invalid"}
	ErrOrderNotFound       = &Error{Code: CodeOrderNotFound, Message: "Order not found"}
	ErrInvalidAmount       = &Error{Code: CodeInvalidAmount, Message: "Invalid amount"}
	ErrTransactionNotFound = &Error{Code: CodeTransactionNotFound, Message: "Transaction not found"}
	ErrOperationNotAllowed = &Error{Code: CodeOperationNotAllowed, Message: "Can't perform operation"}
	ErrMethodNotFound      = &Error{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrParse               = &Error{Code: CodeParseError, Message: "Parse error"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "Internal error"}
)

// AsProtocolError extracts the protocol error from err, falling back to
// ErrInternal so store failures never leak their text to the processor.
func AsProtocolError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return ErrInternal
}
