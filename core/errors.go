package core

import (
	"fmt"
)

type ErrorKind uint8

const (
	Unauthorized ErrorKind = iota + 1
	PhaseMismatch
	AlreadyRegistered
	AlreadyVoted
	EmptyProposal
	NotFound
)

// errorCodeBase keeps session error codes clear of the JSON-RPC reserved range.
const errorCodeBase = 3000

var errorKindNames = map[ErrorKind]string{
	Unauthorized:      "unauthorized",
	PhaseMismatch:     "phase mismatch",
	AlreadyRegistered: "already registered",
	AlreadyVoted:      "already voted",
	EmptyProposal:     "empty proposal",
	NotFound:          "not found",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Error is returned by every rejected session operation. Two errors are
// equal under errors.Is when their kinds match, whatever the reason.
type Error struct {
	Kind   ErrorKind
	Reason string
}

var (
	ErrUnauthorized      = &Error{Kind: Unauthorized, Reason: Unauthorized.String()}
	ErrPhaseMismatch     = &Error{Kind: PhaseMismatch, Reason: PhaseMismatch.String()}
	ErrAlreadyRegistered = &Error{Kind: AlreadyRegistered, Reason: AlreadyRegistered.String()}
	ErrAlreadyVoted      = &Error{Kind: AlreadyVoted, Reason: AlreadyVoted.String()}
	ErrEmptyProposal     = &Error{Kind: EmptyProposal, Reason: EmptyProposal.String()}
	ErrNotFound          = &Error{Kind: NotFound, Reason: NotFound.String()}
)

func newError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func (e *Error) Error() string {
	return e.Reason
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ErrorCode implements the go-ethereum rpc.Error interface.
func (e *Error) ErrorCode() int {
	return errorCodeBase + int(e.Kind)
}

// ErrorData implements the go-ethereum rpc.DataError interface.
func (e *Error) ErrorData() interface{} {
	return e.Kind.String()
}

// ErrorFromCode rebuilds a session error from a JSON-RPC error code.
// ok is false when code does not belong to a session error.
func ErrorFromCode(code int, reason string) (*Error, bool) {
	if code <= errorCodeBase || code > errorCodeBase+int(NotFound) {
		return nil, false
	}
	return newError(ErrorKind(code-errorCodeBase), reason), true
}
