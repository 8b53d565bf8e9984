package dispatcher

import (
	"fmt"

	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

var (
	// ErrInvalidArgument is returned when a required argument is missing or
	// out of range.
	ErrInvalidArgument = xerrors.New("invalid argument")

	// ErrAlreadyBound is returned by Bind when a socket is already bound.
	ErrAlreadyBound = xerrors.New("already bound")

	// ErrNotBound is returned when sending without a bound socket.
	ErrNotBound = xerrors.New("not bound")

	// ErrClosed is returned once the dispatcher is closed.
	ErrClosed = xerrors.New("dispatcher closed")

	// ErrDuplicateMessageID is returned when a request reuses the MessageID
	// of an outstanding request.
	ErrDuplicateMessageID = xerrors.New("duplicate message id")

	// ErrTimeout is the error of a request that got no response in time.
	ErrTimeout = xerrors.New("request timed out")

	// ErrReplayRejected is returned for a response whose MessageID was
	// already seen.
	ErrReplayRejected = xerrors.New("multiple responses")

	// ErrSpoofRejected is returned for a response whose MessageID was not
	// issued for the address it claims to come from.
	ErrSpoofRejected = xerrors.New("wrong message id signature")

	// ErrIllegalResponse is the error of a request answered by a node with
	// another ID than the one the request was sent to.
	ErrIllegalResponse = xerrors.New("illegal response")

	// ErrLateResponse is passed to the late response hook for responses
	// that match no outstanding request.
	ErrLateResponse = xerrors.New("late response")
)

// IOError is returned when the socket fails to send a request.
type IOError struct {
	Dest types.Contact
	Err  error
}

// Error implements error.
func (e *IOError) Error() string {
	return fmt.Sprintf("failed to send to %s: %v", e.Dest, e.Err)
}

// Unwrap returns the socket error.
func (e *IOError) Unwrap() error {
	return e.Err
}
