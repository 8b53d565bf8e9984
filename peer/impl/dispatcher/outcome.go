package dispatcher

import (
	"time"

	"go.dedis.ch/kdht/types"
)

// OutcomeKind is the terminal event of a request.
type OutcomeKind uint8

const (
	// OutcomeResponse means a matching response was received.
	OutcomeResponse OutcomeKind = iota
	// OutcomeTimeout means no response arrived before the deadline.
	OutcomeTimeout
	// OutcomeFailure means the request failed, see Outcome.Err.
	OutcomeFailure
	// OutcomeCancelled means the request was cancelled before completing.
	OutcomeCancelled
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResponse:
		return "response"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RequestEntity is the description of a sent request.
type RequestEntity struct {
	MessageID types.MessageID
	Contact   types.Contact
	Request   types.RPCMessage
}

// Outcome is delivered exactly once per request to its callback.
type Outcome struct {
	Kind    OutcomeKind
	Request RequestEntity

	// Response is set for OutcomeResponse, and for an OutcomeFailure caused
	// by a response from an unexpected node.
	Response types.RPCMessage

	// RTT is the time elapsed between the request registration and the
	// terminal event.
	RTT time.Duration

	// Err is nil for OutcomeResponse.
	Err error
}

// Callback receives the outcome of a request. It is called from the
// goroutine that observed the terminal event and must not block.
type Callback func(Outcome)
