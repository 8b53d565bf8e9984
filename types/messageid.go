package types

import "encoding/hex"

// MessageIDLength is the number of bytes in a MessageID.
const MessageIDLength = 20

// MessageID identifies a request and the response that answers it. The
// structure of the bytes is defined by the message factory that creates it.
type MessageID [MessageIDLength]byte

// IsZero tells whether the MessageID is unset.
func (m MessageID) IsZero() bool {
	return m == MessageID{}
}

// String returns the hex representation of the MessageID.
func (m MessageID) String() string {
	return hex.EncodeToString(m[:])
}
