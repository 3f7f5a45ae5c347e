// Package wire implements the text record format spoken between chat clients
// and the server. A record is "<type> <payloadLength> <source> <data>" followed
// by a single NUL byte.
package wire

import (
	"fmt"
	"strconv"
)

// Type is the control tag of a record. The ordinal values are part of the wire
// format and must not be reordered.
type Type uint8

const (
	Login Type = iota
	LoginAck
	LoginNak
	Exit
	Join
	JoinAck
	JoinNak
	LeaveSession
	LeaveAck
	LeaveNak
	NewSession
	NewSessionAck
	NewSessionNak
	Message
	Query
	QueryAck
	DirectMessage
	DirectMessageAck
	DirectMessageNak
)

var typeNames = [...]string{
	Login:            "LOGIN",
	LoginAck:         "LO_ACK",
	LoginNak:         "LO_NAK",
	Exit:             "EXIT",
	Join:             "JOIN",
	JoinAck:          "JN_ACK",
	JoinNak:          "JN_NAK",
	LeaveSession:     "LEAVE_SESS",
	LeaveAck:         "LS_ACK",
	LeaveNak:         "LS_NAK",
	NewSession:       "NEW_SESS",
	NewSessionAck:    "NS_ACK",
	NewSessionNak:    "NS_NAK",
	Message:          "MESSAGE",
	Query:            "QUERY",
	QueryAck:         "QU_ACK",
	DirectMessage:    "DIRMESSAGE",
	DirectMessageAck: "DMESS_ACK",
	DirectMessageNak: "DMESS_NAK",
}

// String returns the protocol name of the type, e.g. "JN_ACK".
func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}

	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of the enumerated record types.
func (t Type) Valid() bool {
	return int(t) < len(typeNames)
}

// ParseType converts the decimal type token of a record into a Type.
//
// Parameters:
//   - token: The first field of a record
//
// Returns:
//   - The Type, or an error wrapping ErrMalformedPacket if the token is not a
//     known ordinal
func ParseType(token string) (Type, error) {
	n, err := strconv.ParseUint(token, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: type %q is not a number", ErrMalformedPacket, token)
	}

	t := Type(n)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: unknown type %d", ErrMalformedPacket, n)
	}

	return t, nil
}
