package protocol

import "errors"

// ErrProtocol marks a fatal, connection-closing framing error (spec.md §7,
// taxonomy class 1): malformed or truncated inbound frames never produce a
// reply, they terminate the connection.
var ErrProtocol = errors.New("protocol error")

var errUnknownReplyKind = errors.New("protocol: unknown reply kind")
