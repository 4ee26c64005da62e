package proto

import "errors"

// ErrProtocol marks a malformed frame: bad signature, bad context code, or a
// field that is not valid UTF-8. It is fatal to the session that produced it.
var ErrProtocol = errors.New("protocol error")
