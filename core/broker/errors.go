package broker

import "errors"

// ErrProtocol is logged with every request rejected with a 4xxx code.
var ErrProtocol = errors.New("broker: protocol error")
