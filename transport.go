package logward

import (
	"context"
)

// Transport is a sink for log entries. Implementations must not panic
// across the Log boundary; delivery failures are handled internally.
type Transport interface {
	Log(entry Entry)
}

// Closer is implemented by transports that hold resources (sockets,
// files, pending queues). Close returns once teardown completes or the
// context expires.
type Closer interface {
	Close(ctx context.Context) error
}
