package irc

import "errors"

// ErrWouldBlock is returned by non-blocking transport calls that cannot
// make progress right now. It is not a failure.
var ErrWouldBlock = errors.New("operation would block")

// Transport is the raw connection layer the event loop drives. Every call
// is non-blocking. Connections are identified by small integer handles
// that stay valid until Close.
type Transport interface {
	// Listener returns the handle that becomes readable when connections
	// are waiting to be accepted.
	Listener() int
	// Addr describes the listening address for logs.
	Addr() string
	// Accept returns the next pending connection and its remote host, or
	// ErrWouldBlock when none is pending.
	Accept() (fd int, host string, err error)
	// Read returns available bytes, ErrWouldBlock when there are none and
	// io.EOF once the peer has closed the connection.
	Read(fd int, p []byte) (int, error)
	// Write writes as much of p as possible. A short write comes back with
	// ErrWouldBlock.
	Write(fd int, p []byte) (int, error)
	Close(fd int) error
	// Shutdown releases the listener.
	Shutdown() error
}

// Event is one readiness notification.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	// HangUp is set for both hang-up and error conditions.
	HangUp bool
}

// Poller is the readiness multiplexer. Handles are watched for reads from
// Add until Remove; write interest is toggled with Watch.
type Poller interface {
	Add(fd int) error
	Watch(fd int, write bool) error
	Remove(fd int) error
	// Wait blocks until at least one handle is ready or Wake is called,
	// fills events and returns how many were filled. An interrupted wait
	// returns zero events and no error.
	Wait(events []Event) (int, error)
	// Wake interrupts a blocked Wait. It is safe to call from any
	// goroutine.
	Wake() error
	Close() error
}
