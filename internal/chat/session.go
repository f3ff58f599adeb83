package chat

import (
	"errors"
	"time"

	"github.com/dalnet/ircserv/internal/proto"
	"golang.org/x/time/rate"
)

// ErrSendQExceeded is returned by Session.Enqueue when the outbound queue
// would grow past its limit.
var ErrSendQExceeded = errors.New("sendq exceeded")

// Session is the state of one client connection. Sessions are owned by
// the Registry; everything else refers to them by ID.
type Session struct {
	// ID is the connection handle. It stays the same for the lifetime of
	// the connection.
	ID int
	// Serial orders sessions by accept time and is never reused, unlike ID.
	Serial uint64

	Host     string
	Nick     string
	User     string
	RealName string
	Created  time.Time

	passOK     bool
	registered bool

	// In accumulates received bytes until a full line is available.
	In *proto.LineBuffer

	out          []byte
	sendQ        int
	WriteWatched bool

	// Limiter throttles inbound lines. Nil means unlimited.
	Limiter *rate.Limiter

	// Doomed holds the reason the session must be removed at the next
	// safe point; empty while the session is healthy.
	Doomed string
}

// Registered reports whether PASS, NICK and USER have all been accepted.
func (s *Session) Registered() bool {
	return s.registered
}

// PasswordAccepted reports whether the client sent the right server
// password.
func (s *Session) PasswordAccepted() bool {
	return s.passOK
}

// AcceptPassword records a correct PASS.
func (s *Session) AcceptPassword() {
	s.passOK = true
}

// TryRegister moves the session to the registered state once all three
// registration inputs are present. It reports whether this call made the
// transition.
func (s *Session) TryRegister() bool {
	if s.registered || !s.passOK || s.Nick == "" || s.User == "" {
		return false
	}
	s.registered = true
	return true
}

// Prefix returns the nick!user@host source used on relayed messages.
func (s *Session) Prefix() string {
	nick := s.Nick
	if nick == "" {
		nick = "*"
	}
	user := s.User
	if user == "" {
		user = "*"
	}
	return nick + "!" + user + "@" + s.Host
}

// Enqueue appends an encoded line to the outbound queue.
func (s *Session) Enqueue(line []byte) error {
	if s.sendQ > 0 && len(s.out)+len(line) > s.sendQ {
		return ErrSendQExceeded
	}
	s.out = append(s.out, line...)
	return nil
}

// Pending returns the bytes waiting to be written.
func (s *Session) Pending() []byte {
	return s.out
}

// Consume drops the first n pending bytes after a successful write.
func (s *Session) Consume(n int) {
	if n >= len(s.out) {
		s.out = s.out[:0]
		return
	}
	m := copy(s.out, s.out[n:])
	s.out = s.out[:m]
}

// Doom marks the session for removal. The first reason wins.
func (s *Session) Doom(reason string) {
	if s.Doomed == "" {
		s.Doomed = reason
	}
}
