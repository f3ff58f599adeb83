// Package chat holds the server's data model: sessions, channels and the
// registry that owns both.
//
// Channels never point at sessions directly. They store connection IDs and
// every lookup goes back through the Registry, so a session that has been
// removed simply stops resolving.
package chat

import (
	"errors"
	"sort"
	"time"

	"github.com/dalnet/ircserv/internal/proto"
	"golang.org/x/time/rate"
)

// Refusals reported to the dispatcher. None of them end the connection.
var (
	ErrNoSuchChannel    = errors.New("no such channel")
	ErrNotOnChannel     = errors.New("not on channel")
	ErrAlreadyOnChannel = errors.New("already on channel")
	ErrUserOnChannel    = errors.New("user already on channel")
	ErrNotOperator      = errors.New("not a channel operator")
	ErrInviteOnly       = errors.New("channel is invite only")
	ErrBadKey           = errors.New("bad channel key")
	ErrChannelFull      = errors.New("channel is full")
	ErrBadLimit         = errors.New("invalid channel limit")
	ErrNickInUse        = errors.New("nickname in use")
	ErrHandleInUse      = errors.New("connection handle already registered")
)

// Fold returns the lookup key for a nickname or channel name. Only
// 'A'-'Z' fold; every other byte, valid UTF-8 or not, is kept as is.
func Fold(name string) string {
	for i := 0; i < len(name); i++ {
		if c := name[i]; c >= 'A' && c <= 'Z' {
			return foldFrom(name, i)
		}
	}
	return name
}

func foldFrom(name string, i int) string {
	b := []byte(name)
	for ; i < len(b); i++ {
		if c := b[i]; c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// SessionOptions configures sessions created by the Registry.
type SessionOptions struct {
	MaxLine    int
	SendQ      int
	FloodRate  rate.Limit
	FloodBurst int
}

// Registry owns every live session and channel.
type Registry struct {
	sessions map[int]*Session
	nicks    map[string]int
	channels map[string]*Channel
	opts     SessionOptions
	serial   uint64
}

// NewRegistry returns an empty registry.
func NewRegistry(opts SessionOptions) *Registry {
	return &Registry{
		sessions: make(map[int]*Session),
		nicks:    make(map[string]int),
		channels: make(map[string]*Channel),
		opts:     opts,
	}
}

// AddSession registers a freshly accepted connection.
func (r *Registry) AddSession(id int, host string) (*Session, error) {
	if _, ok := r.sessions[id]; ok {
		return nil, ErrHandleInUse
	}
	r.serial++
	s := &Session{
		ID:      id,
		Serial:  r.serial,
		Host:    host,
		Created: time.Now(),
		In:      proto.NewLineBuffer(r.opts.MaxLine),
		sendQ:   r.opts.SendQ,
	}
	if r.opts.FloodRate > 0 {
		s.Limiter = rate.NewLimiter(r.opts.FloodRate, r.opts.FloodBurst)
	}
	r.sessions[id] = s
	return s, nil
}

// NextSerial is the serial the next accepted session will get.
func (r *Registry) NextSerial() uint64 {
	return r.serial + 1
}

// Session resolves a connection handle.
func (r *Registry) Session(id int) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// SessionByNick resolves a nickname.
func (r *Registry) SessionByNick(nick string) (*Session, bool) {
	id, ok := r.nicks[Fold(nick)]
	if !ok {
		return nil, false
	}
	return r.Session(id)
}

// Sessions returns every live session ordered by handle.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	return len(r.sessions)
}

// SetNick changes the nickname of s, keeping nicknames unique.
func (r *Registry) SetNick(s *Session, nick string) error {
	key := Fold(nick)
	if owner, ok := r.nicks[key]; ok && owner != s.ID {
		return ErrNickInUse
	}
	if s.Nick != "" {
		delete(r.nicks, Fold(s.Nick))
	}
	s.Nick = nick
	r.nicks[key] = s.ID
	return nil
}

// RemoveSession erases a session and its nickname. Callers must have
// taken it out of every channel first with LeaveAll.
func (r *Registry) RemoveSession(id int) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	if s.Nick != "" && r.nicks[Fold(s.Nick)] == id {
		delete(r.nicks, Fold(s.Nick))
	}
	delete(r.sessions, id)
}

// Channel resolves a channel name.
func (r *Registry) Channel(name string) (*Channel, bool) {
	ch, ok := r.channels[Fold(name)]
	return ch, ok
}

// Channels returns every channel ordered by name.
func (r *Registry) Channels() []*Channel {
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return Fold(out[i].Name) < Fold(out[j].Name) })
	return out
}

// ChannelCount returns the number of live channels.
func (r *Registry) ChannelCount() int {
	return len(r.channels)
}

// ChannelsOf returns the channels id is a member of, ordered by name.
func (r *Registry) ChannelsOf(id int) []*Channel {
	var out []*Channel
	for _, ch := range r.Channels() {
		if ch.IsMember(id) {
			out = append(out, ch)
		}
	}
	return out
}

// Join puts id into the named channel, creating it with id as operator
// when it does not exist yet.
func (r *Registry) Join(id int, name, key string) (ch *Channel, created bool, err error) {
	if ch, ok := r.Channel(name); ok {
		return ch, false, ch.Join(id, key)
	}
	ch = NewChannel(name, id)
	r.channels[Fold(name)] = ch
	return ch, true, nil
}

// Part removes id from the named channel and deletes the channel once it
// is empty.
func (r *Registry) Part(id int, name string) (ch *Channel, deleted bool, err error) {
	ch, ok := r.Channel(name)
	if !ok {
		return nil, false, ErrNoSuchChannel
	}
	if !ch.RemoveUser(id) {
		return ch, false, ErrNotOnChannel
	}
	return ch, r.DropIfEmpty(ch), nil
}

// DropIfEmpty deletes ch once its last member is gone and reports whether
// it did.
func (r *Registry) DropIfEmpty(ch *Channel) bool {
	if !ch.Empty() {
		return false
	}
	if r.channels[Fold(ch.Name)] == ch {
		delete(r.channels, Fold(ch.Name))
	}
	return true
}

// LeaveAll takes id out of every channel, deleting the ones it leaves
// empty and dropping any invitations it held. It returns the channels id
// was a member of that still have members.
func (r *Registry) LeaveAll(id int) []*Channel {
	var remaining []*Channel
	for _, ch := range r.Channels() {
		if !ch.RemoveUser(id) || r.DropIfEmpty(ch) {
			continue
		}
		remaining = append(remaining, ch)
	}
	return remaining
}

// Peers returns the distinct sessions sharing at least one channel with
// id, excluding id itself, ordered by handle.
func (r *Registry) Peers(id int) []*Session {
	seen := make(map[int]bool)
	var out []*Session
	for _, ch := range r.ChannelsOf(id) {
		for _, m := range ch.Members() {
			if m == id || seen[m] {
				continue
			}
			seen[m] = true
			if s, ok := r.Session(m); ok {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
