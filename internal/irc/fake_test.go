package irc

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/dalnet/ircserv/internal/config"
	"github.com/dalnet/ircserv/internal/storage"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const listenerFD = 3

var errClosed = errors.New("use of closed connection")

// fakeConn is the client side of an in-memory connection.
type fakeConn struct {
	host   string
	in     []byte
	out    []byte
	eof    bool
	closed bool

	// writeErr fails every write when set
	writeErr error

	// accept limits how many bytes the next writes take in total; -1 means
	// unlimited.
	accept int
}

// fakeNet is an in-memory Transport. Handles are handed out at accept
// time like a kernel would: the lowest free number first.
type fakeNet struct {
	backlog  []*fakeConn
	conns    map[int]*fakeConn
	accepted []int
	shutdown bool
	ops      *[]string
}

func newFakeNet(ops *[]string) *fakeNet {
	return &fakeNet{conns: make(map[int]*fakeConn), ops: ops}
}

// dial queues a connection from host for the next accept, optionally
// with lines the client has already sent.
func (f *fakeNet) dial(host string, lines ...string) {
	c := &fakeConn{host: host, accept: -1}
	for _, line := range lines {
		c.in = append(c.in, line+"\r\n"...)
	}
	f.backlog = append(f.backlog, c)
}

func (f *fakeNet) Listener() int { return listenerFD }

func (f *fakeNet) Addr() string { return "fake:6667" }

func (f *fakeNet) Accept() (int, string, error) {
	if len(f.backlog) == 0 {
		return -1, "", ErrWouldBlock
	}
	c := f.backlog[0]
	f.backlog = f.backlog[1:]

	fd := listenerFD + 1
	for {
		if old, ok := f.conns[fd]; !ok || old.closed {
			break
		}
		fd++
	}
	f.conns[fd] = c
	f.accepted = append(f.accepted, fd)
	return fd, c.host, nil
}

func (f *fakeNet) Read(fd int, p []byte) (int, error) {
	c, ok := f.conns[fd]
	if !ok || c.closed {
		return 0, errClosed
	}
	if len(c.in) > 0 {
		n := copy(p, c.in)
		c.in = c.in[n:]
		return n, nil
	}
	if c.eof {
		return 0, io.EOF
	}
	return 0, ErrWouldBlock
}

func (f *fakeNet) Write(fd int, p []byte) (int, error) {
	c, ok := f.conns[fd]
	if !ok || c.closed {
		return 0, errClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	n := len(p)
	if c.accept >= 0 && n > c.accept {
		n = c.accept
	}
	c.out = append(c.out, p[:n]...)
	if c.accept >= 0 {
		c.accept -= n
	}
	if n < len(p) {
		return n, ErrWouldBlock
	}
	return n, nil
}

func (f *fakeNet) Close(fd int) error {
	c, ok := f.conns[fd]
	if !ok || c.closed {
		return errClosed
	}
	c.closed = true
	*f.ops = append(*f.ops, fmt.Sprintf("close %d", fd))
	return nil
}

func (f *fakeNet) Shutdown() error {
	f.shutdown = true
	return nil
}

// fakePoller records registrations. Wait returns scripted batches and
// otherwise blocks until Wake.
type fakePoller struct {
	ops       *[]string
	onIdle    func()
	watched   map[int]bool
	writers   map[int]bool
	batches   [][]Event
	waitErr   error
	removeErr error
	wake      chan struct{}
	closed    bool
}

func newFakePoller(ops *[]string) *fakePoller {
	return &fakePoller{
		ops:     ops,
		watched: make(map[int]bool),
		writers: make(map[int]bool),
		wake:    make(chan struct{}, 1),
	}
}

func (p *fakePoller) Add(fd int) error {
	if p.watched[fd] {
		return errors.New("already watched")
	}
	p.watched[fd] = true
	return nil
}

func (p *fakePoller) Watch(fd int, write bool) error {
	if !p.watched[fd] {
		return errors.New("not watched")
	}
	p.writers[fd] = write
	return nil
}

func (p *fakePoller) Remove(fd int) error {
	if p.watched[fd] {
		*p.ops = append(*p.ops, fmt.Sprintf("unwatch %d", fd))
	}
	delete(p.watched, fd)
	delete(p.writers, fd)
	return p.removeErr
}

func (p *fakePoller) Wait(events []Event) (int, error) {
	if len(p.batches) > 0 {
		batch := p.batches[0]
		p.batches = p.batches[1:]
		return copy(events, batch), nil
	}
	if p.waitErr != nil {
		return 0, p.waitErr
	}
	if p.onIdle != nil {
		p.onIdle()
	}
	<-p.wake
	return 0, nil
}

func (p *fakePoller) Wake() error {
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

// harness drives a Server over the fakes one wake-up at a time.
type harness struct {
	t    *testing.T
	srv  *Server
	net  *fakeNet
	poll *fakePoller
	reg  *prometheus.Registry
	ops  []string
}

func newHarness(t *testing.T, tweak ...func(*config.Config)) *harness {
	t.Helper()
	SetLogOutput(io.Discard, false)

	cfg := config.Default()
	cfg.Server.Name = "irc.test"
	cfg.Server.Network = "TestNet"
	cfg.Server.Password = "secret"
	for _, fn := range tweak {
		fn(cfg)
	}
	require.NoError(t, cfg.Validate())

	h := &harness{t: t, reg: prometheus.NewRegistry()}
	h.net = newFakeNet(&h.ops)
	h.poll = newFakePoller(&h.ops)
	motd := &storage.MOTD{Lines: []string{"Be nice."}}
	h.srv = NewServer(cfg, h.net, h.poll, motd, NewMetrics(h.reg))
	return h
}

// connect accepts a new connection and returns its handle.
func (h *harness) connect() int {
	h.net.dial("10.0.0.1")
	h.srv.process([]Event{{FD: listenerFD, Readable: true}})
	return h.net.accepted[len(h.net.accepted)-1]
}

// write delivers client lines and runs one wake-up for them.
func (h *harness) write(fd int, lines ...string) {
	h.writeRaw(fd, strings.Join(lines, "\r\n")+"\r\n")
}

func (h *harness) writeRaw(fd int, data string) {
	c := h.net.conns[fd]
	c.in = append(c.in, data...)
	h.srv.process([]Event{{FD: fd, Readable: true}})
}

// hangup makes the client close its side and runs one wake-up.
func (h *harness) hangup(fd int) {
	h.net.conns[fd].eof = true
	h.srv.process([]Event{{FD: fd, Readable: true}})
}

// read returns and clears everything the server wrote to fd.
func (h *harness) read(fd int) []ircmsg.Message {
	h.t.Helper()
	c := h.net.conns[fd]
	text := string(c.out)
	c.out = nil

	var msgs []ircmsg.Message
	for _, line := range strings.Split(text, "\r\n") {
		if line == "" {
			continue
		}
		msg, err := ircmsg.ParseLine(line)
		require.NoError(h.t, err, line)
		msgs = append(msgs, msg)
	}
	return msgs
}

// register connects and completes registration as nick.
func (h *harness) register(nick string) int {
	h.t.Helper()
	fd := h.connect()
	h.write(fd, "PASS secret", "NICK "+nick, "USER "+nick+" 0 * :Real "+nick)
	require.Contains(h.t, commands(h.read(fd)), "001", "%s did not register", nick)
	return fd
}

func commands(msgs []ircmsg.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Command
	}
	return out
}

// find returns the first message with the given command.
func find(t *testing.T, msgs []ircmsg.Message, command string) ircmsg.Message {
	t.Helper()
	for _, m := range msgs {
		if m.Command == command {
			return m
		}
	}
	require.Failf(t, "message not found", "no %s in %v", command, commands(msgs))
	return ircmsg.Message{}
}
