// Package irc runs the chat server: a single goroutine that waits on a
// readiness poller, accepts and reads connections, frames and parses
// lines, dispatches commands against the chat registry and writes the
// replies back out.
//
// Nothing in this package locks. The loop goroutine owns the registry and
// every session; the only cross-goroutine entry points are Stop and the
// Prometheus instruments.
package irc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dalnet/ircserv/internal/chat"
	"github.com/dalnet/ircserv/internal/config"
	"github.com/dalnet/ircserv/internal/proto"
	"github.com/dalnet/ircserv/internal/reply"
	"github.com/dalnet/ircserv/internal/storage"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	maxEvents = 128
	readSize  = 4096
	maxReads  = 16
)

// Reasons a session is removed at the end of a wake-up.
const (
	reasonFlood = "Excess Flood"
	reasonSendQ = "SendQ exceeded"
)

// Server is the event loop and everything it owns.
type Server struct {
	cfg       *config.Config
	transport Transport
	poller    Poller
	reg       *chat.Registry
	replies   *reply.Formatter
	motd      *storage.MOTD
	metrics   *Metrics
	created   time.Time

	events  []Event
	readBuf []byte

	// batch is the first session serial accepted during the current
	// wake-up. Events for sessions at or past it belong to a handle that
	// was reused after the poller reported it.
	batch uint64
	// dirty holds sessions with queued output or a pending removal.
	dirty map[int]bool

	stop atomic.Bool
}

// NewServer wires a server to a transport and poller. A nil motd is
// treated as empty and nil metrics register with a private registry.
func NewServer(cfg *config.Config, t Transport, p Poller, motd *storage.MOTD, metrics *Metrics) *Server {
	if motd == nil {
		motd = &storage.MOTD{}
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Server{
		cfg:       cfg,
		transport: t,
		poller:    p,
		reg: chat.NewRegistry(chat.SessionOptions{
			MaxLine:    cfg.Limits.MaxLine,
			SendQ:      cfg.Limits.SendQ,
			FloodRate:  rate.Limit(cfg.Limits.FloodRate),
			FloodBurst: cfg.Limits.FloodBurst,
		}),
		replies: reply.New(cfg.Server.Name),
		motd:    motd,
		metrics: metrics,
		created: time.Now(),
		events:  make([]Event, maxEvents),
		readBuf: make([]byte, readSize),
		dirty:   make(map[int]bool),
	}
}

// Registry exposes the server's registry for inspection.
func (s *Server) Registry() *chat.Registry {
	return s.reg
}

// Run serves until ctx is cancelled, Stop is called or the poller fails.
// Sessions are closed before it returns.
func (s *Server) Run(ctx context.Context) error {
	if err := s.poller.Add(s.transport.Listener()); err != nil {
		return fmt.Errorf("failed to watch listener: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	infoLog.Printf("Server %s listening on %s", s.cfg.Server.Name, s.transport.Addr())

	var err error
	for !s.stop.Load() {
		n, werr := s.poller.Wait(s.events)
		if werr != nil {
			err = fmt.Errorf("readiness wait failed: %w", werr)
			errorLog.Println(err)
			break
		}
		s.process(s.events[:n])
	}

	s.shutdown()
	return err
}

// Stop asks Run to return after the current wake-up. It may be called
// from any goroutine.
func (s *Server) Stop() {
	s.stop.Store(true)
	if err := s.poller.Wake(); err != nil {
		warnLog.Printf("Failed to wake event loop: %v", err)
	}
}

// process handles one wake-up worth of events in the order the poller
// reported them, then writes out queued replies.
func (s *Server) process(events []Event) {
	s.batch = s.reg.NextSerial()
	for _, ev := range events {
		s.handleEvent(ev)
	}
	s.flushDirty()
	s.metrics.Sessions.Set(float64(s.reg.SessionCount()))
	s.metrics.Channels.Set(float64(s.reg.ChannelCount()))
}

func (s *Server) handleEvent(ev Event) {
	if ev.FD == s.transport.Listener() {
		s.acceptAll()
		return
	}

	sess, ok := s.lookup(ev.FD)
	if !ok {
		return
	}
	switch {
	case ev.HangUp:
		s.removeClient(sess, "closed", "Connection reset by peer")
		return
	case ev.Readable:
		s.readFrom(sess)
	}

	if ev.Writable {
		if sess, ok := s.lookup(ev.FD); ok && sess.Doomed == "" {
			if err := s.flush(sess); err != nil {
				s.doom(sess, "Write error: "+err.Error())
			}
		}
	}
}

// lookup resolves a reported handle, ignoring handles that were closed
// and handed to a new connection earlier in the same wake-up.
func (s *Server) lookup(fd int) (*chat.Session, bool) {
	sess, ok := s.reg.Session(fd)
	if !ok || sess.Serial >= s.batch {
		return nil, false
	}
	return sess, true
}

func (s *Server) acceptAll() {
	for {
		fd, host, err := s.transport.Accept()
		if errors.Is(err, ErrWouldBlock) {
			return
		}
		if err != nil {
			errorLog.Printf("Accept failed: %v", err)
			return
		}

		if _, err := s.reg.AddSession(fd, host); err != nil {
			errorLog.Printf("Cannot register connection %d from %s: %v", fd, host, err)
			s.transport.Close(fd)
			continue
		}
		if err := s.poller.Add(fd); err != nil {
			errorLog.Printf("Cannot watch connection %d from %s: %v", fd, host, err)
			s.reg.RemoveSession(fd)
			s.transport.Close(fd)
			continue
		}
		s.metrics.Accepted.Inc()
		infoLog.Printf("New client %d from %s", fd, host)
	}
}

// readFrom reads what the connection has, handling every complete line
// in arrival order after each chunk so the accumulator stays within
// max_line. At most maxReads chunks are taken per wake-up; the poller
// reports the handle again while data is left. A closed connection still
// has its buffered lines handled before it is removed.
func (s *Server) readFrom(sess *chat.Session) {
	for i := 0; i < maxReads; i++ {
		n, err := s.transport.Read(sess.ID, s.readBuf)
		if n > 0 {
			sess.In.Write(s.readBuf[:n])
			if !s.handleLines(sess) {
				return
			}
		}

		switch {
		case errors.Is(err, ErrWouldBlock):
			return
		case err != nil && !errors.Is(err, io.EOF):
			s.removeClient(sess, "error", "Read error: "+err.Error())
			return
		case err != nil || n == 0:
			if sess.Doomed != "" {
				s.removeClient(sess, removalCause(sess.Doomed), sess.Doomed)
				return
			}
			s.removeClient(sess, "closed", "Connection closed")
			return
		}
		if sess.Doomed != "" {
			return
		}
	}
}

// handleLines handles the complete lines buffered for sess. It reports
// false once sess is gone.
func (s *Server) handleLines(sess *chat.Session) bool {
	for sess.Doomed == "" {
		line, ok, err := sess.In.Next()
		if errors.Is(err, proto.ErrLineTooLong) {
			warnLog.Printf("Client %d: line longer than %d bytes dropped", sess.ID, s.cfg.Limits.MaxLine)
			s.refuse(sess, reply.ErrInputTooLong)
			continue
		}
		if !ok {
			break
		}
		s.handleLine(sess, line)
		if cur, alive := s.reg.Session(sess.ID); !alive || cur != sess {
			return false
		}
	}
	return true
}

// handleLine parses and dispatches one line. Faults are logged and never
// reach other lines or other connections.
func (s *Server) handleLine(sess *chat.Session, line string) {
	defer func() {
		if r := recover(); r != nil {
			errorLog.Printf("Client %d: panic handling line: %v", sess.ID, r)
		}
	}()

	if strings.TrimSpace(line) == "" {
		return
	}
	s.metrics.Lines.Inc()

	if sess.Limiter != nil && !sess.Limiter.Allow() {
		warnLog.Printf("Client %d (%s) is flooding", sess.ID, sess.Prefix())
		s.doom(sess, reasonFlood)
		return
	}

	msg, valid := proto.Parse(line)
	if msg.Command == proto.CmdPass {
		debugLog.Printf("<- %d PASS ***", sess.ID)
	} else {
		debugLog.Printf("<- %d %s", sess.ID, line)
	}
	s.dispatch(sess, msg, valid)
}

// dispatch applies registration gating and parse validity, runs the
// handler and completes registration once PASS, NICK and USER are in.
func (s *Server) dispatch(sess *chat.Session, msg *proto.Message, valid bool) {
	switch {
	case !sess.Registered() && !allowedUnregistered(msg.Command):
		s.refuse(sess, reply.ErrNotRegistered)
		return
	case msg.Command == proto.CmdUnknown:
		s.refuse(sess, reply.ErrUnknownCommand, msg.Name)
		return
	case !valid:
		s.refuse(sess, reply.ErrNeedMoreParams, msg.Command.String())
		return
	}

	s.metrics.Commands.WithLabelValues(msg.Command.String()).Inc()
	s.handleCommand(sess, msg)

	if cur, alive := s.reg.Session(sess.ID); alive && cur == sess && sess.TryRegister() {
		infoLog.Printf("Client %d registered as %s", sess.ID, sess.Prefix())
		s.welcome(sess)
	}
}

func allowedUnregistered(cmd proto.Command) bool {
	switch cmd {
	case proto.CmdPass, proto.CmdNick, proto.CmdUser, proto.CmdQuit:
		return true
	}
	return false
}

// send queues msg for sess.
func (s *Server) send(sess *chat.Session, msg ircmsg.Message) {
	line, err := reply.Encode(msg)
	if err != nil {
		errorLog.Printf("Failed to encode %s for client %d: %v", msg.Command, sess.ID, err)
		return
	}
	s.enqueue(sess, line)
}

func (s *Server) enqueue(sess *chat.Session, line []byte) {
	if err := sess.Enqueue(line); err != nil {
		s.doom(sess, reasonSendQ)
		return
	}
	s.dirty[sess.ID] = true
	debugLog.Printf("-> %d %s", sess.ID, strings.TrimRight(string(line), "\r\n"))
}

// sendTo encodes msg once and queues it for every session in ids except
// skip, each at most once. Handles that no longer resolve are ignored.
func (s *Server) sendTo(ids []int, skip int, msg ircmsg.Message) {
	line, err := reply.Encode(msg)
	if err != nil {
		errorLog.Printf("Failed to encode %s: %v", msg.Command, err)
		return
	}
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id == skip || seen[id] {
			continue
		}
		seen[id] = true
		if peer, ok := s.reg.Session(id); ok {
			s.enqueue(peer, line)
		}
	}
}

// sendChannel queues msg for every member of ch except skip. Pass -1 to
// include everyone.
func (s *Server) sendChannel(ch *chat.Channel, skip int, msg ircmsg.Message) {
	s.sendTo(ch.Members(), skip, msg)
}

// refuse sends an error numeric with its default text.
func (s *Server) refuse(sess *chat.Session, code string, params ...string) {
	s.metrics.Refusals.WithLabelValues(code).Inc()
	s.send(sess, s.replies.Error(code, sess.Nick, params...))
}

// numeric sends a reply numeric.
func (s *Server) numeric(sess *chat.Session, code string, params ...string) {
	s.send(sess, s.replies.Numeric(code, sess.Nick, params...))
}

func (s *Server) doom(sess *chat.Session, reason string) {
	sess.Doom(reason)
	s.dirty[sess.ID] = true
}

// flushDirty writes queued output and removes sessions marked for
// removal. Removals queue departure notices for others, so it repeats
// until nothing is left to do.
func (s *Server) flushDirty() {
	for len(s.dirty) > 0 {
		ids := make([]int, 0, len(s.dirty))
		for id := range s.dirty {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		s.dirty = make(map[int]bool)

		var doomed []*chat.Session
		for _, id := range ids {
			sess, ok := s.reg.Session(id)
			if !ok {
				continue
			}
			if sess.Doomed == "" {
				if err := s.flush(sess); err != nil {
					sess.Doom("Write error: " + err.Error())
				}
			}
			if sess.Doomed != "" {
				doomed = append(doomed, sess)
			}
		}
		for _, sess := range doomed {
			s.removeClient(sess, removalCause(sess.Doomed), sess.Doomed)
		}
	}
}

func removalCause(reason string) string {
	switch reason {
	case reasonFlood:
		return "flood"
	case reasonSendQ:
		return "sendq"
	}
	return "error"
}

// flush writes as much queued output as the connection takes and keeps
// write interest on the poller only while output remains.
func (s *Server) flush(sess *chat.Session) error {
	for len(sess.Pending()) > 0 {
		n, err := s.transport.Write(sess.ID, sess.Pending())
		if n > 0 {
			sess.Consume(n)
		}
		if errors.Is(err, ErrWouldBlock) {
			break
		}
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}

	want := len(sess.Pending()) > 0
	if want != sess.WriteWatched {
		if err := s.poller.Watch(sess.ID, want); err != nil {
			return fmt.Errorf("failed to update write interest: %w", err)
		}
		sess.WriteWatched = want
	}
	return nil
}

// removeClient tears a session down: channel membership first (with a
// QUIT to everyone who shared a channel), then the poller registration,
// then the connection, and finally the registry entry.
func (s *Server) removeClient(sess *chat.Session, cause, reason string) {
	if cur, ok := s.reg.Session(sess.ID); !ok || cur != sess {
		return
	}

	var peers []int
	for _, ch := range s.reg.LeaveAll(sess.ID) {
		peers = append(peers, ch.Members()...)
	}
	if len(peers) > 0 && sess.Registered() {
		s.sendTo(peers, sess.ID, reply.Relay(sess.Prefix(), "QUIT", reason))
	}

	if sess.Doomed != reasonSendQ {
		s.send(sess, reply.Fatal(fmt.Sprintf("Closing Link: %s (%s)", sess.Host, reason)))
		s.lastFlush(sess)
	}

	s.release(sess.ID)
	s.reg.RemoveSession(sess.ID)
	delete(s.dirty, sess.ID)

	s.metrics.Removals.WithLabelValues(cause).Inc()
	infoLog.Printf("Removed client %d (%s): %s", sess.ID, sess.Prefix(), reason)
}

// lastFlush writes what it can before a connection is closed.
func (s *Server) lastFlush(sess *chat.Session) {
	if err := s.flush(sess); err != nil {
		warnLog.Printf("Failed to flush client %d: %v", sess.ID, err)
	}
}

// release drops a connection from the poller, then closes it.
func (s *Server) release(id int) {
	if err := s.poller.Remove(id); err != nil {
		warnLog.Printf("Failed to unwatch client %d: %v", id, err)
	}
	if err := s.transport.Close(id); err != nil {
		warnLog.Printf("Failed to close client %d: %v", id, err)
	}
}

// shutdown closes every session and releases the poller and listener.
func (s *Server) shutdown() {
	infoLog.Printf("Shutting down, closing %d sessions", s.reg.SessionCount())

	for _, sess := range s.reg.Sessions() {
		s.send(sess, reply.Fatal("Server shutting down"))
		s.lastFlush(sess)
		s.reg.LeaveAll(sess.ID)
		s.release(sess.ID)
		s.reg.RemoveSession(sess.ID)
		s.metrics.Removals.WithLabelValues("shutdown").Inc()
	}
	s.dirty = make(map[int]bool)

	if err := s.poller.Remove(s.transport.Listener()); err != nil {
		warnLog.Printf("Failed to unwatch listener: %v", err)
	}
	if err := s.poller.Close(); err != nil {
		warnLog.Printf("Failed to close poller: %v", err)
	}
	if err := s.transport.Shutdown(); err != nil {
		warnLog.Printf("Failed to close listener: %v", err)
	}
	s.metrics.Sessions.Set(0)
	s.metrics.Channels.Set(0)
}
