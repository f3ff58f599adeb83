package irc

import (
	"errors"
	"strconv"
	"strings"

	"github.com/dalnet/ircserv/internal/chat"
	"github.com/dalnet/ircserv/internal/proto"
	"github.com/dalnet/ircserv/internal/reply"
)

// namesWidth bounds the nick list carried by one 353 line so the line
// stays under the protocol limit.
const namesWidth = 400

// refuseChannel maps a membership refusal to its numeric.
func (s *Server) refuseChannel(sess *chat.Session, channel string, err error) {
	switch {
	case errors.Is(err, chat.ErrNoSuchChannel):
		s.refuse(sess, reply.ErrNoSuchChannel, channel)
	case errors.Is(err, chat.ErrNotOnChannel):
		s.refuse(sess, reply.ErrNotOnChannel, channel)
	case errors.Is(err, chat.ErrNotOperator):
		s.refuse(sess, reply.ErrChanOPrivsNeeded, channel)
	case errors.Is(err, chat.ErrInviteOnly):
		s.refuse(sess, reply.ErrInviteOnlyChan, channel)
	case errors.Is(err, chat.ErrBadKey):
		s.refuse(sess, reply.ErrBadChannelKey, channel)
	case errors.Is(err, chat.ErrChannelFull):
		s.refuse(sess, reply.ErrChannelIsFull, channel)
	case errors.Is(err, chat.ErrAlreadyOnChannel):
	default:
		errorLog.Printf("Client %d: unexpected refusal on %s: %v", sess.ID, channel, err)
	}
}

func (s *Server) validChannel(name string) bool {
	if len(name) < 2 || !proto.IsChannel(name) || len(name) > s.cfg.Limits.ChannelLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c <= ' ' || c == ',' || c == ':' || c == 0x7f {
			return false
		}
	}
	return true
}

// cmdJoin joins each listed channel, pairing keys with channels by
// position. "JOIN 0" leaves every channel.
func (s *Server) cmdJoin(sess *chat.Session, msg *proto.Message) {
	if len(msg.Channels) == 0 {
		switch {
		case len(msg.Passwords) == 1 && msg.Passwords[0] == "0":
			s.partAll(sess)
		case len(msg.Passwords) > 0:
			s.refuse(sess, reply.ErrNoSuchChannel, msg.Passwords[0])
		default:
			s.refuse(sess, reply.ErrNeedMoreParams, "JOIN")
		}
		return
	}

	for i, name := range msg.Channels {
		var key string
		if i < len(msg.Passwords) {
			key = msg.Passwords[i]
		}
		s.join(sess, name, key)
	}
}

func (s *Server) join(sess *chat.Session, name, key string) {
	if !s.validChannel(name) {
		s.refuse(sess, reply.ErrBadChanMask, name)
		return
	}
	if ch, ok := s.reg.Channel(name); ok && ch.IsMember(sess.ID) {
		return
	}
	if limit := s.cfg.Limits.MaxChannels; limit > 0 && len(s.reg.ChannelsOf(sess.ID)) >= limit {
		s.refuse(sess, reply.ErrTooManyChannels, name)
		return
	}

	ch, created, err := s.reg.Join(sess.ID, name, key)
	if err != nil {
		s.refuseChannel(sess, name, err)
		return
	}
	if created {
		debugLog.Printf("Channel %s created by %s", ch.Name, sess.Nick)
	}

	s.sendChannel(ch, -1, reply.Relay(sess.Prefix(), "JOIN", ch.Name))
	s.sendTopic(sess, ch, false)
	s.sendNames(sess, ch)
}

func (s *Server) partAll(sess *chat.Session) {
	for _, ch := range s.reg.ChannelsOf(sess.ID) {
		s.sendChannel(ch, -1, reply.Relay(sess.Prefix(), "PART", ch.Name, "Left all channels"))
		s.reg.Part(sess.ID, ch.Name)
	}
}

func (s *Server) cmdPart(sess *chat.Session, msg *proto.Message) {
	if len(msg.Channels) == 0 {
		if len(msg.Users) > 0 {
			s.refuse(sess, reply.ErrNoSuchChannel, msg.Users[0])
			return
		}
		s.refuse(sess, reply.ErrNeedMoreParams, "PART")
		return
	}

	for _, name := range msg.Channels {
		ch, ok := s.reg.Channel(name)
		if !ok {
			s.refuse(sess, reply.ErrNoSuchChannel, name)
			continue
		}
		if !ch.IsMember(sess.ID) {
			s.refuse(sess, reply.ErrNotOnChannel, ch.Name)
			continue
		}

		params := []string{ch.Name}
		if msg.HasTrailing && msg.Trailing != "" {
			params = append(params, msg.Trailing)
		}
		s.sendChannel(ch, -1, reply.Relay(sess.Prefix(), "PART", params...))
		if _, deleted, _ := s.reg.Part(sess.ID, ch.Name); deleted {
			debugLog.Printf("Channel %s removed, last member left", ch.Name)
		}
	}
}

// cmdTopic shows the topic, or sets it when a trailing parameter is
// given. An empty trailing parameter clears it.
func (s *Server) cmdTopic(sess *chat.Session, msg *proto.Message) {
	if len(msg.Channels) == 0 {
		s.refuse(sess, reply.ErrNeedMoreParams, "TOPIC")
		return
	}
	ch, ok := s.reg.Channel(msg.Channels[0])
	if !ok {
		s.refuse(sess, reply.ErrNoSuchChannel, msg.Channels[0])
		return
	}

	if !msg.HasTrailing {
		if !ch.IsMember(sess.ID) {
			s.refuse(sess, reply.ErrNotOnChannel, ch.Name)
			return
		}
		s.sendTopic(sess, ch, true)
		return
	}

	if err := ch.SetTopic(sess.ID, msg.Trailing, sess.Prefix()); err != nil {
		s.refuseChannel(sess, ch.Name, err)
		return
	}
	s.sendChannel(ch, -1, reply.Relay(sess.Prefix(), "TOPIC", ch.Name, ch.Topic))
}

// sendTopic sends 332/333 for a channel with a topic. 331 is only sent
// when the client asked.
func (s *Server) sendTopic(sess *chat.Session, ch *chat.Channel, asked bool) {
	if ch.Topic == "" {
		if asked {
			s.numeric(sess, reply.RplNoTopic, ch.Name, reply.Text(reply.RplNoTopic))
		}
		return
	}
	s.numeric(sess, reply.RplTopic, ch.Name, ch.Topic)
	s.numeric(sess, reply.RplTopicWhoTime, ch.Name, ch.TopicBy, strconv.FormatInt(ch.TopicAt.Unix(), 10))
}

// sendNames lists the members of ch, operators prefixed with '@', split
// over as many 353 lines as needed.
func (s *Server) sendNames(sess *chat.Session, ch *chat.Channel) {
	var line []string
	width := 0
	for _, id := range ch.Members() {
		member, ok := s.reg.Session(id)
		if !ok {
			continue
		}
		name := memberPrefix(ch, id) + member.Nick
		if width+len(name) > namesWidth && len(line) > 0 {
			s.numeric(sess, reply.RplNamReply, "=", ch.Name, strings.Join(line, " "))
			line, width = nil, 0
		}
		line = append(line, name)
		width += len(name) + 1
	}
	if len(line) > 0 {
		s.numeric(sess, reply.RplNamReply, "=", ch.Name, strings.Join(line, " "))
	}
	s.numeric(sess, reply.RplEndOfNames, ch.Name, reply.Text(reply.RplEndOfNames))
}

// operatorOf resolves a channel the session must operate. It reports the
// refusal itself and returns false when the session may not act.
func (s *Server) operatorOf(sess *chat.Session, name string) (*chat.Channel, bool) {
	ch, ok := s.reg.Channel(name)
	if !ok {
		s.refuse(sess, reply.ErrNoSuchChannel, name)
		return nil, false
	}
	if !ch.IsMember(sess.ID) {
		s.refuse(sess, reply.ErrNotOnChannel, ch.Name)
		return nil, false
	}
	if !ch.IsOperator(sess.ID) {
		s.refuse(sess, reply.ErrChanOPrivsNeeded, ch.Name)
		return nil, false
	}
	return ch, true
}

func (s *Server) cmdInvite(sess *chat.Session, msg *proto.Message) {
	if len(msg.Users) == 0 || len(msg.Channels) == 0 {
		s.refuse(sess, reply.ErrNeedMoreParams, "INVITE")
		return
	}
	nick, name := msg.Users[0], msg.Channels[0]

	target, ok := s.reg.SessionByNick(nick)
	if !ok || !target.Registered() {
		s.refuse(sess, reply.ErrNoSuchNick, nick)
		return
	}
	ch, ok := s.operatorOf(sess, name)
	if !ok {
		return
	}
	if err := ch.Invite(target.ID); err != nil {
		s.refuse(sess, reply.ErrUserOnChannel, target.Nick, ch.Name)
		return
	}

	s.numeric(sess, reply.RplInviting, target.Nick, ch.Name)
	s.send(target, reply.Relay(sess.Prefix(), "INVITE", target.Nick, ch.Name))
}

// cmdKick removes every listed user from the channel. The reason
// defaults to the kicker's nick.
func (s *Server) cmdKick(sess *chat.Session, msg *proto.Message) {
	ch, ok := s.operatorOf(sess, msg.Channels[0])
	if !ok {
		return
	}
	reason := sess.Nick
	if msg.HasTrailing && msg.Trailing != "" {
		reason = msg.Trailing
	}

	for _, nick := range msg.Users {
		target, ok := s.reg.SessionByNick(nick)
		if !ok {
			s.refuse(sess, reply.ErrNoSuchNick, nick)
			continue
		}
		if !ch.IsMember(target.ID) {
			s.refuse(sess, reply.ErrUserNotInChannel, target.Nick, ch.Name)
			continue
		}

		s.sendChannel(ch, -1, reply.Relay(sess.Prefix(), "KICK", ch.Name, target.Nick, reason))
		ch.RemoveUser(target.ID)
		if s.reg.DropIfEmpty(ch) {
			return
		}
	}
}

func (s *Server) cmdMode(sess *chat.Session, msg *proto.Message) {
	target := msg.Params[0]
	if !proto.IsChannel(target) {
		s.userMode(sess, msg)
		return
	}

	ch, ok := s.reg.Channel(target)
	if !ok {
		s.refuse(sess, reply.ErrNoSuchChannel, target)
		return
	}

	args := msg.Params[1:]
	if msg.HasTrailing && msg.Trailing != "" {
		args = append(args, msg.Trailing)
	}
	if len(args) == 0 {
		modes, modeArgs := ch.Modes(ch.IsMember(sess.ID))
		s.numeric(sess, reply.RplChannelModeIs, append([]string{ch.Name, modes}, modeArgs...)...)
		s.numeric(sess, reply.RplCreationTime, ch.Name, strconv.FormatInt(ch.Created.Unix(), 10))
		return
	}
	if (args[0] == "b" || args[0] == "+b") && len(args) == 1 {
		s.numeric(sess, reply.RplEndOfBanList, ch.Name, reply.Text(reply.RplEndOfBanList))
		return
	}

	if _, ok := s.operatorOf(sess, ch.Name); !ok {
		return
	}

	modes, modeArgs := s.applyModes(sess, ch, args[0], args[1:])
	if modes != "" {
		params := append([]string{ch.Name, modes}, modeArgs...)
		s.sendChannel(ch, -1, reply.Relay(sess.Prefix(), "MODE", params...))
	}
}

// applyModes applies a mode string and returns the changes that took
// effect, with their arguments, ready to be broadcast.
func (s *Server) applyModes(sess *chat.Session, ch *chat.Channel, modes string, args []string) (string, []string) {
	var (
		applied  strings.Builder
		out      []string
		adding   = true
		lastSign byte
	)
	emit := func(mode byte, arg ...string) {
		sign := byte('-')
		if adding {
			sign = '+'
		}
		if sign != lastSign {
			applied.WriteByte(sign)
			lastSign = sign
		}
		applied.WriteByte(mode)
		out = append(out, arg...)
	}
	next := func() (string, bool) {
		if len(args) == 0 {
			return "", false
		}
		arg := args[0]
		args = args[1:]
		return arg, true
	}

	for i := 0; i < len(modes); i++ {
		mode := modes[i]
		switch mode {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'i':
			if ch.InviteOnly() != adding {
				ch.SetInviteOnly(adding)
				emit(mode)
			}
		case 't':
			if ch.TopicRestricted() != adding {
				ch.SetTopicRestricted(adding)
				emit(mode)
			}
		case 'k':
			key, ok := next()
			if adding {
				if !ok {
					s.refuse(sess, reply.ErrNeedMoreParams, "MODE")
					continue
				}
				if strings.Contains(key, " ") || strings.HasPrefix(key, ":") {
					s.refuse(sess, reply.ErrInvalidModeParam, ch.Name, "k", key)
					continue
				}
				ch.SetKey(key)
				emit(mode, key)
			} else if _, keyed := ch.Key(); keyed {
				ch.ClearKey()
				emit(mode, "*")
			}
		case 'l':
			if !adding {
				if _, limited := ch.Limit(); limited {
					ch.ClearLimit()
					emit(mode)
				}
				continue
			}
			arg, ok := next()
			if !ok {
				s.refuse(sess, reply.ErrNeedMoreParams, "MODE")
				continue
			}
			n, err := strconv.Atoi(arg)
			if err != nil || ch.SetLimit(n) != nil {
				s.refuse(sess, reply.ErrInvalidModeParam, ch.Name, "l", arg)
				continue
			}
			emit(mode, strconv.Itoa(n))
		case 'o':
			nick, ok := next()
			if !ok {
				s.refuse(sess, reply.ErrNeedMoreParams, "MODE")
				continue
			}
			target, ok := s.reg.SessionByNick(nick)
			if !ok {
				s.refuse(sess, reply.ErrNoSuchNick, nick)
				continue
			}
			if !ch.IsMember(target.ID) {
				s.refuse(sess, reply.ErrUserNotInChannel, target.Nick, ch.Name)
				continue
			}
			if adding == ch.IsOperator(target.ID) {
				continue
			}
			if adding {
				ch.AddOperator(target.ID)
			} else {
				ch.RemoveOperator(target.ID)
			}
			emit(mode, target.Nick)
		default:
			s.refuse(sess, reply.ErrUnknownMode, string(mode))
		}
	}
	return applied.String(), out
}

// userMode answers MODE on a nickname. User modes cannot be changed.
func (s *Server) userMode(sess *chat.Session, msg *proto.Message) {
	nick := msg.Params[0]
	target, ok := s.reg.SessionByNick(nick)
	if !ok {
		s.refuse(sess, reply.ErrNoSuchNick, nick)
		return
	}
	if target != sess {
		s.refuse(sess, reply.ErrUsersDontMatch)
		return
	}
	if len(msg.Params) == 1 && !msg.HasTrailing {
		s.numeric(sess, reply.RplUModeIs, "+")
		return
	}
	s.refuse(sess, reply.ErrUModeUnknownFlag)
}
