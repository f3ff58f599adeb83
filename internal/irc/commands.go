package irc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dalnet/ircserv/internal/chat"
	"github.com/dalnet/ircserv/internal/proto"
	"github.com/dalnet/ircserv/internal/reply"
)

// handleCommand runs the handler for a parsed, permitted command
func (s *Server) handleCommand(sess *chat.Session, msg *proto.Message) {
	switch msg.Command {
	case proto.CmdPass:
		s.cmdPass(sess, msg)
	case proto.CmdNick:
		s.cmdNick(sess, msg)
	case proto.CmdUser:
		s.cmdUser(sess, msg)
	case proto.CmdQuit:
		s.cmdQuit(sess, msg)
	case proto.CmdPing:
		s.cmdPing(sess, msg)
	case proto.CmdCap:
		s.cmdCap(sess, msg)
	case proto.CmdPrivmsg:
		s.cmdPrivmsg(sess, msg)
	case proto.CmdJoin:
		s.cmdJoin(sess, msg)
	case proto.CmdPart:
		s.cmdPart(sess, msg)
	case proto.CmdTopic:
		s.cmdTopic(sess, msg)
	case proto.CmdInvite:
		s.cmdInvite(sess, msg)
	case proto.CmdKick:
		s.cmdKick(sess, msg)
	case proto.CmdMode:
		s.cmdMode(sess, msg)
	case proto.CmdWhois:
		s.cmdWhois(sess, msg)
	case proto.CmdWho:
		s.cmdWho(sess, msg)
	}
}

func (s *Server) cmdPass(sess *chat.Session, msg *proto.Message) {
	if sess.Registered() {
		s.refuse(sess, reply.ErrAlreadyRegistered)
		return
	}

	var candidate string
	switch {
	case len(msg.Passwords) > 0:
		candidate = msg.Passwords[0]
	case len(msg.Channels) > 0:
		// '#' is a legal password character
		candidate = msg.Channels[0]
	case msg.HasTrailing:
		candidate = msg.Trailing
	}
	if candidate == "" {
		s.refuse(sess, reply.ErrNeedMoreParams, "PASS")
		return
	}

	if !s.cfg.CheckPassword(candidate) {
		warnLog.Printf("Client %d from %s sent a wrong password", sess.ID, sess.Host)
		s.refuse(sess, reply.ErrPasswdMismatch)
		return
	}
	sess.AcceptPassword()
}

func (s *Server) cmdNick(sess *chat.Session, msg *proto.Message) {
	var nick string
	switch {
	case len(msg.Users) > 0:
		nick = msg.Users[0]
	case len(msg.Channels) > 0:
		nick = msg.Channels[0]
	case msg.HasTrailing:
		nick = msg.Trailing
	}
	if nick == "" {
		s.refuse(sess, reply.ErrNoNicknameGiven)
		return
	}
	if !validNick(nick, s.cfg.Limits.NickLen) {
		s.refuse(sess, reply.ErrErroneusNickname, nick)
		return
	}
	if nick == sess.Nick {
		return
	}

	old := sess.Prefix()
	if err := s.reg.SetNick(sess, nick); err != nil {
		s.refuse(sess, reply.ErrNicknameInUse, nick)
		return
	}

	if sess.Registered() {
		change := reply.Relay(old, "NICK", nick)
		s.send(sess, change)
		for _, peer := range s.reg.Peers(sess.ID) {
			s.send(peer, change)
		}
		infoLog.Printf("Client %d changed nick: %s -> %s", sess.ID, old, nick)
	}
}

// validNick: a letter or one of []\`_^{|} first, then letters, digits,
// those characters or '-'.
func validNick(nick string, limit int) bool {
	if nick == "" || (limit > 0 && len(nick) > limit) {
		return false
	}
	for i := 0; i < len(nick); i++ {
		c := nick[i]
		switch {
		case isLetter(c), strings.IndexByte("[]\\`_^{|}", c) >= 0:
		case i > 0 && (isDigit(c) || c == '-'):
		default:
			return false
		}
	}
	return true
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func (s *Server) cmdUser(sess *chat.Session, msg *proto.Message) {
	if sess.Registered() {
		s.refuse(sess, reply.ErrAlreadyRegistered)
		return
	}
	username := msg.Param(0)
	if username == "" || strings.ContainsAny(username, "!@") {
		s.refuse(sess, reply.ErrNeedMoreParams, "USER")
		return
	}
	if len(username) > maxUserLen {
		username = username[:maxUserLen]
	}

	sess.User = username
	sess.RealName = username
	if msg.HasTrailing && msg.Trailing != "" {
		sess.RealName = msg.Trailing
	}
}

const maxUserLen = 16

func (s *Server) cmdQuit(sess *chat.Session, msg *proto.Message) {
	reason := "Client Quit"
	if msg.HasTrailing && msg.Trailing != "" {
		reason = "Quit: " + msg.Trailing
	}
	s.removeClient(sess, "quit", reason)
}

func (s *Server) cmdPing(sess *chat.Session, msg *proto.Message) {
	token := msg.Text()
	if token == "" {
		s.refuse(sess, reply.ErrNoOrigin)
		return
	}
	s.send(sess, s.replies.Command("PONG", s.cfg.Server.Name, token))
}

// cmdCap answers capability negotiation. No capabilities are offered.
func (s *Server) cmdCap(sess *chat.Session, msg *proto.Message) {
	target := sess.Nick
	if target == "" {
		target = "*"
	}

	sub := strings.ToUpper(msg.Params[0])
	switch sub {
	case "LS", "LIST":
		s.send(sess, s.replies.Command("CAP", target, sub, ""))
	case "REQ":
		requested := msg.Trailing
		if !msg.HasTrailing {
			requested = strings.Join(msg.Params[1:], " ")
		}
		s.send(sess, s.replies.Command("CAP", target, "NAK", requested))
	case "END":
	default:
		s.refuse(sess, reply.ErrInvalidCapCmd, msg.Params[0])
	}
}

// cmdPrivmsg delivers text to each target in the order given. The text
// is the trailing parameter, or the last plain parameter when the client
// left out the ':' marker.
func (s *Server) cmdPrivmsg(sess *chat.Session, msg *proto.Message) {
	targets := msg.Params
	text := msg.Trailing
	if !msg.HasTrailing && len(targets) > 1 {
		text = targets[len(targets)-1]
		targets = targets[:len(targets)-1]
	}
	if len(targets) == 0 {
		s.refuse(sess, reply.ErrNoRecipient, "PRIVMSG")
		return
	}
	if text == "" {
		s.refuse(sess, reply.ErrNoTextToSend)
		return
	}

	for _, target := range targets {
		if proto.IsChannel(target) {
			ch, ok := s.reg.Channel(target)
			if !ok {
				s.refuse(sess, reply.ErrNoSuchChannel, target)
				continue
			}
			if !ch.IsMember(sess.ID) {
				s.refuse(sess, reply.ErrCannotSendToChan, ch.Name)
				continue
			}
			s.sendChannel(ch, sess.ID, reply.Relay(sess.Prefix(), "PRIVMSG", ch.Name, text))
			continue
		}

		peer, ok := s.reg.SessionByNick(target)
		if !ok || !peer.Registered() {
			s.refuse(sess, reply.ErrNoSuchNick, target)
			continue
		}
		s.send(peer, reply.Relay(sess.Prefix(), "PRIVMSG", peer.Nick, text))
	}
}

func (s *Server) cmdWhois(sess *chat.Session, msg *proto.Message) {
	if len(msg.Users) == 0 {
		s.refuse(sess, reply.ErrNoNicknameGiven)
		return
	}
	// WHOIS [server] nick
	nick := msg.Users[len(msg.Users)-1]

	target, ok := s.reg.SessionByNick(nick)
	if !ok || !target.Registered() {
		s.refuse(sess, reply.ErrNoSuchNick, nick)
		s.numeric(sess, reply.RplEndOfWhois, nick, reply.Text(reply.RplEndOfWhois))
		return
	}

	s.numeric(sess, reply.RplWhoisUser, target.Nick, target.User, target.Host, "*", target.RealName)
	var chans []string
	for _, ch := range s.reg.ChannelsOf(target.ID) {
		chans = append(chans, memberPrefix(ch, target.ID)+ch.Name)
	}
	if len(chans) > 0 {
		s.numeric(sess, reply.RplWhoisChannels, target.Nick, strings.Join(chans, " "))
	}
	s.numeric(sess, reply.RplWhoisServer, target.Nick, s.cfg.Server.Name, s.cfg.Server.Network)
	s.numeric(sess, reply.RplEndOfWhois, target.Nick, reply.Text(reply.RplEndOfWhois))
}

func (s *Server) cmdWho(sess *chat.Session, msg *proto.Message) {
	mask := msg.Param(0)
	switch {
	case mask == "":
		mask = "*"
	case proto.IsChannel(mask):
		if ch, ok := s.reg.Channel(mask); ok {
			for _, id := range ch.Members() {
				if member, ok := s.reg.Session(id); ok {
					s.whoReply(sess, ch.Name, member, ch.IsOperator(id))
				}
			}
		}
	default:
		if target, ok := s.reg.SessionByNick(mask); ok && target.Registered() {
			s.whoReply(sess, "*", target, false)
		}
	}
	s.numeric(sess, reply.RplEndOfWho, mask, reply.Text(reply.RplEndOfWho))
}

func (s *Server) whoReply(sess *chat.Session, channel string, target *chat.Session, op bool) {
	flags := "H"
	if op {
		flags += "@"
	}
	s.numeric(sess, reply.RplWhoReply, channel, target.User, target.Host,
		s.cfg.Server.Name, target.Nick, flags, "0 "+target.RealName)
}

func memberPrefix(ch *chat.Channel, id int) string {
	if ch.IsOperator(id) {
		return "@"
	}
	return ""
}

// welcome sends the registration burst and the MOTD.
func (s *Server) welcome(sess *chat.Session) {
	name := s.cfg.Server.Name
	s.numeric(sess, reply.RplWelcome,
		fmt.Sprintf("Welcome to the %s Network, %s", s.cfg.Server.Network, sess.Prefix()))
	s.numeric(sess, reply.RplYourHost,
		fmt.Sprintf("Your host is %s, running version ircserv-%s", name, Version))
	s.numeric(sess, reply.RplCreated,
		"This server was created "+s.created.Format("Mon Jan 2 2006 at 15:04:05 MST"))
	s.numeric(sess, reply.RplMyInfo, name, "ircserv-"+Version, "o", "iklot", "klo")
	s.numeric(sess, reply.RplISupport,
		"CASEMAPPING=ascii",
		"CHANMODES=,k,l,it",
		"CHANNELLEN="+strconv.Itoa(s.cfg.Limits.ChannelLen),
		"CHANTYPES=#",
		"NETWORK="+s.cfg.Server.Network,
		"NICKLEN="+strconv.Itoa(s.cfg.Limits.NickLen),
		"PREFIX=(o)@",
		reply.Text(reply.RplISupport))
	s.sendMOTD(sess)
}

func (s *Server) sendMOTD(sess *chat.Session) {
	if s.motd.Empty() {
		s.refuse(sess, reply.ErrNoMotd)
		return
	}
	s.numeric(sess, reply.RplMotdStart, fmt.Sprintf("- %s Message of the day - ", s.cfg.Server.Name))
	for _, line := range s.motd.Lines {
		s.numeric(sess, reply.RplMotd, "- "+line)
	}
	s.numeric(sess, reply.RplEndOfMotd, reply.Text(reply.RplEndOfMotd))
}
