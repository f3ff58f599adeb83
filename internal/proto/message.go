// Package proto turns the raw byte stream of a client connection into
// classified protocol messages.
//
// A line looks like
//
//	COMMAND param,param param :trailing free text
//
// Parameters before the trailing marker are split on commas. Each command
// then sorts its parameters into users, channels and passwords; a leading
// '#' always marks a channel name.
package proto

import "strings"

// Command identifies a recognised protocol command.
type Command int

const (
	CmdUnknown Command = iota
	CmdPass
	CmdNick
	CmdUser
	CmdTopic
	CmdPrivmsg
	CmdPart
	CmdJoin
	CmdQuit
	CmdInvite
	CmdMode
	CmdCap
	CmdPing
	CmdWhois
	CmdWho
	CmdKick
)

var commandNames = map[string]Command{
	"PASS":    CmdPass,
	"NICK":    CmdNick,
	"USER":    CmdUser,
	"TOPIC":   CmdTopic,
	"PRIVMSG": CmdPrivmsg,
	"PART":    CmdPart,
	"JOIN":    CmdJoin,
	"QUIT":    CmdQuit,
	"INVITE":  CmdInvite,
	"MODE":    CmdMode,
	"CAP":     CmdCap,
	"PING":    CmdPing,
	"WHOIS":   CmdWhois,
	"WHO":     CmdWho,
	"KICK":    CmdKick,
}

func (c Command) String() string {
	for name, cmd := range commandNames {
		if cmd == c {
			return name
		}
	}
	return "UNKNOWN"
}

// ChannelPrefix marks a token as a channel name.
const ChannelPrefix = '#'

// IsChannel reports whether a token names a channel.
func IsChannel(token string) bool {
	return token != "" && token[0] == ChannelPrefix
}

// Message is the result of parsing one line. It is not retained past the
// handling of that line.
type Message struct {
	Raw     string
	Name    string
	Command Command

	// Params holds the elementary parameters, comma lists already split.
	Params []string

	// Trailing is the free text after the ':' marker. HasTrailing tells an
	// absent trailing parameter apart from an explicitly empty one, which
	// additionally sets TrailingEmpty.
	Trailing      string
	HasTrailing   bool
	TrailingEmpty bool

	Users     []string
	Channels  []string
	Passwords []string
}

// NumParams returns the number of elementary parameters.
func (m *Message) NumParams() int {
	return len(m.Params)
}

// Param returns the i-th parameter or "" when there are fewer.
func (m *Message) Param(i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

// Text returns the trailing parameter, falling back to the last plain
// parameter when the client left out the ':' marker.
func (m *Message) Text() string {
	if m.HasTrailing {
		return m.Trailing
	}
	if len(m.Params) > 0 {
		return m.Params[len(m.Params)-1]
	}
	return ""
}

// Parse tokenises a line and classifies its parameters. The returned
// message is always non-nil; valid is false for unknown commands and for
// commands whose parameters break their classification rule.
func Parse(line string) (msg *Message, valid bool) {
	msg = &Message{Raw: line}

	name, rest := nextToken(line)
	msg.Name = strings.ToUpper(name)
	msg.Command = commandNames[msg.Name]

	for {
		rest = strings.TrimLeft(rest, whitespace)
		if rest == "" {
			break
		}
		if rest[0] == ':' {
			msg.HasTrailing = true
			msg.Trailing = strings.TrimRight(rest[1:], "\r\n")
			msg.TrailingEmpty = msg.Trailing == ""
			break
		}

		var tok string
		tok, rest = nextToken(rest)
		for _, p := range strings.Split(tok, ",") {
			if p != "" {
				msg.Params = append(msg.Params, p)
			}
		}
	}

	return msg, msg.classify()
}

const whitespace = " \t\v\f\r\n"

func nextToken(s string) (tok, rest string) {
	s = strings.TrimLeft(s, whitespace)
	if i := strings.IndexAny(s, whitespace); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func (m *Message) classify() bool {
	switch m.Command {
	case CmdNick, CmdUser, CmdTopic, CmdPrivmsg, CmdPart, CmdQuit, CmdInvite, CmdWhois:
		m.classifyGeneric(m.Params)
		return true
	case CmdPass, CmdJoin:
		m.classifyKeys(m.Params)
		return true
	case CmdCap:
		return len(m.Params) > 0
	case CmdKick:
		return m.classifyKick()
	case CmdMode:
		if len(m.Params) == 0 {
			return false
		}
		m.classifyGeneric(m.Params)
		return true
	case CmdPing, CmdWho:
		return true
	default:
		return false
	}
}

func (m *Message) classifyGeneric(params []string) {
	for _, p := range params {
		if IsChannel(p) {
			m.Channels = append(m.Channels, p)
		} else {
			m.Users = append(m.Users, p)
		}
	}
}

// classifyKeys is used by PASS and JOIN, where anything that is not a
// channel is a password or channel key.
func (m *Message) classifyKeys(params []string) {
	for _, p := range params {
		if IsChannel(p) {
			m.Channels = append(m.Channels, p)
		} else {
			m.Passwords = append(m.Passwords, p)
		}
	}
}

func (m *Message) classifyKick() bool {
	if len(m.Params) < 2 {
		return false
	}
	if !IsChannel(m.Params[0]) || IsChannel(m.Params[1]) {
		return false
	}
	m.Channels = append(m.Channels, m.Params[0])
	m.Users = append(m.Users, m.Params[1])
	m.classifyGeneric(m.Params[2:])
	return true
}
