// Package reply builds the lines the server sends back to clients.
//
// Command handlers only decide what happened (who gets told, which numeric,
// which names are involved); the Formatter turns that into a wire line
// with the right source prefix, target and default text.
package reply

import (
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// MaxLineLen is the longest line, CRLF included, the server will emit.
const MaxLineLen = 512

// Numeric replies used by the server.
const (
	RplWelcome       = "001"
	RplYourHost      = "002"
	RplCreated       = "003"
	RplMyInfo        = "004"
	RplISupport      = "005"
	RplUModeIs       = "221"
	RplEndOfWho      = "315"
	RplWhoisUser     = "311"
	RplWhoisServer   = "312"
	RplEndOfWhois    = "318"
	RplWhoisChannels = "319"
	RplChannelModeIs = "324"
	RplCreationTime  = "329"
	RplNoTopic       = "331"
	RplTopic         = "332"
	RplTopicWhoTime  = "333"
	RplInviting      = "341"
	RplWhoReply      = "352"
	RplNamReply      = "353"
	RplEndOfNames    = "366"
	RplEndOfBanList  = "368"
	RplMotd          = "372"
	RplMotdStart     = "375"
	RplEndOfMotd     = "376"

	ErrNoSuchNick        = "401"
	ErrNoSuchChannel     = "403"
	ErrCannotSendToChan  = "404"
	ErrTooManyChannels   = "405"
	ErrNoOrigin          = "409"
	ErrInvalidCapCmd     = "410"
	ErrNoRecipient       = "411"
	ErrNoTextToSend      = "412"
	ErrInputTooLong      = "417"
	ErrUnknownCommand    = "421"
	ErrNoMotd            = "422"
	ErrNoNicknameGiven   = "431"
	ErrErroneusNickname  = "432"
	ErrNicknameInUse     = "433"
	ErrUserNotInChannel  = "441"
	ErrNotOnChannel      = "442"
	ErrUserOnChannel     = "443"
	ErrNotRegistered     = "451"
	ErrNeedMoreParams    = "461"
	ErrAlreadyRegistered = "462"
	ErrPasswdMismatch    = "464"
	ErrChannelIsFull     = "471"
	ErrUnknownMode       = "472"
	ErrInviteOnlyChan    = "473"
	ErrBadChannelKey     = "475"
	ErrBadChanMask       = "476"
	ErrChanOPrivsNeeded  = "482"
	ErrUModeUnknownFlag  = "501"
	ErrUsersDontMatch    = "502"
	ErrInvalidModeParam  = "696"
)

var defaultText = map[string]string{
	RplEndOfWho:      "End of /WHO list",
	RplEndOfWhois:    "End of /WHOIS list",
	RplNoTopic:       "No topic is set",
	RplEndOfNames:    "End of /NAMES list",
	RplEndOfBanList:  "End of channel ban list",
	RplEndOfMotd:     "End of /MOTD command",
	RplISupport:      "are supported by this server",

	ErrNoSuchNick:        "No such nick/channel",
	ErrNoSuchChannel:     "No such channel",
	ErrCannotSendToChan:  "Cannot send to channel",
	ErrTooManyChannels:   "You have joined too many channels",
	ErrNoOrigin:          "No origin specified",
	ErrInvalidCapCmd:     "Invalid CAP command",
	ErrNoRecipient:       "No recipient given",
	ErrNoTextToSend:      "No text to send",
	ErrInputTooLong:      "Input line was too long",
	ErrUnknownCommand:    "Unknown command",
	ErrNoMotd:            "MOTD File is missing",
	ErrNoNicknameGiven:   "No nickname given",
	ErrErroneusNickname:  "Erroneous nickname",
	ErrNicknameInUse:     "Nickname is already in use",
	ErrUserNotInChannel:  "They aren't on that channel",
	ErrNotOnChannel:      "You're not on that channel",
	ErrUserOnChannel:     "is already on channel",
	ErrNotRegistered:     "You have not registered",
	ErrNeedMoreParams:    "Not enough parameters",
	ErrAlreadyRegistered: "You may not reregister",
	ErrPasswdMismatch:    "Password incorrect",
	ErrChannelIsFull:     "Cannot join channel (+l)",
	ErrUnknownMode:       "is unknown mode char to me",
	ErrInviteOnlyChan:    "Cannot join channel (+i)",
	ErrBadChannelKey:     "Cannot join channel (+k)",
	ErrBadChanMask:       "Bad Channel Mask",
	ErrChanOPrivsNeeded:  "You're not channel operator",
	ErrUModeUnknownFlag:  "Unknown MODE flag",
	ErrUsersDontMatch:    "Cant change mode for other users",
	ErrInvalidModeParam:  "Invalid mode parameter",
}

// Text returns the default human readable text for a numeric.
func Text(code string) string {
	return defaultText[code]
}

// Formatter produces messages sourced from one server.
type Formatter struct {
	Server string
}

// New returns a Formatter for the named server.
func New(server string) *Formatter {
	return &Formatter{Server: server}
}

// Numeric builds a numeric reply addressed to nick. Unregistered clients
// without a nickname are addressed as "*". Every parameter but the last
// goes through Param, since numerics echo client tokens back.
func (f *Formatter) Numeric(code, nick string, params ...string) ircmsg.Message {
	full := make([]string, 0, len(params)+1)
	full = append(full, Param(nick))
	for i, p := range params {
		if i < len(params)-1 {
			p = Param(p)
		}
		full = append(full, p)
	}
	return ircmsg.MakeMessage(nil, f.Server, code, full...)
}

// Param makes text usable as a middle parameter: leading colons are
// dropped, anything from the first space on is cut, and nothing left
// becomes "*".
func Param(text string) string {
	text = strings.TrimLeft(text, ":")
	text, _, _ = strings.Cut(text, " ")
	if text == "" {
		return "*"
	}
	return text
}

// Error is Numeric with the numeric's default text appended as the final
// parameter.
func (f *Formatter) Error(code, nick string, params ...string) ircmsg.Message {
	full := make([]string, 0, len(params)+1)
	full = append(full, params...)
	full = append(full, Text(code))
	return f.Numeric(code, nick, full...)
}

// Command builds a non-numeric message sourced from the server, such as
// PONG or CAP.
func (f *Formatter) Command(command string, params ...string) ircmsg.Message {
	return ircmsg.MakeMessage(nil, f.Server, command, params...)
}

// Relay builds a message sourced from a client, such as the JOIN or
// PRIVMSG other members of a channel see.
func Relay(source, command string, params ...string) ircmsg.Message {
	return ircmsg.MakeMessage(nil, source, command, params...)
}

// Fatal builds the ERROR line sent right before a connection is closed.
func Fatal(reason string) ircmsg.Message {
	return ircmsg.MakeMessage(nil, "", "ERROR", reason)
}

// Encode serialises msg with its CRLF, truncating at MaxLineLen. A nil
// result means the message could not be encoded at all.
func Encode(msg ircmsg.Message) ([]byte, error) {
	line, err := msg.LineBytesStrict(false, MaxLineLen)
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return line, nil
}
