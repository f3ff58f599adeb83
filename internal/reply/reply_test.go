package reply

import (
	"strings"
	"testing"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, msg ircmsg.Message) string {
	t.Helper()
	line, err := Encode(msg)
	require.NoError(t, err)
	return string(line)
}

func TestNumericAddressesStarWithoutNick(t *testing.T) {
	f := New("irc.test")
	assert.Equal(t, ":irc.test 451 * :You have not registered\r\n",
		encode(t, f.Error(ErrNotRegistered, "")))
}

func TestErrorAppendsDefaultText(t *testing.T) {
	f := New("irc.test")
	assert.Equal(t, ":irc.test 482 alice #chan :You're not channel operator\r\n",
		encode(t, f.Error(ErrChanOPrivsNeeded, "alice", "#chan")))
	assert.Equal(t, ":irc.test 421 alice FROB :Unknown command\r\n",
		encode(t, f.Error(ErrUnknownCommand, "alice", "FROB")))
}

func TestRelayAndCommand(t *testing.T) {
	f := New("irc.test")
	assert.Equal(t, ":alice!al@127.0.0.1 PRIVMSG #chan :hi there\r\n",
		encode(t, Relay("alice!al@127.0.0.1", "PRIVMSG", "#chan", "hi there")))
	assert.Equal(t, ":irc.test PONG irc.test tok\r\n",
		encode(t, f.Command("PONG", "irc.test", "tok")))
	assert.Equal(t, "ERROR :Closing Link\r\n", encode(t, Fatal("Closing Link")))
}

func TestEncodeTruncates(t *testing.T) {
	long := strings.Repeat("x", 1000)
	line := encode(t, Relay("alice!al@host", "PRIVMSG", "#chan", long))
	assert.Len(t, line, MaxLineLen)
	assert.True(t, strings.HasSuffix(line, "\r\n"))

	parsed, err := ircmsg.ParseLine(line)
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG", parsed.Command)
}

func TestEveryErrorHasText(t *testing.T) {
	for code, text := range defaultText {
		assert.NotEmpty(t, text, code)
	}
	assert.Empty(t, Text("999"))
}

func TestNumericMakesEchoedTokensEncodable(t *testing.T) {
	f := New("irc.test")
	assert.Equal(t, ":irc.test 401 alice x :No such nick/channel\r\n",
		encode(t, f.Error(ErrNoSuchNick, "alice", ":x")))
	assert.Equal(t, ":irc.test 441 alice * #c :They aren't on that channel\r\n",
		encode(t, f.Error(ErrUserNotInChannel, "alice", "", "#c")))
	assert.Equal(t, ":irc.test 315 alice a :End of /WHO list\r\n",
		encode(t, f.Numeric(RplEndOfWho, "alice", "a b", Text(RplEndOfWho))))
}

func TestParam(t *testing.T) {
	for in, want := range map[string]string{
		"FOO":      "FOO",
		":FOO":     "FOO",
		"FOO BAR":  "FOO",
		"":         "*",
		"::":       "*",
		" leading": "*",
	} {
		assert.Equal(t, want, Param(in), "%q", in)
	}
}
