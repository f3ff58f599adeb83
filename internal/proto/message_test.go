package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJoinWithKeys(t *testing.T) {
	msg, valid := Parse("JOIN #foo,#bar key1,key2")
	assert.True(t, valid)
	assert.Equal(t, CmdJoin, msg.Command)
	assert.Equal(t, []string{"#foo", "#bar"}, msg.Channels)
	assert.Equal(t, []string{"key1", "key2"}, msg.Passwords)
	assert.Empty(t, msg.Users)
	assert.Equal(t, 4, msg.NumParams())
	assert.False(t, msg.HasTrailing)
}

func TestParseKick(t *testing.T) {
	tests := []struct {
		line  string
		valid bool
	}{
		{"KICK #foo", false},
		{"KICK", false},
		{"KICK foo bob", false},
		{"KICK #foo #bob", false},
		{"KICK #foo bob", true},
	}
	for _, tt := range tests {
		_, valid := Parse(tt.line)
		assert.Equal(t, tt.valid, valid, tt.line)
	}

	msg, valid := Parse("KICK #foo bob :leaving now")
	assert.True(t, valid)
	assert.Equal(t, []string{"#foo"}, msg.Channels)
	assert.Equal(t, []string{"bob"}, msg.Users)
	assert.True(t, msg.HasTrailing)
	assert.Equal(t, "leaving now", msg.Trailing)
	assert.False(t, msg.TrailingEmpty)

	msg, valid = Parse("KICK #foo bob,carol")
	assert.True(t, valid)
	assert.Equal(t, []string{"bob", "carol"}, msg.Users)
}

func TestParseTrailing(t *testing.T) {
	msg, _ := Parse("TOPIC #foo :")
	assert.True(t, msg.HasTrailing)
	assert.True(t, msg.TrailingEmpty)
	assert.Equal(t, "", msg.Trailing)

	msg, _ = Parse("TOPIC #foo")
	assert.False(t, msg.HasTrailing)
	assert.False(t, msg.TrailingEmpty)

	msg, _ = Parse("PRIVMSG #a,bob :hello,  there :) ")
	assert.Equal(t, "hello,  there :) ", msg.Trailing)
	assert.Equal(t, []string{"#a"}, msg.Channels)
	assert.Equal(t, []string{"bob"}, msg.Users)

	// a ':' inside a token is not a trailing marker
	msg, _ = Parse("PRIVMSG bob a:b")
	assert.False(t, msg.HasTrailing)
	assert.Equal(t, []string{"bob", "a:b"}, msg.Params)
	assert.Equal(t, "a:b", msg.Text())
}

func TestParseCommaSplitting(t *testing.T) {
	msg, valid := Parse("PART #a,,#b,  #c")
	assert.True(t, valid)
	assert.Equal(t, []string{"#a", "#b", "#c"}, msg.Params)
	assert.Equal(t, 3, msg.NumParams())
}

func TestParseClassification(t *testing.T) {
	msg, valid := Parse("PASS secret")
	assert.True(t, valid)
	assert.Equal(t, []string{"secret"}, msg.Passwords)

	msg, valid = Parse("nick alice")
	assert.True(t, valid)
	assert.Equal(t, CmdNick, msg.Command)
	assert.Equal(t, []string{"alice"}, msg.Users)

	msg, valid = Parse("INVITE bob #chan")
	assert.True(t, valid)
	assert.Equal(t, []string{"bob"}, msg.Users)
	assert.Equal(t, []string{"#chan"}, msg.Channels)

	msg, valid = Parse("MODE #chan +o bob")
	assert.True(t, valid)
	assert.Equal(t, []string{"#chan"}, msg.Channels)
	assert.Equal(t, []string{"+o", "bob"}, msg.Users)

	msg, valid = Parse("MODE alice")
	assert.True(t, valid)
	assert.Equal(t, []string{"alice"}, msg.Users)
}

func TestParseFailures(t *testing.T) {
	for _, line := range []string{"MODE", "CAP", "FROB x", ""} {
		_, valid := Parse(line)
		assert.False(t, valid, line)
	}

	msg, _ := Parse("FROB x")
	assert.Equal(t, CmdUnknown, msg.Command)
	assert.Equal(t, "FROB", msg.Name)

	for _, line := range []string{"PING", "WHO", "CAP LS", "QUIT", "PING :tok"} {
		_, valid := Parse(line)
		assert.True(t, valid, line)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "PRIVMSG", CmdPrivmsg.String())
	assert.Equal(t, "UNKNOWN", CmdUnknown.String())
}
