package proto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drain(t *testing.T, b *LineBuffer) []string {
	t.Helper()
	var lines []string
	for {
		line, ok, err := b.Next()
		require.NoError(t, err)
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestLineBufferPartialReads(t *testing.T) {
	b := NewLineBuffer(512)

	b.Write([]byte("NICK al"))
	_, ok, err := b.Next()
	assert.NoError(t, err)
	assert.False(t, ok, "no line ending yet")

	b.Write([]byte("ice\r\nUSER alice 0 * :Alice\r\nPI"))
	assert.Equal(t, []string{"NICK alice", "USER alice 0 * :Alice"}, drain(t, b))
	assert.Equal(t, 2, b.Len())

	b.Write([]byte("NG x\n"))
	assert.Equal(t, []string{"PING x"}, drain(t, b))
	assert.Zero(t, b.Len())
}

func TestLineBufferStripsLineEndings(t *testing.T) {
	b := NewLineBuffer(0)
	b.Write([]byte("a\r\n\r\nb\r\r\n"))
	assert.Equal(t, []string{"a", "", "b"}, drain(t, b))
}

func TestLineBufferTooLong(t *testing.T) {
	b := NewLineBuffer(8)

	b.Write([]byte("0123456789"))
	_, ok, err := b.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.False(t, ok)

	// the rest of the oversized line is skipped silently
	b.Write([]byte("abcdef\r\nPING x\r\n"))
	assert.Equal(t, []string{"PING x"}, drain(t, b))

	b.Write([]byte("0123456789\r\nok\r\n"))
	_, _, err = b.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Equal(t, []string{"ok"}, drain(t, b))
}

// However the input is chopped into reads, every embedded line comes out
// exactly once and in order.
func TestLineBufferSplitInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOf(rapid.StringMatching(`[A-Za-z0-9 #:,]{0,20}`)).Draw(t, "lines")
		stream := ""
		for _, l := range lines {
			stream += l + "\r\n"
		}

		b := NewLineBuffer(0)
		var got []string
		for len(stream) > 0 {
			n := rapid.IntRange(1, len(stream)).Draw(t, "chunk")
			b.Write([]byte(stream[:n]))
			stream = stream[n:]
			for {
				line, ok, err := b.Next()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !ok {
					break
				}
				got = append(got, line)
			}
		}

		if strings.Join(got, "\n") != strings.Join(lines, "\n") || len(got) != len(lines) {
			t.Fatalf("got %q, want %q", got, lines)
		}
	})
}

// The length limit gives the same verdict however the stream is split,
// including splits between a line's CR and LF.
func TestLineBufferLimitSplitInvariance(t *testing.T) {
	const tooLong = "\x00too long"

	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 12).Draw(t, "limit")
		n := rapid.IntRange(0, 8).Draw(t, "n")

		stream := ""
		var want []string
		for i := 0; i < n; i++ {
			size := rapid.IntRange(0, limit+2).Draw(t, "size")
			crs := rapid.IntRange(0, 2).Draw(t, "crs")
			content := strings.Repeat("x", size)
			stream += content + strings.Repeat("\r", crs) + "\n"
			if size > limit || crs > limit {
				want = append(want, tooLong)
			} else {
				want = append(want, content)
			}
		}

		b := NewLineBuffer(limit)
		var got []string
		for len(stream) > 0 {
			k := rapid.IntRange(1, len(stream)).Draw(t, "chunk")
			b.Write([]byte(stream[:k]))
			stream = stream[k:]
			for {
				line, ok, err := b.Next()
				if err != nil {
					got = append(got, tooLong)
					continue
				}
				if !ok {
					break
				}
				got = append(got, line)
			}
		}

		if strings.Join(got, "\n") != strings.Join(want, "\n") || len(got) != len(want) {
			t.Fatalf("limit %d: got %q, want %q", limit, got, want)
		}
	})
}

func TestLineBufferExactLimitAcrossCRLF(t *testing.T) {
	b := NewLineBuffer(8)
	b.Write([]byte("12345678\r"))
	line, ok, err := b.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, line)

	b.Write([]byte("\n"))
	assert.Equal(t, []string{"12345678"}, drain(t, b))
}
