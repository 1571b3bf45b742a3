package sse

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decoded struct {
	id, typ, data string
}

func decodeAll(t *testing.T, input string) []decoded {
	t.Helper()
	d := NewDecoder(strings.NewReader(input))
	var out []decoded
	for {
		ev, err := d.Decode()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, decoded{ev.ID, ev.Type, string(ev.Data)})
		ev.Release()
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []decoded
	}{
		{
			name:  "single event",
			input: "id: 1\nevent: BuildEvent\ndata: {\"a\":1}\n\n",
			want:  []decoded{{"1", "BuildEvent", `{"a":1}`}},
		},
		{
			name:  "multi-line data joined with newline",
			input: "data: first\ndata: second\n\n",
			want:  []decoded{{"", "", "first\nsecond"}},
		},
		{
			name:  "crlf line endings",
			input: "id: 7\r\nevent: Build\r\ndata: x\r\n\r\n",
			want:  []decoded{{"7", "Build", "x"}},
		},
		{
			name:  "comments ignored",
			input: ": keepalive\n\n: another\ndata: y\n\n",
			want:  []decoded{{"", "", "y"}},
		},
		{
			name:  "no space after colon",
			input: "data:tight\n\n",
			want:  []decoded{{"", "", "tight"}},
		},
		{
			name:  "only first space stripped",
			input: "data:  padded\n\n",
			want:  []decoded{{"", "", " padded"}},
		},
		{
			name:  "event without data is not dispatched",
			input: "id: 3\nevent: Heartbeat\n\ndata: z\n\n",
			want:  []decoded{{"3", "", "z"}},
		},
		{
			name:  "last id persists across events",
			input: "id: 5\ndata: a\n\ndata: b\n\n",
			want:  []decoded{{"5", "", "a"}, {"5", "", "b"}},
		},
		{
			name:  "unterminated trailing event discarded",
			input: "data: complete\n\ndata: partial",
			want:  []decoded{{"", "", "complete"}},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeAll(t, tt.input))
		})
	}
}

func TestDecodeRetry(t *testing.T) {
	d := NewDecoder(strings.NewReader("retry: 1500\ndata: x\n\n"))
	ev, err := d.Decode()
	require.NoError(t, err)
	defer ev.Release()
	assert.Equal(t, 1500*time.Millisecond, ev.Retry)
}

func TestDoubleReleasePanics(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: x\n\n"))
	ev, err := d.Decode()
	require.NoError(t, err)
	ev.Release()
	assert.Panics(t, func() { ev.Release() })
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestDecodeReadError(t *testing.T) {
	boom := io.ErrUnexpectedEOF
	_, err := NewDecoder(failingReader{boom}).Decode()
	assert.ErrorIs(t, err, boom)
}
