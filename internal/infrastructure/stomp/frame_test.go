package stomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	frame := NewFrame(CommandSend, map[string]string{
		"destination":  "/app/chat/send",
		"content-type": "application/json",
	})
	frame.Body = []byte(`{"content":"hi"}`)

	parsed, err := Parse(frame.Marshal())
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, CommandSend, parsed.Command)
	assert.Equal(t, "/app/chat/send", parsed.Headers["destination"])
	assert.Equal(t, "application/json", parsed.Headers["content-type"])
	assert.Equal(t, frame.Body, parsed.Body)
}

func TestMarshalTerminatesWithNul(t *testing.T) {
	frame := NewFrame(CommandDisconnect, nil)
	wire := frame.Marshal()
	require.NotEmpty(t, wire)
	assert.Equal(t, byte(0), wire[len(wire)-1])
}

func TestParseHeartBeatIsNil(t *testing.T) {
	for _, wire := range []string{"\n", "\r\n", "\n\x00", ""} {
		frame, err := Parse([]byte(wire))
		require.NoError(t, err)
		assert.Nil(t, frame)
	}
}

func TestParseCarriageReturnLines(t *testing.T) {
	wire := "CONNECTED\r\nversion:1.2\r\n\r\n"
	frame, err := Parse([]byte(wire))
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, CommandConnected, frame.Command)
	assert.Equal(t, "1.2", frame.Headers["version"])
}

func TestParseCarriageReturnLinesWithBody(t *testing.T) {
	wire := "MESSAGE\r\ndestination:/queue/a\r\n\r\n{\"id\":\"m1\"}\x00"
	frame, err := Parse([]byte(wire))
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, CommandMessage, frame.Command)
	assert.Equal(t, "/queue/a", frame.Headers["destination"])
	assert.Equal(t, []byte(`{"id":"m1"}`), frame.Body)
}

func TestHeaderEscaping(t *testing.T) {
	frame := NewFrame(CommandSend, map[string]string{
		"destination": "/queue/a:b",
		"note":        "line one\nline two",
	})

	parsed, err := Parse(frame.Marshal())
	require.NoError(t, err)
	assert.Equal(t, "/queue/a:b", parsed.Headers["destination"])
	assert.Equal(t, "line one\nline two", parsed.Headers["note"])
}

func TestRepeatedHeaderFirstWins(t *testing.T) {
	wire := "MESSAGE\ndestination:/queue/first\ndestination:/queue/second\n\nbody\x00"
	frame, err := Parse([]byte(wire))
	require.NoError(t, err)
	assert.Equal(t, "/queue/first", frame.Headers["destination"])
}

func TestParseMalformedHeader(t *testing.T) {
	_, err := Parse([]byte("MESSAGE\nnot-a-header\n\n\x00"))
	assert.Error(t, err)
}

func TestParseEmptyBodyFrame(t *testing.T) {
	frame, err := Parse([]byte("CONNECT\naccept-version:1.2\n\n\x00"))
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, CommandConnect, frame.Command)
	assert.Empty(t, frame.Body)
}
