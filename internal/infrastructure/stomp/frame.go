package stomp

import (
	"bytes"
	"fmt"
	"strings"
)

// STOMP 1.2 commands used by this client. The broker side is Spring's simple
// broker, which carries one STOMP frame per websocket text message.
const (
	CommandConnect     = "CONNECT"
	CommandConnected   = "CONNECTED"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandSend        = "SEND"
	CommandMessage     = "MESSAGE"
	CommandDisconnect  = "DISCONNECT"
	CommandError       = "ERROR"
)

// Frame is a single STOMP frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

func NewFrame(command string, headers map[string]string) *Frame {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &Frame{Command: command, Headers: headers}
}

// Marshal renders the frame in wire format: command line, header lines, a
// blank line, the body, and a NUL terminator.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	for key, value := range f.Headers {
		buf.WriteString(escapeHeader(key))
		buf.WriteByte(':')
		buf.WriteString(escapeHeader(value))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Parse decodes one frame from wire format. Heart-beat frames (a bare
// newline) decode to nil without error.
func Parse(data []byte) (*Frame, error) {
	data = bytes.TrimRight(data, "\x00")
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	// The blank line ending the headers may use either line ending; the
	// body itself is passed through untouched.
	head := data
	var body []byte
	lf := bytes.Index(data, []byte("\n\n"))
	if crlf := bytes.Index(data, []byte("\r\n\r\n")); crlf >= 0 && (lf < 0 || crlf < lf) {
		head = data[:crlf]
		body = data[crlf+4:]
	} else if lf >= 0 {
		head = data[:lf]
		body = data[lf+2:]
	}

	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	command := strings.TrimSpace(lines[0])
	if command == "" {
		return nil, fmt.Errorf("stomp: frame without command")
	}

	frame := NewFrame(command, nil)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		sep := strings.Index(line, ":")
		if sep < 0 {
			return nil, fmt.Errorf("stomp: malformed header line %q", line)
		}
		key := unescapeHeader(line[:sep])
		// Repeated headers: STOMP says the first occurrence wins.
		if _, exists := frame.Headers[key]; !exists {
			frame.Headers[key] = unescapeHeader(line[sep+1:])
		}
	}
	frame.Body = body
	return frame, nil
}

var headerEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r", `\r`,
	"\n", `\n`,
	":", `\c`,
)

var headerUnescaper = strings.NewReplacer(
	`\r`, "\r",
	`\n`, "\n",
	`\c`, ":",
	`\\`, `\`,
)

func escapeHeader(s string) string {
	return headerEscaper.Replace(s)
}

func unescapeHeader(s string) string {
	return headerUnescaper.Replace(s)
}
