package ipc

import (
	"encoding/json"
	"io"
	"log/slog"
)

// ControlChannel is the host↔child control connection carried over the
// spawn control facility, distinct from the adapter:call data socket (spec
// §4.4, §6: "over the spawn channel, not the socket"). The Go host wires
// this over a dedicated pair of pipes passed to the child as extra file
// descriptors (internal/executor), not stdin/stdout, so a handler's own
// stdout/stderr stay free for UI output and logs. One side writes
// ExecuteMessage/AbortMessage, the other writes
// ReadyMessage/ResultMessage/ErrorMessage; both directions share the same
// line-delimited JSON framing as the data channel.
type ControlChannel struct {
	writer *lineWriter
	reader *lineReader
}

// NewControlChannel wraps w (writes) and r (reads) as a ControlChannel. On
// the host side w/r are the host's ends of the two control pipes; on the
// child side they are the child's fd 4 (write) and fd 3 (read).
func NewControlChannel(w io.Writer, r io.Reader, logger *slog.Logger) *ControlChannel {
	return &ControlChannel{writer: newLineWriter(w), reader: newLineReader(r, logger)}
}

// SendExecute writes an ExecuteMessage (host → child).
func (c *ControlChannel) SendExecute(msg ExecuteMessage) error {
	msg.Type = TypeExecute
	return c.writer.writeJSON(msg)
}

// SendAbort writes an AbortMessage (host → child).
func (c *ControlChannel) SendAbort() error {
	return c.writer.writeJSON(AbortMessage{Type: TypeAbort})
}

// SendReady writes a ReadyMessage (child → host).
func (c *ControlChannel) SendReady() error {
	return c.writer.writeJSON(ReadyMessage{Type: TypeReady})
}

// SendResult writes a ResultMessage (child → host).
func (c *ControlChannel) SendResult(msg ResultMessage) error {
	msg.Type = TypeResult
	return c.writer.writeJSON(msg)
}

// SendError writes an ErrorMessage (child → host).
func (c *ControlChannel) SendError(msg ErrorMessage) error {
	msg.Type = TypeError
	return c.writer.writeJSON(msg)
}

// Frame is one decoded control-channel line: Type identifies which
// message field is populated.
type Frame struct {
	Type    string
	Execute ExecuteMessage
	Abort   AbortMessage
	Ready   ReadyMessage
	Result  ResultMessage
	Error   ErrorMessage
}

// rawEnvelope is decoded first to learn the frame's type before choosing
// which concrete message shape to unmarshal into.
type rawEnvelope struct {
	Type string `json:"type"`
}

// NextFrame reads and classifies the next control-channel line, regardless
// of whether the reader expects a host→child or child→host message. Returns
// ok=false once the underlying stream is exhausted.
func (c *ControlChannel) NextFrame() (Frame, bool) {
	for {
		raw, ok := next[json.RawMessage](c.reader)
		if !ok {
			return Frame{}, false
		}

		var env rawEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		frame := Frame{Type: env.Type}
		var decodeErr error
		switch env.Type {
		case TypeExecute:
			decodeErr = json.Unmarshal(raw, &frame.Execute)
		case TypeAbort:
			decodeErr = json.Unmarshal(raw, &frame.Abort)
		case TypeReady:
			decodeErr = json.Unmarshal(raw, &frame.Ready)
		case TypeResult:
			decodeErr = json.Unmarshal(raw, &frame.Result)
		case TypeError:
			decodeErr = json.Unmarshal(raw, &frame.Error)
		default:
			continue
		}
		if decodeErr != nil {
			continue
		}
		return frame, true
	}
}
