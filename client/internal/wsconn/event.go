package wsconn

import "encoding/json"

// Kind tags the three outcomes a channel can report.
type Kind int

const (
	// Message carries one inbound payload.
	Message Kind = iota + 1
	// Error is terminal: the channel failed.
	Error
	// Completed is terminal: the channel closed normally.
	Completed
)

func (k Kind) String() string {
	switch k {
	case Message:
		return "message"
	case Error:
		return "error"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Event is delivered to the Observe callback. Payload is set for Message,
// Err for Error.
type Event struct {
	Kind    Kind
	Payload json.RawMessage
	Err     error
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Kind == Error || e.Kind == Completed
}
