// Streaming event types for incremental completions
package llm

// StreamEventType identifies a streaming event
type StreamEventType string

const (
	StreamEventDelta StreamEventType = "delta"
	StreamEventDone  StreamEventType = "done"
	StreamEventError StreamEventType = "error"
)

// Fragment is one role-tagged increment of model output
type Fragment struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Interaction is the terminal record of one call: the fully rendered prompt
// that was sent and the accumulated completion text.
type Interaction struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// StreamEvent is a single event in an incremental response sequence.
//
// Transports emit delta events (and at most one error event) and then close
// the channel; the pipeline appends the terminal done event carrying the
// accumulated Interaction. Consumers cancel cooperatively by abandoning the
// channel; producers must release the underlying stream once the consumer's
// context is done.
type StreamEvent struct {
	Type        StreamEventType `json:"type"`
	Delta       *Fragment       `json:"delta,omitempty"`
	Interaction *Interaction    `json:"interaction,omitempty"`
	Err         *Error          `json:"error,omitempty"`
}

// IsDelta returns true if this is a delta event
func (e StreamEvent) IsDelta() bool {
	return e.Type == StreamEventDelta && e.Delta != nil
}

// IsDone returns true if this is the terminal done event
func (e StreamEvent) IsDone() bool {
	return e.Type == StreamEventDone
}

// IsError returns true if this is an error event
func (e StreamEvent) IsError() bool {
	return e.Type == StreamEventError && e.Err != nil
}

// NewDeltaEvent creates a delta stream event
func NewDeltaEvent(role Role, content string) StreamEvent {
	return StreamEvent{Type: StreamEventDelta, Delta: &Fragment{Role: role, Content: content}}
}

// NewDoneEvent creates the terminal done event
func NewDoneEvent(interaction *Interaction) StreamEvent {
	return StreamEvent{Type: StreamEventDone, Interaction: interaction}
}

// NewErrorEvent creates an error stream event
func NewErrorEvent(err *Error) StreamEvent {
	return StreamEvent{Type: StreamEventError, Err: err}
}
