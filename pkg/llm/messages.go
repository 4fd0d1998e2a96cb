// Chat message types with multi-modal part support
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role defines the role of a message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind identifies the type of a message part
type PartKind string

const (
	PartKindText  PartKind = "text"
	PartKindImage PartKind = "image"
)

// MessagePart is one typed element of a message's ordered content sequence
type MessagePart interface {
	// Kind returns the part type identifier
	Kind() PartKind
}

// TextPart is a plain text message part
type TextPart struct {
	Text string `json:"text"`
}

func (p *TextPart) Kind() PartKind { return PartKindText }

// ImagePart references an image by URL (data URLs included). The core never
// fetches or decodes images; transports decide how to forward the reference.
type ImagePart struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
}

func (p *ImagePart) Kind() PartKind { return PartKindImage }

// ChatMessage is a single conversation entry. Part order is meaningful and is
// preserved end-to-end except where the token budget explicitly removes content.
type ChatMessage struct {
	Role  Role          `json:"role"`
	Parts []MessagePart `json:"parts"`
}

// NewTextMessage creates a ChatMessage with a single text part
func NewTextMessage(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Parts: []MessagePart{&TextPart{Text: text}}}
}

// Text concatenates all text parts in order
func (m ChatMessage) Text() string {
	var sb strings.Builder
	for _, part := range m.Parts {
		if t, ok := part.(*TextPart); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// HasImages reports whether the message carries any image parts
func (m ChatMessage) HasImages() bool {
	for _, part := range m.Parts {
		if part.Kind() == PartKindImage {
			return true
		}
	}
	return false
}

// WithoutImages returns a copy of the message with all image parts removed.
// Relative order of the remaining parts is preserved.
func (m ChatMessage) WithoutImages() ChatMessage {
	parts := make([]MessagePart, 0, len(m.Parts))
	for _, part := range m.Parts {
		if part.Kind() != PartKindImage {
			parts = append(parts, part)
		}
	}
	return ChatMessage{Role: m.Role, Parts: parts}
}

// WithText returns a copy of the message whose content is the single given
// text part. Used by the token budget when truncating an oversized message.
func (m ChatMessage) WithText(text string) ChatMessage {
	return ChatMessage{Role: m.Role, Parts: []MessagePart{&TextPart{Text: text}}}
}

// DeepCopy copies the message and its parts so budget reshaping never
// mutates caller-owned state.
func (m ChatMessage) DeepCopy() ChatMessage {
	out := ChatMessage{Role: m.Role}
	if len(m.Parts) > 0 {
		out.Parts = make([]MessagePart, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch p := part.(type) {
			case *TextPart:
				out.Parts = append(out.Parts, &TextPart{Text: p.Text})
			case *ImagePart:
				out.Parts = append(out.Parts, &ImagePart{URL: p.URL, MimeType: p.MimeType})
			}
		}
	}
	return out
}

// MarshalJSON implements custom JSON marshaling so each part carries its kind
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	temp := struct {
		Role  Role              `json:"role"`
		Parts []json.RawMessage `json:"parts"`
	}{Role: m.Role}

	for i, part := range m.Parts {
		var (
			raw []byte
			err error
		)
		switch p := part.(type) {
		case *TextPart:
			raw, err = json.Marshal(struct {
				Kind PartKind `json:"kind"`
				*TextPart
			}{PartKindText, p})
		case *ImagePart:
			raw, err = json.Marshal(struct {
				Kind PartKind `json:"kind"`
				*ImagePart
			}{PartKindImage, p})
		default:
			err = fmt.Errorf("unsupported part kind at index %d", i)
		}
		if err != nil {
			return nil, err
		}
		temp.Parts = append(temp.Parts, raw)
	}
	return json.Marshal(temp)
}

// UnmarshalJSON implements custom JSON unmarshaling for typed parts
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	temp := struct {
		Role  Role              `json:"role"`
		Parts []json.RawMessage `json:"parts"`
	}{}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	m.Role = temp.Role
	m.Parts = nil
	for i, raw := range temp.Parts {
		var probe struct {
			Kind PartKind `json:"kind"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return fmt.Errorf("failed to determine kind for part %d: %w", i, err)
		}
		var part MessagePart
		switch probe.Kind {
		case PartKindText:
			part = &TextPart{}
		case PartKindImage:
			part = &ImagePart{}
		default:
			return fmt.Errorf("unsupported part kind %q at index %d", probe.Kind, i)
		}
		if err := json.Unmarshal(raw, part); err != nil {
			return fmt.Errorf("failed to unmarshal part %d: %w", i, err)
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

// LastUserIndex returns the index of the most recent user message, or -1
func LastUserIndex(messages []ChatMessage) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
