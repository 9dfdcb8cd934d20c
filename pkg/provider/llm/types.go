package llm

import "strings"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message. When Parts is non-empty,
	// Content is ignored by providers and the parts are sent in order.
	Content string

	// Parts holds an ordered mix of text and inline binary payloads.
	Parts []Part
}

// Part is one element of a multimodal message. Exactly one of Text or Blob
// is set.
type Part struct {
	Text string
	Blob *Blob
}

// Blob is an inline binary payload with its MIME type. Providers encode
// Data as base64 on the wire.
type Blob struct {
	MIMEType string
	Data     []byte

	// Name is an optional filename, used by providers that accept file parts.
	Name string
}

// TextPart returns a Part holding text.
func TextPart(s string) Part { return Part{Text: s} }

// BlobPart returns a Part holding an inline binary payload.
func BlobPart(mimeType string, data []byte, name string) Part {
	return Part{Blob: &Blob{MIMEType: mimeType, Data: data, Name: name}}
}

// UserText builds a plain user message.
func UserText(s string) Message { return Message{Role: RoleUser, Content: s} }

// IsImage reports whether the blob is an image.
func (b *Blob) IsImage() bool { return strings.HasPrefix(b.MIMEType, "image/") }

// IsAudio reports whether the blob is audio.
func (b *Blob) IsAudio() bool { return strings.HasPrefix(b.MIMEType, "audio/") }

// Text returns the concatenated text of the message: Content when there are
// no parts, otherwise every text part joined by newlines.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Blob == nil && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasBlobs reports whether any part carries binary data.
func (m Message) HasBlobs() bool {
	for _, p := range m.Parts {
		if p.Blob != nil {
			return true
		}
	}
	return false
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsAudio indicates the model accepts inline audio input.
	SupportsAudio bool

	// SupportsDocuments indicates the model accepts inline PDF/DOCX files.
	SupportsDocuments bool
}
