package assistant

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// DOCXMIMEType is the MIME type of Word documents.
const DOCXMIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// MaxAttachmentBytes bounds a single attached file.
const MaxAttachmentBytes = 20 << 20

var (
	// ErrUnsupportedFile is returned by Attach for anything but images, PDF
	// and DOCX.
	ErrUnsupportedFile = errors.New("assistant: unsupported file type")
	// ErrFileTooLarge is returned by Attach above MaxAttachmentBytes.
	ErrFileTooLarge = errors.New("assistant: attached file too large")
)

// AttachedFile is a file staged for the next outgoing message.
type AttachedFile struct {
	Name     string
	MIMEType string
	Data     []byte
	// PreviewURL is a data: URL for images, empty otherwise.
	PreviewURL string
}

// Info returns the metadata shown next to a message.
func (f AttachedFile) Info() *AttachmentInfo {
	return &AttachmentInfo{Name: f.Name, MIMEType: f.MIMEType, PreviewURL: f.PreviewURL, Size: len(f.Data)}
}

// AttachmentInfo describes an attachment without its content.
type AttachmentInfo struct {
	Name       string `json:"name"`
	MIMEType   string `json:"mimeType"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Size       int    `json:"size"`
}

// NewAttachment validates a file and prepares it for sending.
func NewAttachment(name, mimeType string, data []byte) (AttachedFile, error) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return AttachedFile{}, fmt.Errorf("%w: %q", ErrUnsupportedFile, mimeType)
	}
	if !Allowed(mt) {
		return AttachedFile{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, mt)
	}
	if len(data) > MaxAttachmentBytes {
		return AttachedFile{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}
	f := AttachedFile{Name: name, MIMEType: mt, Data: data}
	if strings.HasPrefix(mt, "image/") {
		f.PreviewURL = "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)
	}
	return f, nil
}

// Allowed reports whether files of mimeType may be attached.
func Allowed(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf" || mimeType == DOCXMIMEType
}
