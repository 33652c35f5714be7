package domain

import "strings"

// MessageBody is the payload of a new message: TextBody or AttachmentBody.
type MessageBody interface {
	messageBody()
	// Apply copies the body into m, setting content, type and attachment fields.
	Apply(m *Message)
}

// TextBody is a plain text message.
type TextBody struct {
	Content string
}

func (TextBody) messageBody() {}

func (b TextBody) Apply(m *Message) {
	m.Content = b.Content
	m.MessageType = MessageText
}

// AttachmentBody references a file already stored in the blob store.
// Type may pin the message type; left empty it follows MIMEType.
type AttachmentBody struct {
	URL      string
	Name     string
	Size     int64
	MIMEType string
	Type     MessageType
}

func (AttachmentBody) messageBody() {}

// Kind returns Type when it names an attachment kind, otherwise image for
// image/* MIME types and file for everything else.
func (b AttachmentBody) Kind() MessageType {
	if b.Type == MessageImage || b.Type == MessageFile {
		return b.Type
	}
	if strings.HasPrefix(strings.ToLower(b.MIMEType), "image/") {
		return MessageImage
	}
	return MessageFile
}

func (b AttachmentBody) Apply(m *Message) {
	url, name := b.URL, b.Name
	m.Content = url
	m.MessageType = b.Kind()
	m.FileURL = &url
	m.FileName = &name
	if b.Size > 0 {
		size := b.Size
		m.FileSize = &size
	}
	if b.MIMEType != "" {
		mime := b.MIMEType
		m.FileType = &mime
	}
}
