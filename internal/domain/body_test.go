package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentBodyKind(t *testing.T) {
	assert.Equal(t, MessageImage, AttachmentBody{MIMEType: "image/png"}.Kind())
	assert.Equal(t, MessageImage, AttachmentBody{MIMEType: "IMAGE/JPEG"}.Kind())
	assert.Equal(t, MessageFile, AttachmentBody{MIMEType: "application/pdf"}.Kind())
	assert.Equal(t, MessageFile, AttachmentBody{}.Kind())
	assert.Equal(t, MessageImage, AttachmentBody{MIMEType: "application/octet-stream", Type: MessageImage}.Kind())
	assert.Equal(t, MessageImage, AttachmentBody{MIMEType: "image/gif", Type: MessageText}.Kind())
}

func TestBodyApply(t *testing.T) {
	var m Message
	AttachmentBody{URL: "http://x/a.png", Name: "a.png", Size: 12, MIMEType: "image/png"}.Apply(&m)
	assert.Equal(t, "http://x/a.png", m.Content)
	assert.Equal(t, MessageImage, m.MessageType)
	require.NotNil(t, m.FileSize)
	assert.Equal(t, int64(12), *m.FileSize)
	require.NotNil(t, m.FileType)
	assert.Equal(t, "image/png", *m.FileType)

	var ref Message
	AttachmentBody{URL: "http://x/doc", Name: "doc"}.Apply(&ref)
	assert.Nil(t, ref.FileSize)
	assert.Nil(t, ref.FileType)
	require.NotNil(t, ref.FileName)
	assert.Equal(t, "doc", *ref.FileName)

	var txt Message
	TextBody{Content: "hi"}.Apply(&txt)
	assert.Equal(t, MessageText, txt.MessageType)
	assert.Nil(t, txt.FileURL)
}

func TestConversationParticipants(t *testing.T) {
	c := &Conversation{Participants: []Participant{{UserID: "a"}, {UserID: "b"}}}
	c.SyncParticipantIDs()
	assert.Equal(t, []string{"a", "b"}, c.ParticipantIDs)
	assert.True(t, c.HasParticipant("b"))
	assert.False(t, c.HasParticipant("z"))
}
