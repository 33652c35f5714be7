package httpserver

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

// Emitter re-emits durable changes to the realtime rooms.
type Emitter interface {
	EmitNewMessage(ctx context.Context, m *domain.Message)
	EmitMessageUpdated(ctx context.Context, m *domain.Message)
	EmitMessageDeleted(ctx context.Context, conversationID, messageID string)
	EmitMessagesRead(ctx context.Context, conversationID, userID string, readAt time.Time)
}

type messageCreateRequest struct {
	Content        string             `json:"content"`
	MessageType    domain.MessageType `json:"messageType"`
	AttachmentURL  string             `json:"attachmentUrl"`
	AttachmentName string             `json:"attachmentName"`
	AttachmentSize int64              `json:"attachmentSize"`
	AttachmentType string             `json:"attachmentType"`
}

// body turns the request into a message body. Image and file messages need
// an attachment URL; the name defaults to the last URL segment.
func (req messageCreateRequest) body() (domain.MessageBody, error) {
	switch req.MessageType {
	case "", domain.MessageText:
		if req.AttachmentURL != "" {
			break
		}
		return domain.TextBody{Content: req.Content}, nil
	case domain.MessageImage, domain.MessageFile:
	default:
		return nil, domain.InvalidArgument("unknown message type %q", req.MessageType)
	}

	url := strings.TrimSpace(req.AttachmentURL)
	if url == "" {
		return nil, domain.InvalidArgument("attachmentUrl is required for %s messages", req.MessageType)
	}
	name := strings.TrimSpace(req.AttachmentName)
	if name == "" {
		name = path.Base(url)
	}
	mimeType := strings.TrimSpace(req.AttachmentType)
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(name))
	}
	return domain.AttachmentBody{
		URL:      url,
		Name:     name,
		Size:     req.AttachmentSize,
		MIMEType: mimeType,
		Type:     req.MessageType,
	}, nil
}

type messageUpdateRequest struct {
	Content     *string             `json:"content"`
	MessageType *domain.MessageType `json:"messageType"`
}

func handleCreateMessage(msgSvc *service.MessageService, events Emitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		body, err := req.body()
		if err != nil {
			writeError(w, r, err)
			return
		}

		msg, err := msgSvc.SendMessage(r.Context(), identity, chi.URLParam(r, "conversationID"), body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		events.EmitNewMessage(r.Context(), msg)
		writeJSON(w, http.StatusCreated, msg)
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.InvalidArgument("%s must be an integer", key)
	}
	return n, nil
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, r, err)
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			writeError(w, r, err)
			return
		}

		msgs, err := msgSvc.ListMessages(r.Context(), identity.UserID, chi.URLParam(r, "conversationID"), limit, offset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if msgs == nil {
			msgs = []*domain.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleUpdateMessage(msgSvc *service.MessageService, events Emitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		var req messageUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}

		msg, err := msgSvc.EditMessage(r.Context(), identity.UserID, chi.URLParam(r, "messageID"), domain.MessagePatch{
			Content:     req.Content,
			MessageType: req.MessageType,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		events.EmitMessageUpdated(r.Context(), msg)
		writeJSON(w, http.StatusOK, msg)
	}
}

func handleDeleteMessage(msgSvc *service.MessageService, events Emitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		msg, err := msgSvc.DeleteMessage(r.Context(), identity.UserID, chi.URLParam(r, "messageID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		events.EmitMessageDeleted(r.Context(), msg.ConversationID, msg.ID)
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}
