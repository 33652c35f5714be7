package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type conversationCreateRequest struct {
	Type           domain.ConversationType `json:"type"`
	ParticipantIDs []string                `json:"participantIds"`
	Name           *string                 `json:"name"`
}

func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		var req conversationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}

		conv, err := convSvc.CreateConversation(r.Context(), identity, service.ConversationCreateInput{
			Type:           req.Type,
			Name:           req.Name,
			ParticipantIDs: req.ParticipantIDs,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		convs, err := convSvc.ListConversations(r.Context(), identity.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if convs == nil {
			convs = []*domain.Conversation{}
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		conv, err := convSvc.GetConversation(r.Context(), identity.UserID, chi.URLParam(r, "conversationID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// handleMarkConversationRead marks every message read for the caller and
// tells the room.
func handleMarkConversationRead(msgSvc *service.MessageService, events Emitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		convID := chi.URLParam(r, "conversationID")
		readAt, err := msgSvc.MarkRead(r.Context(), identity.UserID, convID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		events.EmitMessagesRead(r.Context(), convID, identity.UserID, readAt)
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}
